package main

import (
	"github.com/spf13/cobra"
)

func InspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List the controls of the PingID window",
		Long:  "Lists every control of the PingID window with its kind, name and automation id, to help tune authenticator.controls.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			launch, _ := cmd.Flags().GetBool("launch")

			wf, err := a.newWorkflow(a.cfg.Authenticator, a.logger.Named("authenticator"))
			if err != nil {
				return err
			}
			return wf.Inspect(cmd.Context(), cmd.OutOrStdout(), launch)
		},
	}
	cmd.Flags().Bool("launch", false, "Start PingID first instead of attaching to an open window")
	return cmd
}
