package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func MFACmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mfa",
		Short: "Print one MFA code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			provider, _ := cmd.Flags().GetString("provider")

			code, err := a.mfaRegistry().Code(cmd.Context(), provider)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
	cmd.Flags().String("provider", "", "MFA provider to use (desktop, totp); defaults to mfa.provider")
	return cmd
}
