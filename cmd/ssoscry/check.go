package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func CheckBrowserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-browser",
		Short: "Start Chrome once and print its version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			bm, err := a.browserManager(nil)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Browser.ShutdownTimeout)
				defer cancel()
				_ = bm.Shutdown(ctx)
			}()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			product, err := bm.Check(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Browser OK: %s\n", product)
			return nil
		},
	}
}
