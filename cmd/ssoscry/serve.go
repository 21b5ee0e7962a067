package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/copyleftdev/ssoscry/internal/server"
	"github.com/copyleftdev/ssoscry/internal/tasks"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			registry := a.mfaRegistry()
			a.logger.Info("MFA providers ready", zap.Strings("providers", registry.Names()), zap.String("default", registry.Default()))

			bm, err := a.browserManager(registry)
			if err != nil {
				return err
			}
			tm := tasks.NewManager(a.cfg, bm, a.metrics, a.logger.Named("tasks"))
			srv := server.NewServer(a.cfg, tm, registry, a.metrics, a.logger.Named("server"))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
				a.logger.Info("Shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Browser.ShutdownTimeout)
			defer cancel()
			return errors.Join(srv.Shutdown(shutdownCtx), tm.Shutdown(shutdownCtx))
		},
	}
}
