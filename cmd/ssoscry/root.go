package main

import (
	"context"
	"fmt"

	"github.com/copyleftdev/ssoscry/internal/authenticator"
	"github.com/copyleftdev/ssoscry/internal/browser"
	"github.com/copyleftdev/ssoscry/internal/config"
	"github.com/copyleftdev/ssoscry/internal/desktop"
	"github.com/copyleftdev/ssoscry/internal/desktop/uia"
	"github.com/copyleftdev/ssoscry/internal/logging"
	"github.com/copyleftdev/ssoscry/internal/metrics"
	"github.com/copyleftdev/ssoscry/internal/mfa"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type appKey struct{}

// app is what every subcommand needs, built once before it runs.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ssoscry",
		Short:        "SSO login checks with PingID desktop MFA",
		Long:         "ssoscry drives SSO logins in Chrome and answers PingID prompts by reading the code from the PingID desktop application.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey{}).(*app); ok {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().String("config", "", "Path to the config file (default: ./config.yaml, $HOME/.ssoscry, /etc/ssoscry)")

	root.AddCommand(
		ServeCmd(),
		LoginCmd(),
		MFACmd(),
		InspectCmd(),
		CheckBrowserCmd(),
	)
	return root
}

func appFrom(cmd *cobra.Command) *app {
	return cmd.Context().Value(appKey{}).(*app)
}

// newWorkflow builds the PingID retrieval workflow on the UI Automation
// backend.
func (a *app) newWorkflow(cfg config.AuthenticatorConfig, logger *zap.Logger) (*authenticator.Workflow, error) {
	provider, err := uia.NewProvider(logger.Named("uia"))
	if err != nil {
		return nil, err
	}
	return authenticator.NewWorkflow(cfg, provider,
		desktop.ExecLauncher{Logger: logger},
		desktop.SystemClipboard{},
		logger,
		authenticator.WithObserver(func(s authenticator.State) { a.metrics.ObserveState(string(s)) }),
	)
}

func (a *app) mfaRegistry() *mfa.Registry {
	factory := func(cfg config.AuthenticatorConfig, logger *zap.Logger) (authenticator.Retriever, error) {
		return a.newWorkflow(cfg, logger)
	}
	return mfa.FromConfig(a.cfg, factory, a.metrics, a.logger.Named("mfa"))
}

func (a *app) browserManager(codes browser.CodeSource) (*browser.Manager, error) {
	return browser.NewManager(&a.cfg.Browser, codes, a.logger.Named("browser"))
}
