// Package mfa hands out one-time passcodes to the browser flows.
package mfa

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/copyleftdev/ssoscry/internal/authenticator"
	"github.com/copyleftdev/ssoscry/internal/config"
	"github.com/copyleftdev/ssoscry/internal/metrics"
	"go.uber.org/zap"
)

const (
	ProviderDesktop = "desktop"
	ProviderTOTP    = "totp"
	// ProviderManual codes are posted to a waiting task over the API and
	// never go through a Provider.
	ProviderManual = "manual"
)

// Provider returns a fresh one-time code per call.
type Provider interface {
	Name() string
	Code(ctx context.Context) (string, error)
}

// Desktop obtains codes from the PingID application.
type Desktop struct {
	retriever authenticator.Retriever
}

// NewDesktop serializes r so concurrent browser sessions take turns with the
// authenticator window and clipboard.
func NewDesktop(r authenticator.Retriever) *Desktop {
	return &Desktop{retriever: authenticator.NewExclusive(r)}
}

func (d *Desktop) Name() string { return ProviderDesktop }

func (d *Desktop) Code(ctx context.Context) (string, error) {
	return d.retriever.Retrieve(ctx)
}

// Registry resolves providers by name and records metrics for each call.
type Registry struct {
	providers map[string]Provider
	fallback  string
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewRegistry(defaultProvider string, m *metrics.Metrics, logger *zap.Logger, providers ...Provider) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		providers: make(map[string]Provider),
		fallback:  defaultProvider,
		metrics:   m,
		logger:    logger,
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Default is the provider used when a task does not name one.
func (r *Registry) Default() string { return r.fallback }

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Code asks the named provider, or the default when name is empty, for one
// code.
func (r *Registry) Code(ctx context.Context, name string) (string, error) {
	if name == "" {
		name = r.fallback
	}
	p, ok := r.providers[name]
	if !ok {
		return "", fmt.Errorf("mfa provider %q is not available (have %v)", name, r.Names())
	}

	start := time.Now()
	code, err := p.Code(ctx)
	r.metrics.ObserveMFA(name, time.Since(start), err)
	if err != nil {
		r.logger.Warn("MFA provider failed", zap.String("provider", name), zap.Error(err))
		return "", fmt.Errorf("failed to retrieve mfa code from %s: %w", name, err)
	}
	if code == "" {
		return "", fmt.Errorf("mfa provider %s returned no code", name)
	}
	return code, nil
}

// DesktopFactory builds the retrieval workflow. It is a function so hosts
// without UI Automation can still use the other providers.
type DesktopFactory func(cfg config.AuthenticatorConfig, logger *zap.Logger) (authenticator.Retriever, error)

// FromConfig registers every provider the configuration allows.
func FromConfig(cfg *config.Config, newDesktop DesktopFactory, m *metrics.Metrics, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	var providers []Provider

	if newDesktop != nil {
		if err := cfg.Authenticator.Validate(); err != nil {
			logger.Info("Desktop MFA provider disabled", zap.Error(err))
		} else if r, err := newDesktop(cfg.Authenticator, logger.Named("authenticator")); err != nil {
			logger.Warn("Desktop MFA provider unavailable", zap.Error(err))
		} else {
			providers = append(providers, NewDesktop(r))
		}
	}
	if cfg.MFA.TOTPSecret != "" {
		providers = append(providers, &TOTP{Secret: cfg.MFA.TOTPSecret})
	}

	return NewRegistry(cfg.MFA.Provider, m, logger, providers...)
}
