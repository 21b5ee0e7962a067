// Package metrics holds the Prometheus collectors for MFA retrievals and
// login runs. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry       *prometheus.Registry
	mfaRetrievals  *prometheus.CounterVec
	mfaDuration    *prometheus.HistogramVec
	workflowStates *prometheus.CounterVec
	loginRuns      *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		mfaRetrievals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ssoscry_mfa_retrievals_total",
			Help: "One-time code retrievals by provider and outcome.",
		}, []string{"provider", "outcome"}),
		mfaDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ssoscry_mfa_retrieval_seconds",
			Help:    "Time taken to obtain a one-time code.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"provider"}),
		workflowStates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ssoscry_authenticator_state_transitions_total",
			Help: "Authenticator workflow state entries.",
		}, []string{"state"}),
		loginRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ssoscry_login_runs_total",
			Help: "Browser login runs by flow and final status.",
		}, []string{"flow", "status"}),
	}
}

func (m *Metrics) ObserveMFA(provider string, took time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.mfaRetrievals.WithLabelValues(provider, outcome).Inc()
	m.mfaDuration.WithLabelValues(provider).Observe(took.Seconds())
}

func (m *Metrics) ObserveState(state string) {
	if m == nil {
		return
	}
	m.workflowStates.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveLogin(flow, status string) {
	if m == nil {
		return
	}
	m.loginRuns.WithLabelValues(flow, status).Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
