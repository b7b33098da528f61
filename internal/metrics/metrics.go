package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/felixgeelhaar/capboard/internal/errors"
)

// Outcome labels shared by command and mutation metrics.
const (
	OutcomeSuccess   = "success"
	OutcomeDenied    = "denied"
	OutcomeRejected  = "rejected"
	OutcomeTransport = "transport"
	OutcomeExpired   = "expired"
	OutcomeCancelled = "cancelled"
	OutcomeInvalid   = "invalid"
)

// Metrics holds all Prometheus metrics for capboard.
//
// Every Record/Observe method is safe to call on a nil *Metrics, so
// components can take an optional instance.
type Metrics struct {
	// CLI command metrics
	CommandExecutions *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec
	CommandErrors     *prometheus.CounterVec

	// Registry HTTP metrics, fed by promhttp round tripper instrumentation
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInFlight prometheus.Gauge

	// Session metrics
	SessionTransitions *prometheus.CounterVec
	SessionActive      prometheus.Gauge

	// Catalog metrics
	CatalogRefreshes *prometheus.CounterVec
	CatalogSize      prometheus.Gauge

	// Register/unregister outcomes
	Mutations *prometheus.CounterVec

	// Contract drift findings
	ContractDrift *prometheus.CounterVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		CommandExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capboard_command_executions_total",
				Help: "Total number of CLI command executions",
			},
			[]string{"command", "success"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capboard_command_duration_seconds",
				Help:    "CLI command duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		CommandErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capboard_command_errors_total",
				Help: "Total number of CLI command errors",
			},
			[]string{"command", "error_code"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capboard_http_requests_total",
				Help: "Total number of requests sent to the registry",
			},
			[]string{"code", "method"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capboard_http_request_duration_seconds",
				Help:    "Registry request latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method"},
		),
		HTTPInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "capboard_http_requests_in_flight",
				Help: "Registry requests currently in flight",
			},
		),

		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capboard_session_transitions_total",
				Help: "Session state transitions by resulting state and reason",
			},
			[]string{"state", "reason"},
		),
		SessionActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "capboard_session_active",
				Help: "1 while a session is authenticated",
			},
		),

		CatalogRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capboard_catalog_refreshes_total",
				Help: "Catalog refreshes by result",
			},
			[]string{"result"},
		),
		CatalogSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "capboard_catalog_capabilities",
				Help: "Number of capabilities in the current view",
			},
		),

		Mutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capboard_mutations_total",
				Help: "Register and unregister invocations by outcome",
			},
			[]string{"action", "outcome"},
		),

		ContractDrift: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capboard_contract_drift_total",
				Help: "Registry responses that did not match the contract",
			},
			[]string{"code", "method"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capboard_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}

// InstrumentTransport wraps next with request counting, latency and
// in-flight tracking. A nil receiver returns next unchanged.
func (m *Metrics) InstrumentTransport(next http.RoundTripper) http.RoundTripper {
	if m == nil {
		return next
	}
	if next == nil {
		next = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperInFlight(m.HTTPInFlight,
		promhttp.InstrumentRoundTripperCounter(m.HTTPRequests,
			promhttp.InstrumentRoundTripperDuration(m.HTTPDuration, next),
		),
	)
}

// RecordCommand records one CLI command run.
func (m *Metrics) RecordCommand(command string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.CommandExecutions.WithLabelValues(command, strconv.FormatBool(err == nil)).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(d.Seconds())
	if err != nil {
		m.CommandErrors.WithLabelValues(command, errorCode(err)).Inc()
	}
}

// RecordTransition records a session state change.
func (m *Metrics) RecordTransition(state, reason string, authenticated bool) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(state, reason).Inc()
	if authenticated {
		m.SessionActive.Set(1)
	} else {
		m.SessionActive.Set(0)
	}
}

// RecordRefresh records a catalog refresh. size is ignored unless result
// is OutcomeSuccess.
func (m *Metrics) RecordRefresh(result string, size int) {
	if m == nil {
		return
	}
	m.CatalogRefreshes.WithLabelValues(result).Inc()
	if result == OutcomeSuccess {
		m.CatalogSize.Set(float64(size))
	}
}

// ClearCatalog resets the catalog size gauge.
func (m *Metrics) ClearCatalog() {
	if m == nil {
		return
	}
	m.CatalogSize.Set(0)
}

// RecordMutation records a register or unregister outcome.
func (m *Metrics) RecordMutation(action, outcome string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(action, outcome).Inc()
}

// RecordDrift records one contract finding.
func (m *Metrics) RecordDrift(code, method string) {
	if m == nil {
		return
	}
	m.ContractDrift.WithLabelValues(code, method).Inc()
}

// RecordError counts err under its error code.
func (m *Metrics) RecordError(component string, err error) {
	if m == nil || err == nil {
		return
	}
	m.Errors.WithLabelValues(errorCode(err), component).Inc()
}

func errorCode(err error) string {
	if code := errors.CodeOf(err); code != "" {
		return string(code)
	}
	return "UNKNOWN"
}
