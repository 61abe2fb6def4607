package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the session orchestrator.
type Metrics struct {
	registry *prometheus.Registry

	// SessionsCreated counts createSession outcomes: created, capacity,
	// invalid_email, start_failed, exhausted.
	SessionsCreated *prometheus.CounterVec

	// SessionsTerminated counts completed teardowns by cause: expired,
	// deleted, crashed.
	SessionsTerminated *prometheus.CounterVec

	// ActiveSessions tracks sessions currently holding a slot.
	ActiveSessions prometheus.Gauge

	// WorkerStartSeconds observes how long docker takes to bring a worker up.
	WorkerStartSeconds prometheus.Histogram

	// SweepRuns counts supervisor sweep passes.
	SweepRuns prometheus.Counter

	// TeardownFailures counts teardown attempts that will be retried by the sweep.
	TeardownFailures prometheus.Counter
}

// NewMetrics creates a metrics collector backed by its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SessionsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "demo_sessions_created_total",
			Help: "Session creation attempts by outcome.",
		}, []string{"outcome"}),
		SessionsTerminated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "demo_sessions_terminated_total",
			Help: "Completed session teardowns by cause.",
		}, []string{"cause"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "demo_active_sessions",
			Help: "Sessions currently occupying a slot.",
		}),
		WorkerStartSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "demo_worker_start_seconds",
			Help:    "Time to start a session worker container.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		SweepRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "demo_sweep_runs_total",
			Help: "Supervisor sweep passes.",
		}),
		TeardownFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "demo_teardown_failures_total",
			Help: "Teardown attempts that failed and were left to the sweep.",
		}),
	}
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
