package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store holds the Prometheus metrics collectors.
type Store struct {
	Registry              *prometheus.Registry // Use a custom registry
	OrchestrationRunning  prometheus.Gauge
	RunDuration           *prometheus.HistogramVec
	UnitDuration          *prometheus.HistogramVec
	UnitsTotal            *prometheus.CounterVec
	JobRegistrationsTotal *prometheus.CounterVec
	PollWaitDuration      *prometheus.HistogramVec
	EngineErrorsTotal     *prometheus.CounterVec
	SeedsTotal            *prometheus.CounterVec
	PromotionsTotal       prometheus.Counter
	ErrorsTotal           *prometheus.CounterVec
}

// NewMetricsStore creates and registers Prometheus metrics.
func NewMetricsStore() *Store {
	registry := prometheus.NewRegistry() // Create a non-global registry

	store := &Store{
		Registry: registry,
		OrchestrationRunning: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "logship_up",
			Help: "Indicates if a logship orchestration run is in progress (1 = running, 0 = not running).",
		}),
		RunDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "logship_run_duration_seconds",
			Help:    "Duration of an entire configure or recover run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1s to ~9h
		}, []string{"mode"}),
		UnitDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "logship_unit_duration_seconds",
			Help:    "Duration histogram for processing individual (role x database) units.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 16),
		}, []string{"mode", "database"}),
		UnitsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "logship_units_total",
			Help: "Total number of processed (role x database) units, labeled by mode and result.",
		}, []string{"mode", "result"}),
		JobRegistrationsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "logship_job_registrations_total",
			Help: "Total number of job/schedule registrations issued against the job engine.",
		}, []string{"role", "kind"}), // kinds: produce, transport, apply
		PollWaitDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "logship_poll_wait_duration_seconds",
			Help:    "Duration histogram for poll-to-idle waits against the job engine.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 14), // 500ms to ~4.5h
		}, []string{"job"}),
		EngineErrorsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "logship_engine_errors_total",
			Help: "Total number of failed calls across the job-engine/instance boundary, labeled by operation and role.",
		}, []string{"op", "role"}),
		SeedsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "logship_seed_operations_total",
			Help: "Total number of secondary seeding operations, labeled by plan kind and result.",
		}, []string{"kind", "result"}),
		PromotionsTotal: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "logship_promotions_total",
			Help: "Total number of irreversible secondary promotions issued.",
		}),
		ErrorsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "logship_errors_total",
			Help: "Total number of errors encountered, labeled by type and database.",
		}, []string{"type", "database"}), // types: connection, connection_cancelled, connection_failed, list_databases
	}

	return store
}
