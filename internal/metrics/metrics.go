package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Alert lifecycle metrics
	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetalert_alerts_created_total",
			Help: "Total number of alerts created",
		},
		[]string{"source_type"},
	)

	AlertsEscalatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetalert_alerts_escalated_total",
			Help: "Total number of alert escalations",
		},
		[]string{"source_type"},
	)

	AlertsAutoClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetalert_alerts_auto_closed_total",
			Help: "Total number of automatically closed alerts",
		},
		[]string{"source_type"},
	)

	AlertsResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetalert_alerts_resolved_total",
			Help: "Total number of manually resolved alerts",
		},
		[]string{"source_type"},
	)

	AlertsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetalert_alerts_expired_total",
			Help: "Total number of alerts expired by the retention sweep",
		},
	)

	ValidationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetalert_validation_errors_total",
			Help: "Total number of rejected alert submissions",
		},
		[]string{"error_type"},
	)

	// Processing metrics
	EvaluationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetalert_evaluations_total",
			Help: "Total number of rule evaluations performed",
		},
	)

	EvaluationErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetalert_evaluation_errors_total",
			Help: "Total number of per-alert evaluation failures",
		},
	)

	InflightSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetalert_inflight_skipped_total",
			Help: "Evaluations skipped because the alert was already being processed",
		},
	)

	// Scheduler metrics
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetalert_sweep_duration_seconds",
			Help:    "Duration of one reconciliation sweep",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	SweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetalert_sweeps_total",
			Help: "Total number of reconciliation sweeps run",
		},
	)

	SweepsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetalert_sweeps_skipped_total",
			Help: "Ticks skipped because the previous sweep was still running",
		},
	)

	// Storage metrics
	StoreFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetalert_store_fallback_total",
			Help: "Calls degraded from the primary store to the in-process fallback",
		},
		[]string{"op"},
	)

	StoreIndexErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetalert_store_index_errors_total",
			Help: "Best-effort secondary index updates that failed",
		},
	)

	// Ingest metrics
	IngestMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetalert_ingest_messages_total",
			Help: "Total number of alert submissions consumed",
		},
		[]string{"status"}, // status: accepted, rejected
	)
)
