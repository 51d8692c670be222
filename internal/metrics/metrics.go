package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartbin_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route", "status"},
	)

	ReadingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartbin_readings_ingested_total",
			Help: "Total number of readings received",
		},
		[]string{"source", "status"}, // status: accepted, rejected, failed
	)

	ReadingsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartbin_readings_processed_total",
			Help: "Total number of readings handled by the reading processor",
		},
		[]string{"outcome"}, // processed, skipped, failed
	)

	AlertTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartbin_alert_transitions_total",
			Help: "Alert lifecycle transitions",
		},
		[]string{"action"},
	)

	InvariantRepairs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartbin_alert_invariant_repairs_total",
			Help: "Duplicate unacknowledged alerts collapsed during reconciliation",
		},
	)

	TriggerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartbin_trigger_queue_depth",
			Help: "Reading-created events waiting for a worker",
		},
	)

	TriggerRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartbin_trigger_retries_total",
			Help: "Reading-created redeliveries after transient failures",
		},
	)

	SummaryRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartbin_summary_runs_total",
			Help: "Weekly summary runs",
		},
		[]string{"status"}, // success, retry, failed
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartbin_notification_failures_total",
			Help: "Alert notifications that could not be delivered",
		},
		[]string{"notifier"},
	)
)
