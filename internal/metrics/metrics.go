// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "insiderwatch"

var (
	// IngestedEvents counts stored behavior events by type.
	IngestedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Behavior events stored by the log collector.",
		},
		[]string{"type"},
	)

	// IngestRejected counts rejected collector requests by reason.
	IngestRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "rejected_total",
			Help:      "Log collector requests rejected, by reason.",
		},
		[]string{"reason"},
	)

	// DetectionRuns counts scorer runs by outcome (computed, cached, empty, failed).
	DetectionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "runs_total",
			Help:      "Anomaly detection runs by outcome.",
		},
		[]string{"outcome"},
	)

	// DetectionDuration observes the wall time of computed runs.
	DetectionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "duration_seconds",
			Help:      "Duration of computed anomaly detection runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// AnomalousUsers counts users flagged by the scorer.
	AnomalousUsers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "anomalous_users_total",
			Help:      "Users predicted anomalous across all runs.",
		},
	)

	// ContainmentActions counts gateway block/allow attempts by action and result.
	ContainmentActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "containment",
			Name:      "actions_total",
			Help:      "Network access changes attempted, by action and result.",
		},
		[]string{"action", "result"},
	)

	// AlertDeliveries counts alert deliveries by channel and result.
	AlertDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "deliveries_total",
			Help:      "Alert deliveries by channel (websocket, email) and result.",
		},
		[]string{"channel", "result"},
	)

	// AlertSubscribers tracks connected live-alert subscribers.
	AlertSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "subscribers",
			Help:      "Connected live-alert subscribers.",
		},
	)

	// HTTPRequestDuration observes API latency by route pattern, method and status code.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route, method and status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)

	// LogonQueueDepth tracks logon events waiting for a coordinator worker.
	LogonQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "logon",
			Name:      "queue_depth",
			Help:      "Logon events queued for the response coordinator.",
		},
	)
)

func init() {
	// Duplicate registration errors are ignored.
	for _, c := range []prometheus.Collector{
		IngestedEvents, IngestRejected, DetectionRuns, DetectionDuration, AnomalousUsers,
		ContainmentActions, AlertDeliveries, AlertSubscribers, LogonQueueDepth,
		HTTPRequestDuration,
	} {
		_ = prometheus.Register(c)
	}
}

// Result maps a success flag to a result label value.
func Result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
