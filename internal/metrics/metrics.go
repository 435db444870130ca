// Package metrics exposes the Prometheus collectors shared across the
// HTTP boundary, the ledger, and the scheduler. Modeled on the teacher's
// pkg/metrics package: a package-level Registry plus one CounterVec or
// HistogramVec per concern.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Registry = prometheus.NewRegistry()

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kudos",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests handled, labeled by method, route, and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kudos",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	LedgerTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kudos",
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Ledger transactions committed, labeled by transaction type.",
		},
		[]string{"type"},
	)

	SchedulerJobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kudos",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job dispatches, labeled by job id and outcome.",
		},
		[]string{"job_id", "outcome"},
	)

	SchedulerTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kudos",
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one scheduler tick.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	NotificationDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kudos",
			Subsystem: "notifications",
			Name:      "deliveries_total",
			Help:      "Notification deliveries, labeled by channel and status.",
		},
		[]string{"channel", "status"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestsTotal,
		HTTPRequestDuration,
		LedgerTransactionsTotal,
		SchedulerJobRuns,
		SchedulerTickDuration,
		NotificationDeliveriesTotal,
	)
}

// Handler serves the Prometheus exposition format for Registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
