// Package metrics holds the Prometheus collectors shared by the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the process registry served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// JobsProcessed counts finished job attempts by kind and result
	// (completed, retried, discarded).
	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "venuesync_jobs_processed_total",
		Help: "Job attempts by kind and result.",
	}, []string{"kind", "result"})

	// JobDuration observes wall-clock time per job attempt.
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "venuesync_job_duration_seconds",
		Help:    "Job attempt duration by kind.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"kind"})

	// ExternalRequests counts outbound API calls by api and outcome.
	ExternalRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "venuesync_external_requests_total",
		Help: "Outbound API calls by api and outcome.",
	}, []string{"api", "outcome"})

	// PhotoRefreshes counts PhotoCache refresh decisions by result.
	PhotoRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "venuesync_photo_refreshes_total",
		Help: "Photo refreshes by result (skipped, refreshed, fallback, failed).",
	}, []string{"result"})

	// EventsReconciled counts EventReconciler outcomes by action.
	EventsReconciled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "venuesync_events_reconciled_total",
		Help: "Reconciled events by action (created, updated, unchanged).",
	}, []string{"action"})

	// DetailJobsScheduled counts scheduler decisions per source.
	DetailJobsScheduled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "venuesync_detail_jobs_scheduled_total",
		Help: "Detail jobs considered by the scheduler, by source and result (enqueued, duplicate).",
	}, []string{"source", "result"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		JobsProcessed,
		JobDuration,
		ExternalRequests,
		PhotoRefreshes,
		EventsReconciled,
		DetailJobsScheduled,
	)
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
