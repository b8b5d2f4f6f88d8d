// Package metrics exposes Prometheus counters for the search pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SearchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prospect_search_requests_total",
			Help: "Search requests, labeled by response mode.",
		},
		[]string{"mode"}, // "serp_only", "scrape", "no_results"
	)
	ProviderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prospect_provider_failures_total",
			Help: "Search provider failures, labeled by provider name.",
		},
		[]string{"provider"},
	)
	TasksAdmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prospect_scrape_tasks_admitted_total",
			Help: "Scrape tasks admitted to the job queue.",
		},
	)
	TaskTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prospect_scrape_task_timeouts_total",
			Help: "Scrape tasks that hit their await deadline.",
		},
	)
	BlockedURLs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prospect_blocked_urls_total",
			Help: "Search results rejected by the URL blocklist.",
		},
	)
	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prospect_search_duration_seconds",
			Help:    "End-to-end search request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(SearchRequests)
	prometheus.MustRegister(ProviderFailures)
	prometheus.MustRegister(TasksAdmitted)
	prometheus.MustRegister(TaskTimeouts)
	prometheus.MustRegister(BlockedURLs)
	prometheus.MustRegister(SearchDuration)
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
