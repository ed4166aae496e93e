// Package metrics provides Prometheus instrumentation for the Tripmate
// services. It exposes counters for API traffic, match engine work and
// message throughput, plus a gauge for live push connections.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts API requests by method, route template and
	// status code.
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripmate_http_requests_total",
		Help: "Total number of API requests handled",
	}, []string{"method", "route", "status"})

	// RankDuration records how long a full candidate ranking takes.
	RankDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tripmate_rank_duration_seconds",
		Help:    "Time to rank match candidates for one user",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	// ScoresComputed counts pairwise compatibility scores.
	ScoresComputed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripmate_scores_computed_total",
		Help: "Total number of pairwise compatibility scores computed",
	})

	// MatchesCreated counts newly persisted match records.
	MatchesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripmate_matches_created_total",
		Help: "Total number of match records created",
	})

	// MessagesTotal counts direct messages, labeled by type: "sent",
	// "blocked" or "rate_limited".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripmate_messages_total",
		Help: "Total number of direct messages processed",
	}, []string{"type"})

	// WSConnections tracks the current number of push gateway connections.
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tripmate_ws_connections",
		Help: "Current number of active WebSocket connections",
	})

	// NotificationsPublished counts notification events pushed to NATS.
	NotificationsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripmate_notifications_published_total",
		Help: "Total number of notification events published",
	})

	// ReportsFlagged counts abuse reports that arrived in a burst against
	// the same user.
	ReportsFlagged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripmate_reports_flagged_total",
		Help: "Total number of abuse reports flagged for priority review",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		RankDuration,
		ScoresComputed,
		MatchesCreated,
		MessagesTotal,
		WSConnections,
		NotificationsPublished,
		ReportsFlagged,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
