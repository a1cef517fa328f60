// Package metrics provides Prometheus metrics for the repertoire client.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes.
const (
	RefreshSucceeded = "succeeded"
	RefreshFailed    = "failed"
	// RefreshJoined counts callers that waited for, or arrived after, another caller's refresh.
	RefreshJoined = "joined"
	// RefreshAbandoned counts refreshes cut short by the caller's context.
	RefreshAbandoned = "abandoned"
)

var (
	// Request metrics
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repertoire_requests_total",
			Help: "Total number of backend requests by method and status",
		},
		[]string{"method", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repertoire_request_duration_seconds",
			Help:    "Backend request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Session metrics
	refreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repertoire_token_refresh_total",
			Help: "Token refresh handling by outcome",
		},
		[]string{"outcome"},
	)

	// Interceptor metrics
	effectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repertoire_failure_effects_total",
			Help: "Navigation and notification side effects by kind",
		},
		[]string{"effect"},
	)

	notificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "repertoire_notifications_dropped_total",
			Help: "Notifications dropped by the rate limiter",
		},
	)

	// Cache metrics
	invalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repertoire_cache_invalidations_total",
			Help: "Cache tag invalidations by source",
		},
		[]string{"source"},
	)

	invalidatedEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repertoire_cache_invalidated_entries_total",
			Help: "Cache entries marked stale by source",
		},
		[]string{"source"},
	)

	// Realtime metrics
	realtimeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repertoire_realtime_events_total",
			Help: "Realtime publications received by action",
		},
		[]string{"action"},
	)

	realtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "repertoire_realtime_connection_refs",
			Help: "Active references to the realtime connection",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records a completed backend request. status is 0 for transport failures.
func RecordRequest(method string, status int, duration time.Duration) {
	requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRefresh records how a 401 was handled.
func RecordRefresh(outcome string) {
	refreshTotal.WithLabelValues(outcome).Inc()
}

// RecordEffect records an interceptor side effect ("navigate", "notify").
func RecordEffect(effect string) {
	effectsTotal.WithLabelValues(effect).Inc()
}

// RecordNotificationDropped records a throttled notification.
func RecordNotificationDropped() {
	notificationsDropped.Inc()
}

// RecordInvalidation records a tag invalidation and how many entries it marked.
func RecordInvalidation(source string, marked int) {
	invalidationsTotal.WithLabelValues(source).Inc()
	invalidatedEntries.WithLabelValues(source).Add(float64(marked))
}

// RecordRealtimeEvent records an inbound publication.
func RecordRealtimeEvent(action string) {
	realtimeEventsTotal.WithLabelValues(action).Inc()
}

// SetRealtimeRefs sets the number of active connection references.
func SetRealtimeRefs(n int) {
	realtimeConnections.Set(float64(n))
}
