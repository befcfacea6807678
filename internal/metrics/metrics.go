// Package metrics provides Prometheus metrics for the MirrorLens server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirrorlens_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mirrorlens_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Sync metrics
	syncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirrorlens_sync_runs_total",
			Help: "Total number of sync runs",
		},
		[]string{"status"},
	)

	syncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mirrorlens_sync_duration_seconds",
			Help:    "Duration of a full sync run",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	filesDownloadedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mirrorlens_files_downloaded_total",
			Help: "Total files downloaded from the remote store",
		},
	)

	filesEmbeddedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mirrorlens_files_embedded_total",
			Help: "Total files embedded",
		},
	)

	filesEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mirrorlens_files_evicted_total",
			Help: "Total cache entries evicted",
		},
	)

	mirrorEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mirrorlens_mirror_entries",
			Help: "Number of mirrored entries per user",
		},
		[]string{"user"},
	)

	// Search metrics
	searchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mirrorlens_search_duration_seconds",
			Help:    "Duration of a search call",
			Buckets: prometheus.DefBuckets,
		},
	)

	resultCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirrorlens_result_cache_total",
			Help: "Result cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	// SSE metrics
	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mirrorlens_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirrorlens_sse_events_total",
			Help: "Total SSE events published",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSyncRun records a completed or failed sync run.
func RecordSyncRun(status string, d time.Duration) {
	syncRunsTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		syncDuration.Observe(d.Seconds())
	}
}

// RecordDownload increments the downloaded-files counter.
func RecordDownload() { filesDownloadedTotal.Inc() }

// RecordEmbedded increments the embedded-files counter.
func RecordEmbedded() { filesEmbeddedTotal.Inc() }

// RecordEvicted adds to the evicted-entries counter.
func RecordEvicted(n int) { filesEvictedTotal.Add(float64(n)) }

// SetMirrorEntries sets the per-user mirror size gauge.
func SetMirrorEntries(user string, n int) {
	mirrorEntries.WithLabelValues(user).Set(float64(n))
}

// RecordSearch records a search call's duration.
func RecordSearch(d time.Duration) { searchDuration.Observe(d.Seconds()) }

// RecordResultCache records a result-cache hit or miss.
func RecordResultCache(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	resultCacheHits.WithLabelValues(outcome).Inc()
}

// SetSSEConnectionsActive sets the active SSE connection gauge.
func SetSSEConnectionsActive(n int64) { sseConnectionsActive.Set(float64(n)) }

// RecordSSEEvent increments the published SSE event counter.
func RecordSSEEvent(eventType string) { sseEventsTotal.WithLabelValues(eventType).Inc() }

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming handlers working behind the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware wraps an HTTP handler with request metrics.
func Middleware(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
