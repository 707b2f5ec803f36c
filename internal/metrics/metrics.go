package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattosat_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sattosat_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	searchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sattosat_search_duration_seconds",
			Help:    "Wall time of one conjunction search.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	searchCandidatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattosat_search_candidates_total",
			Help: "Local minima flagged by the coarse scan, before merging.",
		},
	)

	conjunctionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattosat_conjunctions_total",
			Help: "Conjunctions returned to callers.",
		},
	)

	propagationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattosat_propagation_failures_total",
			Help: "Propagation calls that produced no usable state.",
		},
	)

	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattosat_result_cache_requests_total",
			Help: "Result cache lookups by outcome.",
		},
		[]string{"result"},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sattosat_result_cache_entries",
			Help: "Entries currently held in the result cache.",
		},
	)

	streamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sattosat_stream_clients",
			Help: "Connected distance stream clients.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattosat_stream_messages_total",
			Help: "SSE messages sent to distance stream clients.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattosat_stream_errors_total",
			Help: "Distance stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		searchDurationSeconds,
		searchCandidatesTotal,
		conjunctionsTotal,
		propagationFailuresTotal,
		cacheRequestsTotal,
		cacheEntries,
		streamClients,
		streamMessagesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSearch records one completed conjunction search.
func RecordSearch(duration time.Duration, candidates, results int) {
	searchDurationSeconds.Observe(duration.Seconds())
	searchCandidatesTotal.Add(float64(candidates))
	conjunctionsTotal.Add(float64(results))
}

// RecordPropagationFailures adds n failed propagation calls.
func RecordPropagationFailures(n int) {
	if n > 0 {
		propagationFailuresTotal.Add(float64(n))
	}
}

// RecordCacheLookup counts a result cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		cacheRequestsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheRequestsTotal.WithLabelValues("miss").Inc()
}

// SetCacheEntries sets the result cache size gauge.
func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}

// StreamConnected increments the live stream client gauge.
func StreamConnected() { streamClients.Inc() }

// StreamDisconnected decrements the live stream client gauge.
func StreamDisconnected() { streamClients.Dec() }

// IncStreamMessages counts one SSE message sent.
func IncStreamMessages() { streamMessagesTotal.Inc() }

// IncStreamErrors counts a stream error by reason (ip_limit, total_limit, send_error).
func IncStreamErrors(reason string) { streamErrorsTotal.WithLabelValues(reason).Inc() }

var exactRoutes = map[string]bool{
	"/":                          true,
	"/healthz":                   true,
	"/readyz":                    true,
	"/metrics":                   true,
	"/api/v1/conjunctions":       true,
	"/api/v1/conjunctions/batch": true,
	"/api/v1/distance/curve":     true,
	"/api/v1/distance/current":   true,
	"/api/v1/cache/stats":        true,
	"/api/v1/stream/distance":    true,
	"/api/v1/satellites":         true,
}

// normalizeRoute maps a request path to a bounded set of metric labels so
// scanners and per-satellite paths cannot blow up label cardinality.
func normalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}
	if id, ok := strings.CutPrefix(path, "/api/v1/satellites/"); ok && isDigits(id) {
		return "/api/v1/satellites/{norad_id}"
	}
	return "other"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers behind the middleware flush.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
