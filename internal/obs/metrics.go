package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_validation_total",
			Help: "Magic-link validation outcomes.",
		},
		[]string{"result"},
	)

	locksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "conversation_locks_total",
		Help: "Conversations locked by suspicion heuristics or admins.",
	})
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
		validationsTotal, locksTotal)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncValidation counts one validation outcome ("success" or an error code).
func IncValidation(result string) {
	validationsTotal.WithLabelValues(result).Inc()
}

// IncLock counts one conversation lock transition.
func IncLock() {
	locksTotal.Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers so metric cardinality stays
// bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if rest, ok := strings.CutPrefix(path, "/v1/admin/conversations/"); ok && rest != "" {
		switch {
		case strings.HasSuffix(rest, "/lock") && strings.Count(rest, "/") == 1:
			return "/v1/admin/conversations/:id/lock"
		case strings.HasSuffix(rest, "/unlock") && strings.Count(rest, "/") == 1:
			return "/v1/admin/conversations/:id/unlock"
		case strings.HasSuffix(rest, "/resend") && strings.Count(rest, "/") == 1:
			return "/v1/admin/conversations/:id/resend"
		case !strings.Contains(rest, "/"):
			return "/v1/admin/conversations/:id"
		}
	}
	return path
}

// statusWriter is a local copy so the wrapper can observe the response code.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
