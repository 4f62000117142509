// Package metrics holds the Prometheus collectors for the HTTP server, the
// AI client and the persistence façade.
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
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vitrine",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitrine",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vitrine",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	visionRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitrine",
			Subsystem: "vision",
			Name:      "requests_total",
			Help:      "Total number of AI analysis calls by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	visionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vitrine",
			Subsystem: "vision",
			Name:      "request_duration_seconds",
			Help:      "Duration of AI analysis calls.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~32s
		},
		[]string{"op"},
	)

	storageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitrine",
			Subsystem: "storage",
			Name:      "failures_total",
			Help:      "Total number of failed persistence operations.",
		},
		[]string{"backend", "op"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		visionRequests,
		visionDuration,
		storageFailures,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordVision records one AI call. outcome is "ok", "fallback" or "error".
func RecordVision(op, outcome string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	visionRequests.WithLabelValues(op, outcome).Inc()
	visionDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordStorageFailure counts a failed persistence operation.
func RecordStorageFailure(backend, op string) {
	storageFailures.WithLabelValues(backend, op).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// routes lists the label values a request path may collapse to.
var routes = map[string]bool{
	"/":                 true,
	"/reload":           true,
	"/navigate":         true,
	"/back":             true,
	"/flash/dismiss":    true,
	"/login":            true,
	"/logout":           true,
	"/setup":            true,
	"/setup/colors":     true,
	"/scan":             true,
	"/details":          true,
	"/delete/confirm":   true,
	"/delete/cancel":    true,
	"/items/:id":        true,
	"/items/:id/edit":   true,
	"/items/:id/toggle": true,
	"/items/:id/delete": true,
	"/static":           true,
	"/api/health":       true,
	"/api/profile":      true,
	"/api/items":        true,
	"/api/items/:id":    true,
}

// canonicalPath collapses item ids so label cardinality stays bounded:
// /api/items/01H... becomes /api/items/:id. Static assets share one label
// and anything unrouted is "other".
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] == "static" {
		return "/static"
	}
	for i := 1; i < len(parts); i++ {
		if parts[i-1] == "items" {
			parts[i] = ":id"
		}
	}
	path := "/" + strings.Join(parts, "/")
	if !routes[path] {
		return "other"
	}
	return path
}
