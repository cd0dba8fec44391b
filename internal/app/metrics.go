package app

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "Total HTTP requests handled by the portal API",
		},
		[]string{"method", "action", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "HTTP request duration for the portal API in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "action"},
	)
)

// metricsMiddleware records request counts and latency. The action parameter
// is normalized against the dispatch table so unknown values cannot blow up
// label cardinality.
func metricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			label := normalizeAction(r)

			wrapped := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.Status())
			httpRequestsTotal.WithLabelValues(r.Method, label, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, label).Observe(duration)
		})
	}
}

func normalizeAction(r *http.Request) string {
	if r.URL.Path != "/api/portal" {
		return r.URL.Path
	}
	action := r.URL.Query().Get("action")
	if _, ok := actions[action]; ok {
		return action
	}
	return "unknown"
}
