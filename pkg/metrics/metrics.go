// Package metrics holds the HTTP server metrics and the catalogue of every
// metric the service exports. Domain metrics are defined in their own
// packages (cache, lock, client, ratelimit, coordinator, statistics) and
// registered via promauto on import.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registerer used by the service.
// All metrics are registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

var (
	// HTTPRequestsTotal counts inbound requests by route template and status class.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexusmods_http_requests_total",
		Help: "Inbound HTTP requests by method, route and status class",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration observes inbound request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nexusmods_http_request_duration_seconds",
		Help:    "Inbound HTTP request latency by method and route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// HTTPRequestsInFlight is the number of requests being served.
	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nexusmods_http_requests_in_flight",
		Help: "Inbound HTTP requests currently being served",
	})

	// BadgesTotal counts badge responses by badge and color.
	BadgesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexusmods_badges_total",
		Help: "Badge responses by badge and result",
	}, []string{"badge", "result"}) // result: "success", "error"
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records HTTP metrics for every request passing through a mux
// router. Routes are labelled by their template, unmatched paths as "other".
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeTemplate(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, route, statusClass(recorder.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "other"
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Metrics Documentation
//
// HTTP Metrics (pkg/metrics):
//   - nexusmods_http_requests_total{method, route, status} (Counter)
//   - nexusmods_http_request_duration_seconds{method, route} (Histogram)
//   - nexusmods_http_requests_in_flight (Gauge)
//   - nexusmods_badges_total{badge, result} (Counter): badge responses, result success|error
//
// Cache Metrics (pkg/cache):
//   - nexusmods_cache_hits_total{backend} (Counter)
//   - nexusmods_cache_misses_total{backend} (Counter)
//   - nexusmods_cache_errors_total{backend, operation} (Counter)
//
// Lock Metrics (pkg/lock):
//   - nexusmods_lock_keys{registry} (Gauge): locks created, never evicted
//   - nexusmods_lock_wait_seconds{registry} (Histogram)
//   - nexusmods_lock_acquire_failures_total{registry} (Counter): aborted waits
//
// Coordinator Metrics (pkg/coordinator):
//   - nexusmods_coordinator_requests_total{outcome} (Counter): hit, shared, fetched, unchanged, stale, absent
//   - nexusmods_coordinator_failures_total{error_class} (Counter)
//
// Live Statistics Metrics (pkg/statistics):
//   - nexusmods_stats_pulls_total{result} (Counter): ok, status, transport, canceled
//   - nexusmods_stats_records_total (Counter)
//   - nexusmods_stats_decode_errors_total (Counter)
//
// Upstream Metrics (pkg/client):
//   - nexusmods_upstream_requests_total{upstream, status} (Counter)
//   - nexusmods_upstream_request_duration_seconds{upstream} (Histogram)
//   - nexusmods_retries_total{reason} (Counter)
//   - nexusmods_retry_backoff_seconds{reason} (Histogram)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - nexusmods_rate_limit_remaining{window} (Gauge): daily, hourly
//   - nexusmods_rate_limit_exhausted_total{window} (Counter)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(nexusmods_cache_hits_total[5m])) /
//   (sum(rate(nexusmods_cache_hits_total[5m])) + sum(rate(nexusmods_cache_misses_total[5m])))
//
//   # Stale Serving Rate
//   rate(nexusmods_coordinator_requests_total{outcome="stale"}[5m])
//
//   # Hourly Window Headroom
//   nexusmods_rate_limit_remaining{window="hourly"} < 10
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(nexusmods_upstream_request_duration_seconds_bucket[5m]))
