package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ETLRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmdss_etl_runs_total",
			Help: "Total number of ETL runs by outcome",
		},
		[]string{"status"},
	)

	ETLRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pmdss_etl_run_duration_seconds",
			Help:    "Duration of ETL runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	ETLRowsLoaded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pmdss_etl_rows_loaded",
			Help: "Rows written to each warehouse table by the last ETL run",
		},
		[]string{"table"},
	)

	ETLDroppedRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmdss_etl_dropped_rows_total",
			Help: "Source rows dropped because a surrogate key could not be resolved",
		},
		[]string{"fact", "reason"},
	)

	ETLLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pmdss_etl_last_success_timestamp_seconds",
			Help: "Unix time of the last successful ETL run",
		},
	)

	MetricsCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmdss_api_metrics_cache_total",
			Help: "Metric read cache lookups by result",
		},
		[]string{"view", "result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmdss_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pmdss_api_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pmdss_api_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
