// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dataapi_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dataapi_http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})

	occurrencesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dataapi_occurrences_created_total",
		Help: "Occurrences registered via POST /occurrence",
	})

	analysisTypesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dataapi_analysis_types_created_total",
		Help: "Analysis types registered via POST /analysis-type",
	})

	authFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataapi_auth_failures_total",
		Help: "Rejected requests by failure reason",
	}, []string{"reason"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataapi_cache_lookups_total",
		Help: "Response cache lookups by entity and outcome",
	}, []string{"entity", "outcome"})

	rateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dataapi_rate_limit_rejections_total",
		Help: "Requests rejected by the per-client rate limiter",
	})
)

// Metrics records Prometheus metrics for every request. The chi route
// pattern is used as the path label to keep cardinality bounded.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		httpRequestDuration.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
