// Package observability provides the Prometheus collectors of the API.
package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/FACorreiaa/loci-proximity-api/internal/types"
)

var (
	// CacheLookups tracks local store lookups by outcome (hit, miss, error)
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proximity",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of local store lookups by operation and result",
		},
		[]string{"operation", "result"},
	)

	// ProviderCalls tracks outbound provider calls by outcome (ok, not_found, error)
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proximity",
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Total number of places provider calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// BackfillErrors counts per-item failures of detail backfills
	BackfillErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "proximity",
			Subsystem: "places",
			Name:      "backfill_errors_total",
			Help:      "Total number of places that failed during a detail backfill",
		},
	)

	// HTTPRequestsTotal tracks inbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proximity",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks inbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "proximity",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// RecordCacheLookup records a local store lookup
func RecordCacheLookup(operation, result string) {
	CacheLookups.WithLabelValues(operation, result).Inc()
}

// RecordProviderCall records a provider call, classifying err into an outcome
func RecordProviderCall(operation string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, locitypes.ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	ProviderCalls.WithLabelValues(operation, outcome).Inc()
}

// NewMetricsMiddleware records count and latency of every request by chi route pattern.
func NewMetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}
