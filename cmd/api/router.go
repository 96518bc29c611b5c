package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/FACorreiaa/loci-proximity-api/pkg/interceptors"
	"github.com/FACorreiaa/loci-proximity-api/pkg/observability"
)

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Health() error
}

// SetupRouter configures all routes and returns the HTTP handler
func SetupRouter(deps *Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(interceptors.NewLoggingInterceptor(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(observability.NewMetricsMiddleware())

	r.Use(cors.New(cors.Options{
		AllowedOrigins:   deps.Config.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: true,
	}).Handler)

	registerUtilityRoutes(r, deps, deps.DB)

	r.Group(func(r chi.Router) {
		if deps.Config.Server.RateLimitPerSecond > 0 && deps.Config.Server.RateLimitBurst > 0 {
			limiter := interceptors.NewRateLimiter(
				float64(deps.Config.Server.RateLimitPerSecond),
				deps.Config.Server.RateLimitBurst,
				10*time.Minute,
			)
			r.Use(limiter.Middleware)
		}

		r.Route("/v1/locations", deps.DiscoverHandler.Routes)
		r.Route("/v1/places", deps.POIHandler.Routes)
	})

	deps.Logger.Info("HTTP routes configured")
	return r
}

// registerUtilityRoutes registers health check, metrics, and other utility routes
func registerUtilityRoutes(r chi.Router, deps *Dependencies, store HealthChecker) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Ready only when the database answers.
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Health(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unhealthy"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
		deps.Logger.Info("registered metrics endpoint", "path", "/metrics")
	}
}
