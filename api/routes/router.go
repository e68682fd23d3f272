package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rfigueroa/shopworks-backend/api/controllers"
	"github.com/rfigueroa/shopworks-backend/api/middleware"
	"github.com/rfigueroa/shopworks-backend/pkg/config"
	"github.com/rfigueroa/shopworks-backend/pkg/logger"
)

type cacheSurface interface {
	controllers.CacheChecker
	controllers.CacheAdmin
}

// NewRouter wires the operational surface: health, metrics, and cache
// administration. Domain services are consumed as libraries, not routed here.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	cacheClient cacheSurface,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Get("/healthz", controllers.Healthz(cfg, logg, dbP, redisP, cacheClient))

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/admin/cache", func(r chi.Router) {
		r.Get("/sizes", controllers.CacheSizes(cacheClient, logg))
		r.Post("/clear", controllers.CacheClearAll(cacheClient, logg))
		r.Post("/{namespace}/clear", controllers.CacheClear(cacheClient, logg))
		r.Post("/{namespace}/invalidate", controllers.CacheInvalidate(cacheClient, logg))
	})

	return r
}
