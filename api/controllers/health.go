package controllers

import (
	"context"
	"net/http"

	"github.com/rfigueroa/shopworks-backend/api/responses"
	"github.com/rfigueroa/shopworks-backend/pkg/config"
	"github.com/rfigueroa/shopworks-backend/pkg/logger"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Healthz probes every hard dependency: the database, redis, and a sentinel
// round trip through the cache. Any failure degrades the whole endpoint.
func Healthz(cfg *config.Config, logg *logger.Logger, dbP Pinger, redisP Pinger, cacheClient CacheChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		checks := map[string]string{
			"database": "ok",
			"redis":    "ok",
			"cache":    "ok",
		}
		healthy := true

		if err := dbP.Ping(ctx); err != nil {
			logg.Error(ctx, "health database ping failed", err)
			checks["database"] = "unreachable"
			healthy = false
		}
		if err := redisP.Ping(ctx); err != nil {
			logg.Error(ctx, "health redis ping failed", err)
			checks["redis"] = "unreachable"
			healthy = false
		}
		if err := cacheClient.HealthCheck(ctx); err != nil {
			logg.Error(ctx, "health cache round trip failed", err)
			checks["cache"] = "degraded"
			healthy = false
		}

		status := "ok"
		code := http.StatusOK
		if !healthy {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("X-Shopworks-Env", cfg.App.Env)
		responses.WriteSuccessStatus(w, code, map[string]any{
			"status": status,
			"checks": checks,
		})
	}
}
