package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/dfaith-labs/payout-service/api/responses"
	"github.com/dfaith-labs/payout-service/pkg/config"
	pkgerrors "github.com/dfaith-labs/payout-service/pkg/errors"
	"github.com/dfaith-labs/payout-service/pkg/logger"
	"github.com/dfaith-labs/payout-service/pkg/redis"
)

const envHeader = "X-Payout-Env"

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the optional dependencies. A nil pinger means the
// dependency is not wired and is skipped rather than reported down.
func HealthReady(cfg *config.Config, logg *logger.Logger, redisClient redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if redisClient != nil {
			if err := redisClient.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
