package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dfaith-labs/payout-service/api/controllers"
	"github.com/dfaith-labs/payout-service/api/middleware"
	"github.com/dfaith-labs/payout-service/internal/payouts"
	"github.com/dfaith-labs/payout-service/pkg/config"
	"github.com/dfaith-labs/payout-service/pkg/logger"
	"github.com/dfaith-labs/payout-service/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	payoutService *payouts.Service,
	redisClient *redis.Client,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		var pinger redis.Pinger
		if redisClient != nil {
			pinger = redisClient
		}
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pinger))
	})

	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	intakePolicy := middleware.NewIntakeRateLimitPolicy(
		cfg.RateLimit.Window,
		cfg.RateLimit.IPLimit,
		cfg.RateLimit.AddressLimit,
	)

	r.Route("/api/v1/payouts", func(r chi.Router) {
		submit := r
		if redisClient != nil {
			submit = r.With(middleware.IntakeRateLimit(intakePolicy, redisClient, logg))
		}
		submit.Post("/", controllers.SubmitPayout(payoutService, logg))
		r.Get("/", controllers.QueueStatus(payoutService, logg))
		r.Get("/{payoutId}", controllers.GetPayout(payoutService, logg))
	})

	return r
}
