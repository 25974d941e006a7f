package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"

	"github.com/dfaith-labs/payout-service/api/routes"
	"github.com/dfaith-labs/payout-service/internal/payouts"
	"github.com/dfaith-labs/payout-service/pkg/config"
	"github.com/dfaith-labs/payout-service/pkg/logger"
	"github.com/dfaith-labs/payout-service/pkg/metrics"
	"github.com/dfaith-labs/payout-service/pkg/redis"
	"github.com/dfaith-labs/payout-service/pkg/tatum"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "payout-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "payout-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		warnCtx := logg.WithField(context.Background(), "env", config.EnvRedisURL)
		logg.Warn(warnCtx, "redis not configured, intake rate limiting disabled")
	}

	// A missing wallet or provider key is not fatal: the service boots and
	// fails payouts individually so queue status stays reachable.
	var broadcaster payouts.Broadcaster
	tatumClient, err := tatum.NewClient(tatum.Config{
		APIKey:          cfg.Tatum.APIKey,
		SigningKey:      cfg.Wallet.SigningKey,
		Chain:           cfg.Token.Chain,
		ContractAddress: cfg.Token.ContractAddress,
		TokenDecimals:   cfg.Token.Decimals,
		TokenGasLimit:   cfg.Tatum.TokenGasLimit,
		NativeGasLimit:  cfg.Tatum.NativeGasLimit,
		GasPrice:        cfg.Tatum.GasPrice,
	}, tatum.WithBaseURL(cfg.Tatum.BaseURL))
	if err != nil {
		warnCtx := logg.WithField(context.Background(), "env",
			[]string{config.EnvTatumAPIKey, config.EnvSigningKey})
		logg.Warn(warnCtx, "broadcast provider not configured, payouts will fail until credentials are set")
	} else {
		broadcaster = tatumClient
	}

	nativeAmount := decimal.Zero
	if amount, err := cfg.Wallet.NativeAmountDecimal(); err == nil {
		nativeAmount = amount
	} else {
		warnCtx := logg.WithField(context.Background(), "env", config.EnvNativeAmount)
		logg.Warn(warnCtx, "native payout amount not configured")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	payoutMetrics := metrics.NewPayoutMetrics(registry)

	queue, err := payouts.NewQueue(payouts.QueueParams{
		Logger:          logg,
		Broadcaster:     broadcaster,
		Metrics:         payoutMetrics,
		NativeAmount:    nativeAmount,
		ConfirmAttempts: cfg.Queue.ConfirmAttempts,
		ConfirmDelay:    cfg.Queue.ConfirmDelay,
		DrainInterval:   cfg.Queue.DrainInterval,
		HistoryLimit:    cfg.Queue.HistoryLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payout queue", err)
		os.Exit(1)
	}
	payoutService := payouts.NewService(logg, queue)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := queue.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(rootCtx, "payout drain loop stopped unexpectedly", err)
		}
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting payout api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, payoutService, redisClient, registry),
	}

	go func() {
		<-rootCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "error shutting down server", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "payout api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "payout api server stopped")
}
