package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mzahrani/backend-voucherhub/internal/config"
	"github.com/mzahrani/backend-voucherhub/internal/events"
	"github.com/mzahrani/backend-voucherhub/internal/lock"
	"github.com/mzahrani/backend-voucherhub/internal/obs"
	"github.com/mzahrani/backend-voucherhub/internal/order"
	"github.com/mzahrani/backend-voucherhub/internal/provider"
	"github.com/mzahrani/backend-voucherhub/internal/queue"
	"github.com/mzahrani/backend-voucherhub/internal/resilience"
	"github.com/mzahrani/backend-voucherhub/internal/stockmon"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "voucherhub"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	breaker := resilience.NewBreaker(cfg.CircuitProviderMinReq, cfg.CircuitProviderFailureRate, cfg.CircuitProviderOpenFor).
		WithTarget("voucher-provider").
		WithLogger(logger)
	providerClient := &provider.Client{
		BaseURL: cfg.ProviderBaseURL,
		APIKey:  cfg.ProviderAPIKey,
		HTTP: &resilience.HTTPClient{
			Client:      &http.Client{},
			Breaker:     breaker,
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      cfg.RetryJitterPercent,
			Timeout:     cfg.OutboundTimeout,
		},
	}

	eventStore, err := events.NewStore(pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise event store")
	}
	bus := &events.Bus{
		Store:     eventStore,
		Notifiers: []events.Notifier{events.MetricsNotifier{}, events.LogNotifier{Logger: logger}},
	}

	orderRepo, err := order.NewRepo(pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise order repo")
	}
	orderService, err := order.NewService(order.ServiceConfig{
		Repo:     orderRepo,
		Provider: providerClient,
		Bus:      bus,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise order service")
	}

	stockRepo, err := stockmon.NewRepo(pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise stock repo")
	}
	stockService, err := stockmon.NewService(stockmon.ServiceConfig{
		Repo:   stockRepo,
		Queue:  queue.Enqueuer{R: redisClient, Prefix: cfg.QueueRedisPrefix, DedupTTL: cfg.IdempotencyTTL, MaxAttempts: cfg.QueueMaxAttempts},
		Bus:    bus,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise stock service")
	}

	replenisher := stockmon.Replenisher{
		Orders: orderService,
		Stock:  stockRepo,
		Locker: lock.Locker{R: redisClient},
		Prefix: cfg.QueueRedisPrefix,
		Logger: logger,
	}

	replenishWorker := queue.Worker{
		R:                 redisClient,
		Prefix:            cfg.QueueRedisPrefix,
		Kind:              stockmon.TaskKindReplenish,
		Concurrency:       cfg.QueueConcurrency,
		VisibilityTimeout: 60 * time.Second,
		RetryBase:         cfg.QueueBackoffBase,
		Handler:           replenisher.Handle,
		Store:             queue.NewStore(pool),
		Logger:            &logger,
	}

	// Periodic sweep: derive plans and queue purchases for every shortage.
	sweepInterval := envDuration("STOCK_SWEEP_INTERVAL", time.Minute)
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				queued, err := stockService.RequestReplenishment(ctx)
				if err != nil {
					logger.Error().Err(err).Msg("replenishment sweep failed")
					continue
				}
				if len(queued) > 0 {
					logger.Info().Int("queued", len(queued)).Msg("replenishment sweep")
				}
			}
		}
	}()

	logger.Info().Msg("worker starting")
	if err := replenishWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
	} else {
		logger.Info().Msg("worker shutdown complete")
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "voucherhub-worker"
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(val)); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
