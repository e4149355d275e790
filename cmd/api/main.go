package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/mzahrani/backend-voucherhub/internal/catalog"
	"github.com/mzahrani/backend-voucherhub/internal/common"
	"github.com/mzahrani/backend-voucherhub/internal/config"
	"github.com/mzahrani/backend-voucherhub/internal/database"
	"github.com/mzahrani/backend-voucherhub/internal/events"
	"github.com/mzahrani/backend-voucherhub/internal/health"
	"github.com/mzahrani/backend-voucherhub/internal/obs"
	"github.com/mzahrani/backend-voucherhub/internal/option"
	"github.com/mzahrani/backend-voucherhub/internal/order"
	"github.com/mzahrani/backend-voucherhub/internal/pricing"
	"github.com/mzahrani/backend-voucherhub/internal/provider"
	"github.com/mzahrani/backend-voucherhub/internal/queue"
	"github.com/mzahrani/backend-voucherhub/internal/ratelimit"
	"github.com/mzahrani/backend-voucherhub/internal/resilience"
	"github.com/mzahrani/backend-voucherhub/internal/security"
	"github.com/mzahrani/backend-voucherhub/internal/stockmon"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "voucherhub")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "voucherhub-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if envBool("DB_RUN_MIGRATIONS", false) {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "voucherhub-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

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
		Store: eventStore,
		Notifiers: []events.Notifier{
			events.MetricsNotifier{},
			events.LogNotifier{Logger: logger},
		},
	}

	conversion := pricing.Conversion{Rate: cfg.USDConversionRate, Currency: cfg.StoreCurrencyCode}
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Provider:   providerClient,
		Cache:      catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		Conversion: conversion,
		Bus:        bus,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService})

	optionRepo, err := option.NewRepo(pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise option repo")
	}
	optionService, err := option.NewService(option.ServiceConfig{
		Facts:    catalogService,
		Repo:     optionRepo,
		Bus:      bus,
		Rate:     cfg.USDConversionRate,
		Currency: cfg.StoreCurrencyCode,
		Debounce: cfg.CommitDebounce,
		Logger:   logger,
		// Keep the catalog's presentation prices on the session rate.
		OnRateChange: catalogService.SetConversion,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise option service")
	}
	optionHandler, err := option.NewHandler(option.HandlerConfig{Service: optionService})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise option handler")
	}

	// Seed the price session once the catalog snapshot is available. A cold
	// upstream at boot is not fatal: the seeding runs after whichever refresh
	// lands the first snapshot, and retries on the next if the load fails.
	var sessionSeeded atomic.Bool
	catalogService.OnSnapshot(func() {
		if sessionSeeded.Load() {
			return
		}
		if err := optionService.Bootstrap(context.Background()); err != nil {
			logger.Error().Err(err).Msg("bootstrap price session")
			return
		}
		sessionSeeded.Store(true)
	})
	if err := catalogService.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial catalog refresh failed")
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
	orderHandler, err := order.NewHandler(order.HandlerConfig{Service: orderService})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise order handler")
	}

	enqueuer := queue.Enqueuer{R: redisClient, Prefix: cfg.QueueRedisPrefix, DedupTTL: cfg.IdempotencyTTL, MaxAttempts: cfg.QueueMaxAttempts}
	stockRepo, err := stockmon.NewRepo(pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise stock repo")
	}
	stockService, err := stockmon.NewService(stockmon.ServiceConfig{
		Repo:   stockRepo,
		Queue:  enqueuer,
		Bus:    bus,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise stock service")
	}
	stockHandler, err := stockmon.NewHandler(stockmon.HandlerConfig{Service: stockService})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise stock handler")
	}

	queueAdmin := &queue.AdminHandler{
		Store:  queue.NewStore(pool),
		Queue:  enqueuer,
		Logger: logger,
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	limiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: cfg.QueueRedisPrefix + ":"},
		Config: ratelimit.Config{
			Key:    clientKey,
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter degraded") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true}.Middleware)
	r.Use(security.BodyLimit{Max: envInt64("SECURE_MAX_BODY_BYTES", 1<<20)}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", true)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(limiter.Middleware)

		v.Get("/catalog/products", catalogHandler.Products)
		v.Get("/catalog/products/{code}", catalogHandler.ProductDetail)
		v.Post("/catalog/refresh", catalogHandler.Refresh)

		v.Get("/options", optionHandler.List)
		v.Get("/options/{code}", optionHandler.Detail)
		v.Patch("/options/{code}/price", optionHandler.EditCustomPrice)
		v.Patch("/options/{code}/markup", optionHandler.EditMarkup)
		v.Post("/pricing/conversion-rate", optionHandler.ChangeRate)

		v.Get("/orders", orderHandler.List)
		v.With(idem.Middleware).Post("/orders", orderHandler.Place)
		v.Get("/orders/{id}", orderHandler.Get)

		v.Get("/stock/plans", stockHandler.Plans)
		v.Put("/stock/{code}/threshold", stockHandler.SetThreshold)
		v.With(idem.Middleware).Post("/stock/replenish", stockHandler.Replenish)

		v.Route("/admin/queue", func(admin chi.Router) {
			admin.Get("/dlq", queueAdmin.ListDLQ)
			admin.Post("/dlq/{id}/replay", queueAdmin.ReplayDLQ)
			admin.Get("/stats", queueAdmin.Stats)
		})
		v.Get("/admin/events", events.Handler{Store: eventStore}.Recent)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down")
	health.SetReady(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	// Pending debounced price commits must not be lost on exit.
	if err := optionService.Flush(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("flush price commits")
	}
	optionService.Close()
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func clientKey(r *http.Request) string {
	return "rl:" + common.ClientIP(r)
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
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

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
