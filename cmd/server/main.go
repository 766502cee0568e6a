// Package main is the entry point for the Course Match Hub API server.
//
// The server owns the candidate-facing flow: grade submission, payment
// initiation against the mobile money gateway, the payment webhook, status
// polling, and result retrieval. Scheduled reconciliation runs in the
// separate worker binary.
//
// Architecture follows Clean Architecture and DDD:
// - Domain: pure matching and payment rules without external dependencies
// - Application: use case orchestration (Commands/Queries/Fulfillment)
// - Infrastructure: PostgreSQL, Redis, gateway client, metrics
// - Interface: HTTP handlers and the payment webhook
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kuccps-hub/course-match-hub/config"
	"github.com/kuccps-hub/course-match-hub/internal/application/command"
	"github.com/kuccps-hub/course-match-hub/internal/application/fulfillment"
	"github.com/kuccps-hub/course-match-hub/internal/application/query"
	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/result"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/external/gateway"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/messaging"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/observability"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/persistence/memory"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/persistence/postgres"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/persistence/redis"
	httpserver "github.com/kuccps-hub/course-match-hub/internal/interface/http"
	"github.com/kuccps-hub/course-match-hub/internal/interface/http/handlers"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Level: logger.ParseLevel(cfg.Observability.LogLevel),
	})
	log.Info("starting course match hub server",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version))

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	dbConn, err := connectDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	if cfg.Database.RunMigrations {
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EPHEMERAL STORES (Redis, or in-memory when disabled)
	// ─────────────────────────────────────────────────────────────────────────
	profiles, leases, statusCache, redisCache, err := buildEphemeralStores(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize session stores: %w", err)
	}
	if redisCache != nil {
		defer redisCache.Close()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	payments := postgres.NewPaymentRepository(dbConn)
	results := postgres.NewResultRepository(dbConn)
	catalogSource := postgres.NewCatalogSource(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. OBSERVABILITY
	// ─────────────────────────────────────────────────────────────────────────
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.New()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultConfig()
	busConfig.WorkerPoolSize = cfg.Fulfillment.EventWorkers
	busConfig.Logger = log
	bus := messaging.NewBus(busConfig)
	defer func() { _ = bus.Close() }()

	if metrics != nil {
		registerMetricObservers(bus, metrics)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. PAYMENT GATEWAY CLIENT
	// ─────────────────────────────────────────────────────────────────────────
	gatewayConfig := gateway.DefaultClientConfig(cfg.Gateway.BaseURL)
	gatewayConfig.ConsumerKey = cfg.Gateway.ConsumerKey
	gatewayConfig.ConsumerSecret = cfg.Gateway.ConsumerSecret
	gatewayConfig.ShortCode = cfg.Gateway.ShortCode
	gatewayConfig.Passkey = cfg.Gateway.Passkey
	gatewayConfig.CallbackURL = cfg.Gateway.CallbackURL
	gatewayConfig.Timeout = cfg.Gateway.RequestTimeout
	gatewayConfig.RequestsPerSecond = cfg.Gateway.RequestsPerSecond
	gatewayConfig.Logger = log
	gatewayClient := gateway.NewClient(gatewayConfig)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. FULFILLMENT PIPELINE
	// ─────────────────────────────────────────────────────────────────────────
	scanner := fulfillment.NewScanner(catalogSource, log)
	coordinator := fulfillment.NewCoordinator(
		results, leases, statusCache, profiles, scanner, bus, log,
		fulfillment.CoordinatorConfig{
			LeaseTTL:       cfg.Fulfillment.LeaseTTL,
			StatusCacheTTL: cfg.Fulfillment.StatusCacheTTL,
		},
	)
	dispatcher := fulfillment.NewDispatcher(coordinator, log, fulfillment.DispatcherConfig{
		MaxConcurrent: cfg.Fulfillment.MaxConcurrent,
		TaskTimeout:   cfg.Fulfillment.TaskTimeout,
	})
	defer dispatcher.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 10. APPLICATION HANDLERS (CQRS)
	// ─────────────────────────────────────────────────────────────────────────
	submitGrades := command.NewSubmitGradesHandler(profiles, bus, log, cfg.Fulfillment.ProfileTTL)
	initiatePayment := command.NewInitiatePaymentHandler(payments, profiles, gatewayClient, bus, log, cfg.Gateway.Amount)
	confirmPayment := command.NewConfirmPaymentHandler(payments, dispatcher, bus, log)
	getStatus := query.NewGetResultStatusHandler(statusCache, results, leases, payments, dispatcher, log, cfg.Fulfillment.StatusCacheTTL)
	getResults := query.NewGetResultsHandler(results, payments)

	// ─────────────────────────────────────────────────────────────────────────
	// 11. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("postgres", handlers.NewPingCheck(dbConn))
	if redisCache != nil {
		health.AddCheck("redis", handlers.NewPingCheck(redisCache))
	}
	if cfg.Gateway.ConsumerKey != "" {
		health.AddCheck("payment_gateway", handlers.NewGatewayCheck(gatewayClient))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	serverConfig := httpserver.DefaultConfig()
	serverConfig.Host = cfg.HTTP.Host
	serverConfig.Port = cfg.HTTP.Port
	serverConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	serverConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	serverConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	serverConfig.EnableCORS = cfg.HTTP.EnableCORS
	serverConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverConfig.EnableMetrics = cfg.Observability.MetricsEnabled
	serverConfig.RateLimitPerSecond = cfg.HTTP.RateLimitPerSecond
	serverConfig.RateLimitBurst = cfg.HTTP.RateLimitBurst
	serverConfig.APIKeys = cfg.HTTP.APIKeys
	serverConfig.WebhookSecret = cfg.HTTP.WebhookSecret

	server := httpserver.NewServer(serverConfig, httpserver.Dependencies{
		SubmitGradesHandler:    submitGrades,
		InitiatePaymentHandler: initiatePayment,
		ConfirmPaymentHandler:  confirmPayment,
		GetResultStatusHandler: getStatus,
		GetResultsHandler:      getResults,
		CatalogImporter:        catalogSource,
		Metrics:                metrics,
		Logger:                 log,
		HealthChecker:          health,
	})

	errCh := server.StartAsync()
	log.Info("course match hub server is running", logger.String("address", server.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 13. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// connectDatabase opens the PostgreSQL pool from either a URL or individual
// settings.
func connectDatabase(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	if cfg.Database.URL != "" {
		return postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	}

	pgConfig := postgres.DefaultConfig()
	pgConfig.Host = cfg.Database.Host
	pgConfig.Port = cfg.Database.Port
	pgConfig.Database = cfg.Database.Name
	pgConfig.User = cfg.Database.User
	pgConfig.Password = cfg.Database.Password
	pgConfig.SSLMode = cfg.Database.SSLMode
	pgConfig.MaxConns = int32(cfg.Database.MaxConns)
	pgConfig.MinConns = int32(cfg.Database.MinConns)
	pgConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgConfig.ConnectTimeout = cfg.Database.ConnectTimeout

	return postgres.NewConnection(ctx, pgConfig)
}

// buildEphemeralStores wires the profile session store, lease store, and
// status cache against Redis, or in-memory fallbacks when Redis is disabled.
// The in-memory stores are single-instance only: leases stop excluding
// computations on other instances.
func buildEphemeralStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (
	candidate.ProfileStore, result.LeaseStore, result.StatusCache, *redis.Cache, error,
) {
	if cfg.Redis.Disabled {
		log.Warn("redis disabled, using in-memory session stores")
		return memory.NewProfileStore(), memory.NewLeaseStore(), memory.NewStatusCache(), nil, nil
	}

	redisConfig := redis.DefaultConfig()
	redisConfig.Host = cfg.Redis.Host
	redisConfig.Port = cfg.Redis.Port
	redisConfig.Password = cfg.Redis.Password
	redisConfig.DB = cfg.Redis.DB
	redisConfig.PoolSize = cfg.Redis.PoolSize
	redisConfig.MinIdleConns = cfg.Redis.MinIdleConns
	redisConfig.DialTimeout = cfg.Redis.DialTimeout
	redisConfig.ReadTimeout = cfg.Redis.ReadTimeout
	redisConfig.WriteTimeout = cfg.Redis.WriteTimeout

	cache, err := redis.NewCache(redisConfig)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := cache.Ping(ctx); err != nil {
		cache.Close()
		return nil, nil, nil, nil, err
	}
	log.Info("redis connection established")

	return redis.NewProfileStore(cache), redis.NewLeaseStore(cache), redis.NewStatusCache(cache), cache, nil
}

// registerMetricObservers counts finished computations off the event bus so
// the fulfillment pipeline itself stays metrics-free.
func registerMetricObservers(bus *messaging.Bus, metrics *observability.Metrics) {
	_ = bus.Subscribe(shared.EventResultReady, func(ctx context.Context, event shared.Event) error {
		if e, ok := event.(shared.ResultReadyEvent); ok {
			metrics.ComputationsTotal.WithLabelValues(e.Category, "ok").Inc()
			metrics.MatchesPerResult.Observe(float64(e.MatchCount))
		}
		return nil
	})

	_ = bus.Subscribe(shared.EventFulfillmentFailed, func(ctx context.Context, event shared.Event) error {
		if e, ok := event.(shared.FulfillmentFailedEvent); ok {
			metrics.ComputationsTotal.WithLabelValues(e.Category, "error").Inc()
		}
		return nil
	})
}
