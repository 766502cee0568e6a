// Package main is the entry point for the Course Match Hub background worker.
//
// The worker runs the scheduled maintenance jobs that keep the payment and
// fulfillment state converged without candidate traffic:
// - reconcile_fulfillments: re-dispatches computations for confirmed payments
//   whose result never landed (crash between webhook ack and persistence)
// - resolve_stale_payments: queries the gateway for charges whose callback
//   never arrived and settles them either way
//
// It shares the full infrastructure wiring with the API server but exposes no
// HTTP surface.
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
	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/result"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/external/gateway"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/messaging"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/persistence/memory"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/persistence/postgres"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/persistence/redis"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/scheduler"
	"github.com/kuccps-hub/course-match-hub/internal/infrastructure/scheduler/jobs"
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
	log.Info("starting course match hub worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version))

	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler is disabled, worker has nothing to do")
		return nil
	}

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

	// Migrations are owned by the API server. The worker only verifies
	// connectivity so a misconfigured deployment fails fast.

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
	// 6. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultConfig()
	busConfig.WorkerPoolSize = cfg.Fulfillment.EventWorkers
	busConfig.Logger = log
	bus := messaging.NewBus(busConfig)
	defer func() { _ = bus.Close() }()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. PAYMENT GATEWAY CLIENT
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
	// 8. FULFILLMENT PIPELINE
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

	confirmPayment := command.NewConfirmPaymentHandler(payments, dispatcher, bus, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(log)

	reconcile := jobs.NewReconcileFulfillmentsJob(payments, results, leases, dispatcher, log,
		jobs.ReconcileFulfillmentsConfig{
			Lookback: cfg.Scheduler.ReconcileLookback,
			Timeout:  cfg.Scheduler.JobTimeout,
		})
	if err := sched.Register(reconcile, scheduler.Every(cfg.Scheduler.ReconcileInterval)); err != nil {
		return fmt.Errorf("failed to register reconcile job: %w", err)
	}

	resolveStale := jobs.NewResolveStalePaymentsJob(payments, gatewayClient, confirmPayment, log,
		jobs.ResolveStalePaymentsConfig{
			StaleAfter: cfg.Scheduler.PaymentStaleAfter,
			BatchSize:  cfg.Scheduler.PaymentBatchSize,
			Timeout:    cfg.Scheduler.JobTimeout,
		})
	if err := sched.Register(resolveStale, scheduler.Every(cfg.Scheduler.StalePaymentInterval)); err != nil {
		return fmt.Errorf("failed to register stale payment job: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	log.Info("course match hub worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case <-ctx.Done():
	}

	if err := sched.Stop(); err != nil {
		return fmt.Errorf("scheduler stop failed: %w", err)
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
// Leases must live in Redis whenever the API server also runs, otherwise the
// worker cannot see in-flight computations on other instances.
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
