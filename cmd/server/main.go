// Package main is the entry point of the course progress and certificate
// service.
//
// The server exposes the learner API (enrollment, completion toggles, progress,
// outline, navigation and certificates) and the public certificate
// verification endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/alem-academy/config"
	"github.com/alem-hub/alem-academy/internal/application/command"
	"github.com/alem-hub/alem-academy/internal/application/eventhandler"
	"github.com/alem-hub/alem-academy/internal/application/query"
	"github.com/alem-hub/alem-academy/internal/domain/certificate"
	"github.com/alem-hub/alem-academy/internal/domain/progress"
	"github.com/alem-hub/alem-academy/internal/infrastructure/messaging"
	"github.com/alem-hub/alem-academy/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/alem-academy/internal/infrastructure/persistence/redis"
	httpserver "github.com/alem-hub/alem-academy/internal/interface/http"
	"github.com/alem-hub/alem-academy/internal/interface/http/handlers"
	"github.com/alem-hub/alem-academy/pkg/certcode"
	"github.com/alem-hub/alem-academy/pkg/circuitbreaker"
	"github.com/alem-hub/alem-academy/pkg/logger"
	"github.com/alem-hub/alem-academy/pkg/retry"
	"github.com/alem-hub/alem-academy/pkg/tracing"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING AND TRACING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting alem academy server",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.Bool("debug", cfg.App.Debug),
	)

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.Observability.TracingEnabled,
		ServiceName: cfg.Observability.ServiceName,
		Environment: string(cfg.App.Environment),
		Version:     cfg.App.Version,
		Endpoint:    cfg.Observability.TracingEndpoint,
		Insecure:    !cfg.IsProduction(),
		SampleRatio: cfg.Observability.TracingSampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := connectDatabase(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		log.Info("running database migrations...")
		if err := postgres.NewMigrator(dbConn).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	store := postgres.NewStore(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache       *redis.Cache
		progressCache    progress.SnapshotCache
		certificateCache certificate.Cache
	)

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCache, err = redis.NewCache(ctx, redisConfig(cfg))
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		} else {
			defer func() { _ = redisCache.Close() }()
			onStateChange := func(name string, from, to circuitbreaker.State) {
				log.Warn("cache circuit state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			}
			progressCache = redis.NewGuardedProgressCache(
				redis.NewProgressCache(redisCache, cfg.Redis.ProgressTTL),
				redis.NewCacheBreaker("progress-cache", onStateChange),
			)
			certificateCache = redis.NewGuardedCertificateCache(
				redis.NewCertificateCache(redisCache),
				redis.NewCacheBreaker("certificate-cache", onStateChange),
			)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	eventBus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		if err := eventBus.Close(); err != nil {
			log.Warn("event bus close failed", logger.Err(err))
		}
	}()

	if err := eventhandler.NewAuditLogHandler(log).Register(eventBus); err != nil {
		return fmt.Errorf("failed to register audit log: %w", err)
	}
	if certificateCache != nil {
		if err := eventhandler.NewOnCertificateIssuedHandler(certificateCache, log).Register(eventBus); err != nil {
			return fmt.Errorf("failed to register certificate cache warmer: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. DOMAIN SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	codes := certcode.New(certcode.WithPrefix(cfg.Certificate.CodePrefix))
	issuer := certificate.NewIssuer(codes, uuid.NewString, nil)
	aggregator := progress.NewAggregator(issuer, nil)
	tracker := progress.NewTracker(aggregator, uuid.NewString, nil)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	deps := httpserver.Dependencies{
		ToggleCompletionHandler:  command.NewToggleCompletionHandler(store, tracker, progressCache, eventBus, log),
		EnrollHandler:            command.NewEnrollHandler(store, eventBus, uuid.NewString, log),
		GetProgressHandler:       query.NewGetProgressHandler(store, progressCache, log),
		GetCertificateHandler:    query.NewGetCertificateHandler(store, issuer, eventBus, log),
		GetCourseOutlineHandler:  query.NewGetCourseOutlineHandler(store, log),
		GetItemNavigationHandler: query.NewGetItemNavigationHandler(store, log),
		VerifyCertificateHandler: query.NewVerifyCertificateHandler(store, certificateCache, log),
		Logger:                   log,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("postgres", handlers.NewPingCheck(dbConn))
	if redisCache != nil {
		health.AddOptionalCheck("redis", handlers.NewPingCheck(redisCache))
	}
	deps.HealthChecker = health

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	server := httpserver.NewServer(httpConfig(cfg), deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("server stopped")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = logger.Format(cfg.Observability.LogFormat)
	return logger.New(opts).With(logger.String("service", cfg.App.Name))
}

// connectDatabase retries the initial connection while the database starts.
func connectDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) (*postgres.Connection, error) {
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	pgCfg.MinConns = int32(cfg.Database.MaxIdleConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.LockTimeout = cfg.Database.LockTimeout

	var conn *postgres.Connection
	err := retry.StartupRetrier().Do(ctx, func(ctx context.Context) error {
		c, err := postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			log.Warn("database not ready", logger.Err(err))
			return retry.Retryable(err)
		}
		conn = c
		return nil
	})
	return conn, err
}

func redisConfig(cfg *config.Config) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = cfg.Redis.Host
	rc.Port = cfg.Redis.Port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout
	return rc
}

func httpConfig(cfg *config.Config) httpserver.Config {
	hc := httpserver.DefaultConfig()
	hc.Host = cfg.HTTP.Host
	hc.Port = cfg.HTTP.Port
	hc.ReadTimeout = cfg.HTTP.ReadTimeout
	hc.WriteTimeout = cfg.HTTP.WriteTimeout
	hc.IdleTimeout = cfg.HTTP.IdleTimeout
	hc.RequestTimeout = cfg.HTTP.RequestTimeout
	hc.AllowedOrigins = cfg.HTTP.AllowedOrigins
	hc.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	hc.JWTSecret = cfg.HTTP.JWTSecret
	hc.JWTIssuer = cfg.HTTP.JWTIssuer
	hc.ServiceName = cfg.Observability.ServiceName
	hc.Version = cfg.App.Version
	hc.Debug = cfg.App.Debug
	return hc
}
