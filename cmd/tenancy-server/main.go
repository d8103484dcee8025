package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenancy/pkg/api"
	"github.com/platinummonkey/tenancy/pkg/audit"
	"github.com/platinummonkey/tenancy/pkg/config"
	"github.com/platinummonkey/tenancy/pkg/events"
	"github.com/platinummonkey/tenancy/pkg/observability"
	"github.com/platinummonkey/tenancy/pkg/orgs"
	"github.com/platinummonkey/tenancy/pkg/rbac"
	"github.com/platinummonkey/tenancy/pkg/signup"
	"github.com/platinummonkey/tenancy/pkg/sso"
	"github.com/platinummonkey/tenancy/pkg/storage"
	"github.com/platinummonkey/tenancy/pkg/storage/postgres"
)

var version = "dev"

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "Apply database migrations and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger, *migrateOnly); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
}

func run(cfg *config.Config, logger *logrus.Logger, migrateOnly bool) error {
	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	if migrateOnly {
		cfg.Database.AutoMigrate = true
	}
	store, db, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	if migrateOnly {
		logger.Info("Migrations applied")
		return store.Close()
	}

	bus := events.NewBus(logger).WithRecorder(metrics)
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = events.NewRedisClient(ctx, events.RedisConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			QueueKey: cfg.Redis.EventsKey,
		})
		if err != nil {
			return err
		}
		bus.SubscribeAll(events.NewRedisPublisher(redisClient, cfg.Redis.EventsKey))
		logger.WithField("key", cfg.Redis.EventsKey).Info("Forwarding events to Redis")
	}

	auditLogger, err := openAuditLogger(cfg.Audit, logger)
	if err != nil {
		return err
	}
	bus.SubscribeAll(audit.NewRecorder(auditLogger))

	authorizer := rbac.NewAuthorizer(store, nil, cfg.RoleCache.Authorizer(), metrics)
	svc := orgs.NewService(store, bus, logger,
		orgs.WithSessionRefresher(authorizer),
		orgs.WithMetrics(metrics),
		orgs.WithBlockedDomains(cfg.Invitations.BlockedDomains...),
	)

	sweeper, err := orgs.NewSweeper(svc.Invitations(), cfg.Invitations.SweepSchedule, cfg.Invitations.TTL, logger)
	if err != nil {
		return err
	}

	bootstrapper := signup.NewBootstrapper(svc, store, nil, logger)

	var ssoHandlers *sso.Handlers
	if len(cfg.SSO.Providers) > 0 {
		providers := make([]sso.Provider, 0, len(cfg.SSO.Providers))
		for i := range cfg.SSO.Providers {
			p, err := sso.NewProvider(ctx, &cfg.SSO.Providers[i])
			if err != nil {
				return fmt.Errorf("failed to configure SSO provider %s: %w", cfg.SSO.Providers[i].Name, err)
			}
			providers = append(providers, p)
		}
		users := sso.NewUserProvider(store, bootstrapper, bus, logger)
		ssoHandlers = sso.NewHandlers(users, providers...)
	}

	opts := api.Options{
		SSO:          ssoHandlers,
		Signup:       bootstrapper,
		Health:       observability.NewHealthChecker(store, redisClient, version),
		Metrics:      metrics,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}
	if cfg.Observability.MetricsEnabled {
		opts.Registry = registry
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewServer(svc, authorizer, logger, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	stopStats := make(chan struct{})
	if db != nil {
		go recordDBStats(db, metrics, stopStats)
	}
	sweeper.Start()

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		sweeper.Stop()
		close(stopStats)
		return nil
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return auditLogger.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return store.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders)
	})

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":    server.Addr,
			"version": version,
			"store":   cfg.Database.Driver,
		}).Info("Starting tenancy server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	return shutdown.WaitForShutdown()
}

func openAuditLogger(cfg config.AuditConfig, logger *logrus.Logger) (audit.Logger, error) {
	if cfg.Dir == "" {
		return audit.NewLogrusLogger(logger), nil
	}
	fileLogger, err := audit.NewFileLogger(cfg.FileLogger())
	if err != nil {
		return nil, err
	}
	logger.WithField("dir", cfg.Dir).Info("Writing audit trail to disk")
	return fileLogger, nil
}

// openStore returns the configured entity store. db is nil for the memory store.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *logrus.Logger) (storage.Store, *sql.DB, error) {
	if cfg.Driver == config.DriverMemory {
		logger.Warn("Using in-memory store; data is lost on restart")
		return storage.NewMemoryStore(), nil, nil
	}

	db, err := postgres.Open(ctx, cfg.Connection())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, db, logger); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return postgres.NewStore(db), db, nil
}

func recordDBStats(db *sql.DB, metrics *observability.Metrics, stop <-chan struct{}) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.RecordDBStats(db.Stats())
		case <-stop:
			return
		}
	}
}
