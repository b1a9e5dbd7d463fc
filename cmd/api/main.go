package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/subwise/resilience/internal/backoff"
	"github.com/subwise/resilience/internal/breaker"
	"github.com/subwise/resilience/internal/channel"
	"github.com/subwise/resilience/internal/config"
	"github.com/subwise/resilience/internal/dispatch"
	"github.com/subwise/resilience/internal/fetch"
	"github.com/subwise/resilience/internal/handler"
	"github.com/subwise/resilience/internal/infra/postgresql"
	"github.com/subwise/resilience/internal/infra/postgresql/migrations"
	infraredis "github.com/subwise/resilience/internal/infra/redis"
	"github.com/subwise/resilience/internal/journal"
	"github.com/subwise/resilience/internal/observability"
	"github.com/subwise/resilience/internal/repository"
	"github.com/subwise/resilience/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	metrics := observability.NewMetrics()

	brk := breaker.New(cfg.BreakerThreshold, time.Duration(cfg.BreakerResetSec)*time.Second, logger)
	brk.SetMetrics(metrics)

	cache, err := infraredis.NewCache(rdb)
	if err != nil {
		logger.Fatal("fetch cache initialization failed", zap.Error(err))
	}

	fetcher, err := fetch.NewFetcher(cache, brk, backoff.Interactive(cfg.FetchMaxRetries), logger)
	if err != nil {
		logger.Fatal("fetcher initialization failed", zap.Error(err))
	}
	fetcher.SetMetrics(metrics)

	email, err := channel.NewEmailProvider(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom)
	if err != nil {
		logger.Fatal("email provider initialization failed", zap.Error(err))
	}
	whatsapp, err := channel.NewWhatsAppProvider(cfg.WhatsAppAPIURL, cfg.WhatsAppAPIKey)
	if err != nil {
		logger.Fatal("whatsapp provider initialization failed", zap.Error(err))
	}

	dispatcher, err := dispatch.NewDispatcher(
		[]channel.Sender{email, whatsapp},
		backoff.Interactive(cfg.DispatchMaxRetries),
		logger,
	)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}
	dispatcher.SetMetrics(metrics)

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}
	dispatcher.SetRateLimiter(limiter)

	repo := repository.NewGormHistoryRepo(db)

	backups, err := journal.NewBackupStore(cfg.BackupDir, logger)
	if err != nil {
		logger.Fatal("backup store initialization failed", zap.Error(err))
	}

	jrnl, err := journal.NewJournal(repo, backups, logger)
	if err != nil {
		logger.Fatal("journal initialization failed", zap.Error(err))
	}
	jrnl.SetMetrics(metrics)

	reconciler, err := journal.NewReconciler(
		repo,
		backups,
		time.Duration(cfg.ReconcileIntervalSec)*time.Second,
		time.Duration(cfg.BackupRetentionDays)*24*time.Hour,
		logger,
	)
	if err != nil {
		logger.Fatal("reconciler initialization failed", zap.Error(err))
	}
	reconciler.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(transport.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb, backups)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterReminderRoutes(app, dispatcher); err != nil {
		logger.Fatal("reminder routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterDashboardRoutes(app, fetcher, dashboardWidgets(cfg)); err != nil {
		logger.Fatal("dashboard routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterHistoryRoutes(app, jrnl, repo); err != nil {
		logger.Fatal("history routes registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		return reconciler.Start(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("api terminated", zap.Error(err))
	}
}

// dashboardWidgets maps widget names to their upstream requests. Fallback
// payloads keep the dashboard rendering when billing is down and the cache
// has nothing usable.
func dashboardWidgets(cfg *config.Config) map[string]fetch.Request {
	timeout := time.Duration(cfg.FetchTimeoutSec) * time.Second
	return map[string]fetch.Request{
		"plans": {
			Key:      "billing-plans",
			URL:      cfg.BillingAPIURL + "/v1/plans",
			Timeout:  timeout,
			Fallback: json.RawMessage(`{"plans":[]}`),
		},
		"invoices": {
			Key:      "billing-invoices",
			URL:      cfg.BillingAPIURL + "/v1/invoices",
			Timeout:  timeout,
			Fallback: json.RawMessage(`{"invoices":[]}`),
		},
	}
}
