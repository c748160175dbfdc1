package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/axeelhrz/fidelya-notify/internal/config"
	"github.com/axeelhrz/fidelya-notify/internal/handler"
	"github.com/axeelhrz/fidelya-notify/internal/infra/postgresql"
	"github.com/axeelhrz/fidelya-notify/internal/infra/postgresql/migrations"
	infraredis "github.com/axeelhrz/fidelya-notify/internal/infra/redis"
	"github.com/axeelhrz/fidelya-notify/internal/observability"
	"github.com/axeelhrz/fidelya-notify/internal/provider"
	"github.com/axeelhrz/fidelya-notify/internal/repository"
	"github.com/axeelhrz/fidelya-notify/internal/service"
	"github.com/axeelhrz/fidelya-notify/internal/transport"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	queueRepo := repository.NewGormQueueRepo(db)
	abTestRepo := repository.NewGormABTestRepo(db)

	registry := provider.NewDefaultRegistry(provider.NewHTTPClient(), logger)
	providerConfigs := cfg.BuildProviderConfigs()

	retryPolicy := cfg.RetryPolicy()
	queueService := service.NewQueueService(queueRepo, retryPolicy, logger)
	abTestService := service.NewABTestService(abTestRepo, logger)

	dispatcher := service.NewDispatcher(
		queueRepo,
		registry,
		providerConfigs,
		limiter,
		abTestService,
		metrics,
		logger,
		service.DispatcherConfig{
			BatchSize:    cfg.ProcessBatchSize,
			Concurrency:  cfg.WorkerConcurrency,
			PollInterval: time.Duration(cfg.PollIntervalSec) * time.Second,
			RetryPolicy:  retryPolicy,
		},
	)
	sweeper := service.NewSweeper(queueRepo, cfg.RetentionDays, 24*time.Hour, logger)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(transport.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterQueueRoutes(app, queueService, dispatcher); err != nil {
		logger.Fatal("queue routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterABTestRoutes(app, abTestService); err != nil {
		logger.Fatal("ab test routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterProviderRoutes(app, registry, providerConfigs); err != nil {
		logger.Fatal("provider routes registration failed", zap.Error(err))
	}

	go dispatcher.Start(ctx)
	go sweeper.Run(ctx)

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	logger.Info("fidelya-notify api started", zap.Int("port", cfg.APIPort))

	<-ctx.Done()
	logger.Info("shutting down")

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
