package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/cartcore-backend/internal/bootstrap"
	"github.com/angelmondragon/cartcore-backend/internal/cron"
	"github.com/angelmondragon/cartcore-backend/pkg/config"
	"github.com/angelmondragon/cartcore-backend/pkg/db"
	"github.com/angelmondragon/cartcore-backend/pkg/logger"
	"github.com/angelmondragon/cartcore-backend/pkg/metrics"
	"github.com/angelmondragon/cartcore-backend/pkg/migrate"
	"github.com/angelmondragon/cartcore-backend/pkg/outbox"
	"github.com/angelmondragon/cartcore-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == "console",
	})

	if err := run(cfg, logg, *once); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(context.Background(), "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "cron worker shutting down gracefully")
}

func run(cfg *config.Config, logg *logger.Logger, once bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	carts, err := bootstrap.CartService(bootstrap.CartDeps{
		Config:     cfg,
		DB:         dbClient,
		Claims:     redisClient,
		Logger:     logg,
		Registerer: reg,
	})
	if err != nil {
		return fmt.Errorf("cart service: %w", err)
	}

	expiryJob, err := cron.NewCartExpiryJob(cron.CartExpiryJobParams{
		Logger:  logg,
		Sweeper: carts,
		Batch:   cfg.Cron.ExpiryBatchMax,
	})
	if err != nil {
		return err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		return err
	}
	registry, err := cron.NewRegistry(expiryJob, retentionJob)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceKind+":"+envOrLocal(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(reg),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	if once {
		report, err := service.RunOnce(ctx)
		if err != nil {
			return err
		}
		if len(report.Failed) > 0 {
			return fmt.Errorf("cron jobs failed: %v", report.Failed)
		}
		return nil
	}

	metrics.Serve(ctx, cfg.Metrics.Addr, reg, logg)
	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
