package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/target/cashier/config"
	"github.com/target/cashier/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
	logger := bootstrap.InitLogger(cfg.IsDev)

	if err := run(ctx, &cfg, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	if err := bootstrap.ValidateConfig(cfg); err != nil {
		return err
	}

	logger.InfoContext(ctx, "starting cashier service",
		"addr", cfg.HTTP.Addr,
		"base_url", cfg.Browser.BaseURL,
		"archive_enabled", cfg.Postgres.Enabled,
		"redis_enabled", cfg.Redis.Enabled,
	)

	metrics, closeMetrics := bootstrap.BuildMetrics(cfg.Observability.Metrics, logger)
	defer func() {
		if cerr := closeMetrics(); cerr != nil {
			logger.ErrorContext(ctx, "close statsd failed", "error", cerr)
		}
	}()

	db, redisClient, err := initInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() {
			if cerr := db.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close database failed", "error", cerr)
			}
		}()
	}
	if redisClient != nil {
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close redis failed", "error", cerr)
			}
		}()
	}

	app, err := bootstrap.NewApp(ctx, bootstrap.AppDeps{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Redis:   redisClient,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

// initInfrastructure connects the optional Postgres archive and Redis state store.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func initInfrastructure(
	ctx context.Context,
	cfg *config.AppConfig,
	logger *slog.Logger,
) (*sql.DB, redis.UniversalClient, error) {
	var db *sql.DB
	if cfg.Postgres.Enabled {
		var err error
		db, err = bootstrap.ConnectArchive(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Postgres.RunMigrationsOnStart {
			if err = bootstrap.MigrateArchive(ctx, db, logger); err != nil {
				return nil, nil, errors.Join(err, db.Close())
			}
		} else {
			logger.InfoContext(ctx, "skipping job archive migrations", "reason", "DB_RUN_MIGRATIONS_ON_START=false")
		}
	}

	if !cfg.Redis.Enabled {
		return db, nil, nil
	}
	redisClient, err := bootstrap.ConnectStateRedis(ctx, cfg.Redis, logger)
	if err != nil {
		if db != nil {
			err = errors.Join(err, db.Close())
		}
		return nil, nil, err
	}
	return db, redisClient, nil
}
