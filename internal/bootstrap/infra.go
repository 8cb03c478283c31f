package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/cashier/config"
	"github.com/target/cashier/internal/adapters/artifacts"
	redisstore "github.com/target/cashier/internal/adapters/redis"
	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/data/cryptoutil"
	"github.com/target/cashier/internal/observability/statsd"
)

// BuildMetrics returns the statsd sink, or nil when metrics are disabled or the dial fails.
//
//nolint:ireturn // nil Sink disables emission downstream.
func BuildMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) (statsd.Sink, func() error) {
	noop := func() error { return nil }
	if !cfg.IsEnabled() {
		return nil, noop
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil, noop
	}
	return client, client.Close
}

// BuildStateStore picks Redis when a client is given, otherwise an in-process store, and seals
// it when a sealer is given.
//
//nolint:ireturn // callers only need the port.
func BuildStateStore(client redis.UniversalClient, prefix string, sealer cryptoutil.Sealer) core.SessionStateStore {
	var store core.SessionStateStore
	if client == nil {
		store = redisstore.NewMemoryStateStore(nil)
	} else {
		store = redisstore.NewStateStoreWithPrefix(client, prefix)
	}
	if sealer != nil {
		store = redisstore.NewSealedStateStore(store, sealer)
	}
	return store
}

// BuildArtifactStore returns the configured artifact store, or nil when capture is off.
//
//nolint:ireturn // nil disables artifact capture in the executor.
func BuildArtifactStore(ctx context.Context, cfg config.ArtifactsConfig, logger *slog.Logger) (core.ArtifactStore, error) {
	switch cfg.Backend {
	case config.ArtifactBackendLocal:
		store, err := artifacts.NewLocalStore(cfg.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("local artifact store: %w", err)
		}
		logger.Info("artifact store ready", "backend", "local", "dir", cfg.LocalDir)
		return store, nil
	case config.ArtifactBackendMinio:
		store, err := artifacts.NewMinioStore(artifacts.MinioOptions{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			Region:    cfg.Minio.Region,
			Secure:    cfg.Minio.Secure,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("minio artifact store: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure artifact bucket: %w", err)
		}
		logger.Info("artifact store ready", "backend", "minio", "bucket", cfg.Minio.Bucket)
		return store, nil
	default:
		logger.Info("artifact capture disabled")
		return nil, nil
	}
}
