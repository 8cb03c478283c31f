package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/cashier/config"
)

const statePingTimeout = 5 * time.Second

// ConnectStateRedis opens the Redis deployment that holds exported session state. Cluster and
// sentinel deployments are picked by config; otherwise REDIS_URI is a redis:// URL or host:port.
//
//nolint:ireturn // the state store accepts any redis.UniversalClient.
func ConnectStateRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (redis.UniversalClient, error) {
	client, desc, err := newStateRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, statePingTimeout)
	defer cancel()
	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close state redis: %w", closeErr))
		}
		return nil, fmt.Errorf("ping state redis (%s): %w", desc, pingErr)
	}

	if logger != nil {
		logger.InfoContext(ctx, "session state store connected", "redis", desc, "key_prefix", cfg.KeyPrefix)
	}
	return client, nil
}

// newStateRedisClient builds the client without dialing. desc never carries credentials.
//
//nolint:ireturn // single, sentinel and cluster clients share redis.UniversalClient.
func newStateRedisClient(cfg config.RedisConfig) (redis.UniversalClient, string, error) {
	switch {
	case cfg.UseCluster:
		nodes := nonEmpty(cfg.ClusterNodes)
		if len(nodes) == 0 {
			return nil, "", errors.New("REDIS_USE_CLUSTER requires REDIS_CLUSTER_NODES")
		}
		client := redis.NewClusterClient(&redis.ClusterOptions{Addrs: nodes, Password: cfg.Password})
		return client, "cluster " + strings.Join(nodes, ","), nil

	case cfg.UseSentinel:
		nodes := nonEmpty(cfg.SentinelNodes)
		if len(nodes) == 0 || cfg.SentinelMasterName == "" {
			return nil, "", errors.New("REDIS_USE_SENTINEL requires REDIS_SENTINEL_NODES and REDIS_SENTINEL_MASTER_NAME")
		}
		client := redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       cfg.SentinelMasterName,
			SentinelAddrs:    nodes,
			Password:         cfg.Password,
			SentinelPassword: cfg.SentinelPassword,
		})
		return client, "sentinel " + cfg.SentinelMasterName, nil
	}

	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, "", errors.New("REDIS_URI is required when REDIS_ENABLED is set")
	}
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		return redis.NewClient(&redis.Options{Addr: uri, Password: cfg.Password}), uri, nil
	}
	opt, err := redis.ParseURL(uri)
	if err != nil {
		return nil, "", fmt.Errorf("parse REDIS_URI: %w", err)
	}
	if opt.Password == "" {
		opt.Password = cfg.Password
	}
	return redis.NewClient(opt), redactURL(uri), nil
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "redis"
	}
	u.User = nil
	return u.String()
}

func nonEmpty(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
