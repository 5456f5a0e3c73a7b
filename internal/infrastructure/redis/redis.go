package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const connectionTimeout = 5 * time.Second

// Config contains Redis connection options.
// These map to the redis section of the config file.
type Config struct {
	// Addrs lists one address for a standalone server, several for a cluster.
	Addrs    []string
	Password string
	DB       int
}

// Connect creates a Redis client and verifies it with PING.
func Connect(ctx context.Context, cfg Config) (goredis.UniversalClient, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("redis: at least one address is required")
	}

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    cfg.Addrs,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := HealthCheck(ctx, client); err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	return client, nil
}

// HealthCheck pings the server within a short timeout.
func HealthCheck(ctx context.Context, client goredis.UniversalClient) error {
	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
