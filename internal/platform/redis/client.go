package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/phrazzld/adforge/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewClient opens a client for cfg.URL and verifies the connection.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// QueueConfigFrom maps application settings onto the queue configuration.
func QueueConfigFrom(r config.RedisConfig, q config.QueueConfig) QueueConfig {
	return QueueConfig{
		KeyPrefix:  r.KeyPrefix,
		MaxRetries: q.MaxRetries,
		Lease:      q.Lease(),
		ScanDepth:  q.ScanDepth,
	}
}

// RateLimiterConfigFrom maps application settings onto the limiter
// configuration.
func RateLimiterConfigFrom(c config.RateLimitConfig) RateLimiterConfig {
	return RateLimiterConfig{
		Name:          "image_generation",
		Limit:         c.Limit,
		Window:        c.Window(),
		PollInterval:  c.PollInterval(),
		FailOpenDelay: c.FailOpenDelay(),
	}
}
