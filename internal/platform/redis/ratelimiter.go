package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/adforge/internal/task"
	"github.com/redis/go-redis/v9"
)

var _ task.Limiter = (*RateLimiter)(nil)

// RateLimiterConfig holds the sliding window parameters.
type RateLimiterConfig struct {
	// Name identifies the window. Limiters sharing a name share admissions.
	Name string

	// Limit is the number of admissions allowed inside any trailing Window.
	Limit int

	Window time.Duration

	// PollInterval caps the sleep between admission attempts.
	PollInterval time.Duration

	// FailOpenDelay is how long a caller waits before being admitted
	// anyway when the store cannot be reached.
	FailOpenDelay time.Duration
}

// DefaultRateLimiterConfig returns a RateLimiterConfig with reasonable
// defaults.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Name:          "image_generation",
		Limit:         10,
		Window:        time.Minute,
		PollInterval:  250 * time.Millisecond,
		FailOpenDelay: 100 * time.Millisecond,
	}
}

// RateLimiter is a distributed sliding window limiter. Every admission is a
// unique member of a sorted set scored by the Redis server clock.
type RateLimiter struct {
	client redis.Cmdable
	key    string
	config RateLimiterConfig
	logger *slog.Logger
}

// NewRateLimiter creates a limiter whose window key lives under keyPrefix.
func NewRateLimiter(client redis.Cmdable, keyPrefix string, cfg RateLimiterConfig, logger *slog.Logger) *RateLimiter {
	defaults := DefaultRateLimiterConfig()
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaults.Limit
	}
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.FailOpenDelay <= 0 {
		cfg.FailOpenDelay = defaults.FailOpenDelay
	}
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RateLimiter{
		client: client,
		key:    keyspace{prefix: keyPrefix}.window(cfg.Name),
		config: cfg,
		logger: logger.With("component", "rate_limiter", "window", cfg.Name),
	}
}

// Acquire blocks until a slot is granted, timeout elapses or ctx ends. A
// zero timeout waits for as long as ctx allows.
//
// When the store is unreachable the caller is admitted after FailOpenDelay.
func (l *RateLimiter) Acquire(ctx context.Context, timeout time.Duration) bool {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	token := uuid.NewString()
	for {
		if ctx.Err() != nil {
			return false
		}

		reply, err := admitScript.Run(ctx, l.client, []string{l.key},
			l.config.Window.Milliseconds(), l.config.Limit, token,
		).Result()
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			l.logger.Warn("admission store unavailable, failing open",
				"error", err,
				"delay", l.config.FailOpenDelay.String())
			return pause(ctx, l.config.FailOpenDelay)
		}

		res, err := toScriptResult(reply)
		if err != nil {
			l.logger.Error("unexpected admission reply, failing open", "error", err)
			return pause(ctx, l.config.FailOpenDelay)
		}
		if res.int(0) == 1 {
			return true
		}

		wait := time.Duration(res.int(1)) * time.Millisecond
		if !pause(ctx, min(wait, l.config.PollInterval)) {
			return false
		}
	}
}

// Release is a no-op. A slot is a past admission and ages out of the
// window on its own.
func (l *RateLimiter) Release() {}

// Status reports the admissions inside the trailing window.
func (l *RateLimiter) Status(ctx context.Context) (task.LimiterStatus, error) {
	n, err := windowCountScript.Run(ctx, l.client, []string{l.key},
		l.config.Window.Milliseconds(),
	).Int()
	if err != nil {
		return task.LimiterStatus{}, fmt.Errorf("rate limiter status: %w", mapError("window count", err))
	}

	return task.LimiterStatus{
		Current:   n,
		Limit:     l.config.Limit,
		Window:    l.config.Window,
		Available: max(0, l.config.Limit-n),
	}, nil
}

// pause sleeps for d unless ctx ends first. It reports whether ctx is still
// live.
func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
