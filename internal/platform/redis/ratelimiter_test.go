package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/phrazzld/adforge/internal/platform/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiterFixture(t *testing.T, limit int, window time.Duration) (*RateLimiter, *miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	mr.SetTime(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log, _ := logger.NewTestLogger()
	rl := NewRateLimiter(client, "{test}:", RateLimiterConfig{
		Name:          "images",
		Limit:         limit,
		Window:        window,
		PollInterval:  20 * time.Millisecond,
		FailOpenDelay: 50 * time.Millisecond,
	}, log)
	return rl, mr, client
}

func TestRateLimiter_ConcurrentAcquireGrantsExactlyLimit(t *testing.T) {
	t.Parallel()
	rl, _, _ := newLimiterFixture(t, 5, 10*time.Second)

	var (
		granted atomic.Int32
		wg      sync.WaitGroup
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Acquire(context.Background(), 300*time.Millisecond) {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), granted.Load())

	status, err := rl.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, status.Current)
	assert.Equal(t, 0, status.Available)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	t.Parallel()
	rl, mr, _ := newLimiterFixture(t, 2, 10*time.Second)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, rl.Acquire(ctx, 0))
	mr.SetTime(start.Add(4 * time.Second))
	require.True(t, rl.Acquire(ctx, 0))
	assert.False(t, rl.Acquire(ctx, 60*time.Millisecond), "window is full")

	// The first admission has aged out, the second has not.
	mr.SetTime(start.Add(10*time.Second + time.Millisecond))
	assert.True(t, rl.Acquire(ctx, 60*time.Millisecond))
	assert.False(t, rl.Acquire(ctx, 60*time.Millisecond))

	mr.SetTime(start.Add(30 * time.Second))
	status, err := rl.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Current)
	assert.Equal(t, 2, status.Available)
}

func TestRateLimiter_SharedAcrossInstances(t *testing.T) {
	t.Parallel()
	first, _, client := newLimiterFixture(t, 3, time.Minute)
	log, _ := logger.NewTestLogger()
	second := NewRateLimiter(client, "{test}:", RateLimiterConfig{
		Name:         "images",
		Limit:        3,
		Window:       time.Minute,
		PollInterval: 20 * time.Millisecond,
	}, log)
	other := NewRateLimiter(client, "{test}:", RateLimiterConfig{
		Name:   "thumbnails",
		Limit:  3,
		Window: time.Minute,
	}, log)
	ctx := context.Background()

	require.True(t, first.Acquire(ctx, 0))
	require.True(t, second.Acquire(ctx, 0))
	require.True(t, first.Acquire(ctx, 0))
	assert.False(t, second.Acquire(ctx, 50*time.Millisecond))

	assert.True(t, other.Acquire(ctx, 0), "separate windows do not interfere")
}

func TestRateLimiter_Status(t *testing.T) {
	t.Parallel()
	rl, _, _ := newLimiterFixture(t, 5, 10*time.Second)
	ctx := context.Background()

	for range 3 {
		require.True(t, rl.Acquire(ctx, 0))
	}
	rl.Release()

	status, err := rl.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Current)
	assert.Equal(t, 5, status.Limit)
	assert.Equal(t, 2, status.Available)
	assert.Equal(t, 10*time.Second, status.Window)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	t.Parallel()
	rl, mr, _ := newLimiterFixture(t, 1, time.Minute)
	ctx := context.Background()

	require.True(t, rl.Acquire(ctx, 0))
	mr.SetError("ERR store offline")

	start := time.Now()
	assert.True(t, rl.Acquire(ctx, time.Second), "an unreachable store admits after the fail-open delay")
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	_, err := rl.Status(ctx)
	assert.Error(t, err)
}

func TestRateLimiter_AcquireHonoursContext(t *testing.T) {
	t.Parallel()
	rl, _, _ := newLimiterFixture(t, 1, time.Minute)

	require.True(t, rl.Acquire(context.Background(), 0))

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	start := time.Now()
	assert.False(t, rl.Acquire(ctx, 0))
	assert.Less(t, time.Since(start), time.Second)

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	assert.False(t, rl.Acquire(cancelled, time.Second))
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(nil, "", RateLimiterConfig{}, nil)

	assert.Equal(t, DefaultRateLimiterConfig(), rl.config)
	assert.Equal(t, "{adforge}:ratelimit:image_generation", rl.key)
}
