package batch

import (
	"context"
	"time"

	"github.com/phrazzld/adforge/internal/task"
	"golang.org/x/time/rate"
)

// localBound layers a per-process token bucket in front of the global
// limiter. It only ever narrows admission: a slot must be won locally and
// then globally.
type localBound struct {
	local  *rate.Limiter
	global task.Limiter
}

// WithLocalBound wraps global with a process-local rate of rps requests per
// second. A non-positive rps returns global unchanged.
func WithLocalBound(global task.Limiter, rps float64, burst int) task.Limiter {
	if rps <= 0 {
		return global
	}
	if burst < 1 {
		burst = 1
	}
	return &localBound{
		local:  rate.NewLimiter(rate.Limit(rps), burst),
		global: global,
	}
}

func (l *localBound) Acquire(ctx context.Context, timeout time.Duration) bool {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := l.local.Wait(ctx); err != nil {
		return false
	}
	// The remaining budget is already carried by ctx.
	return l.global.Acquire(ctx, 0)
}

func (l *localBound) Release() {
	l.global.Release()
}

func (l *localBound) Status(ctx context.Context) (task.LimiterStatus, error) {
	return l.global.Status(ctx)
}
