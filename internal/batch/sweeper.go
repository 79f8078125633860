package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/adforge/internal/task"
)

// Sweeper periodically reclaims processing tasks whose lease has expired,
// typically because the worker holding them crashed, and delivers job
// completions recorded by processes without event handlers. A reclaimed task is a
// counted failure, so it is retried or permanently failed by the same rule
// as any other failure.
type Sweeper struct {
	queue    task.Queue
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweeper creates a Sweeper that checks every interval.
func NewSweeper(queue task.Queue, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		queue:    queue,
		interval: interval,
		logger:   logger.With("component", "lease_sweeper"),
		now:      time.Now,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("failed to reclaim expired leases", "error", err)
			}
		}
	}
}

// SweepOnce reclaims every expired lease, then delivers job completions
// that no process has announced yet. It returns how many leases were
// reclaimed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	n, err := s.queue.ReclaimExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("reclaimed tasks with expired leases", "count", n)
	}

	if _, err := s.queue.DeliverCompletions(ctx); err != nil {
		return n, fmt.Errorf("deliver job completions: %w", err)
	}
	return n, nil
}
