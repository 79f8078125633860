package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/adforge/internal/config"
	"github.com/phrazzld/adforge/internal/generation"
	"github.com/phrazzld/adforge/internal/task"
	"golang.org/x/sync/errgroup"
)

// State is the phase of the processor's control loop.
type State string

const (
	StateIdle        State = "idle"
	StateDispatching State = "dispatching"
	StateDraining    State = "draining"
	StatePaused      State = "paused"
)

// reportTimeout bounds a single MarkComplete/MarkFailed call. Reporting runs
// on a context detached from shutdown so outcomes are never dropped.
const reportTimeout = config.ReportTimeout

var errAdmissionDenied = errors.New("admission slot not granted")

// Config holds configuration for the batch processor.
type Config struct {
	// BatchSize is the number of tasks pulled per interval and the size of
	// the worker pool that executes them.
	BatchSize int

	// Interval is the spacing between consecutive batch starts.
	Interval time.Duration

	// WorkerTimeout is the hard limit for one task, admission wait included.
	WorkerTimeout time.Duration

	// AcquireTimeout bounds the admission wait. Zero lets the worker wait
	// until its own timeout.
	AcquireTimeout time.Duration

	// DefaultCooldown is the pause after a provider rate-limit signal that
	// carried no retry-after hint.
	DefaultCooldown time.Duration

	// StoreRetryDelay is the fixed delay after the queue could not be read.
	StoreRetryDelay time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:       5,
		Interval:        10 * time.Second,
		WorkerTimeout:   2 * time.Minute,
		DefaultCooldown: time.Minute,
		StoreRetryDelay: 5 * time.Second,
	}
}

// NewConfig derives the processor configuration from the queue settings.
func NewConfig(cfg config.QueueConfig) Config {
	return Config{
		BatchSize:       cfg.BatchSize,
		Interval:        cfg.BatchInterval(),
		WorkerTimeout:   cfg.WorkerTimeout(),
		AcquireTimeout:  cfg.AcquireTimeout(),
		DefaultCooldown: cfg.DefaultCooldown(),
		StoreRetryDelay: cfg.StoreRetryDelay(),
	}
}

// Stats counts task outcomes since the processor was created.
type Stats struct {
	Batches     int64 `json:"batches"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	RateLimited int64 `json:"rate_limited"`
	TimedOut    int64 `json:"timed_out"`
}

// Processor drains the queue in fixed-size batches at a fixed cadence.
// Each task of a batch runs on its own worker, which must win an admission
// slot from the limiter before calling the generator.
type Processor struct {
	queue     task.Queue
	limiter   task.Limiter
	generator generation.Generator
	config    Config
	logger    *slog.Logger
	now       func() time.Time

	state atomic.Value

	mu         sync.Mutex
	pauseUntil time.Time

	batches     atomic.Int64
	completed   atomic.Int64
	failed      atomic.Int64
	rateLimited atomic.Int64
	timedOut    atomic.Int64
}

// NewProcessor creates a Processor. It returns an error if a dependency is
// missing or the configuration cannot drive the loop.
func NewProcessor(
	queue task.Queue,
	limiter task.Limiter,
	generator generation.Generator,
	cfg Config,
	logger *slog.Logger,
) (*Processor, error) {
	if queue == nil {
		return nil, errors.New("queue cannot be nil")
	}
	if limiter == nil {
		return nil, errors.New("limiter cannot be nil")
	}
	if generator == nil {
		return nil, errors.New("generator cannot be nil")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Interval <= 0 || cfg.WorkerTimeout <= 0 {
		return nil, errors.New("interval and worker timeout must be positive")
	}

	defaults := DefaultConfig()
	if cfg.DefaultCooldown <= 0 {
		cfg.DefaultCooldown = defaults.DefaultCooldown
	}
	if cfg.StoreRetryDelay <= 0 {
		cfg.StoreRetryDelay = defaults.StoreRetryDelay
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Processor{
		queue:     queue,
		limiter:   limiter,
		generator: generator,
		config:    cfg,
		logger:    logger.With("component", "batch_processor"),
		now:       time.Now,
	}
	p.state.Store(StateIdle)
	return p, nil
}

// State returns the current phase of the control loop.
func (p *Processor) State() State {
	return p.state.Load().(State)
}

func (p *Processor) setState(s State) {
	p.state.Store(s)
}

// Stats returns the outcome counters.
func (p *Processor) Stats() Stats {
	return Stats{
		Batches:     p.batches.Load(),
		Completed:   p.completed.Load(),
		Failed:      p.failed.Load(),
		RateLimited: p.rateLimited.Load(),
		TimedOut:    p.timedOut.Load(),
	}
}

// Pause stops dispatching for at least d. An existing longer pause is kept.
func (p *Processor) Pause(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	until := p.now().Add(d)
	if until.After(p.pauseUntil) {
		p.pauseUntil = until
		p.logger.Warn("pausing dispatch after provider rate limit",
			"cooldown", d.String(),
			"pause_until", until)
	}
}

// pausedUntil returns the end of the current pause, if one is active at now.
func (p *Processor) pausedUntil(now time.Time) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pauseUntil, now.Before(p.pauseUntil)
}

// Run drives the loop until ctx is cancelled. In-flight workers always run
// to completion or timeout before Run returns.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("batch processor started",
		"batch_size", p.config.BatchSize,
		"interval", p.config.Interval.String(),
		"worker_timeout", p.config.WorkerTimeout.String())

	for ctx.Err() == nil {
		wait := p.iterate(ctx)
		if !sleep(ctx, wait) {
			break
		}
	}

	p.setState(StateIdle)
	p.logger.Info("batch processor stopped", "stats", p.Stats())
	return nil
}

// iterate runs one pass of the loop and returns how long to wait before the
// next one.
func (p *Processor) iterate(ctx context.Context) time.Duration {
	batchStart := p.now()

	if until, paused := p.pausedUntil(batchStart); paused {
		p.setState(StatePaused)
		return min(until.Sub(batchStart), p.config.Interval)
	}

	if ctx.Err() != nil {
		return 0
	}

	p.setState(StateDispatching)
	tasks, err := p.queue.GetBatch(ctx, p.config.BatchSize)
	if err != nil {
		p.setState(StateIdle)
		if ctx.Err() != nil {
			return 0
		}
		p.logger.Error("failed to fetch batch, backing off",
			"error", err,
			"delay", p.config.StoreRetryDelay.String())
		return p.config.StoreRetryDelay
	}

	if len(tasks) > 0 {
		p.batches.Add(1)
		p.logger.Debug("dispatching batch", "size", len(tasks))
		p.dispatch(ctx, tasks)
	}
	p.setState(StateIdle)

	elapsed := p.now().Sub(batchStart)
	return max(0, p.config.Interval-elapsed)
}

// dispatch runs every task on its own worker and waits for all of them.
func (p *Processor) dispatch(ctx context.Context, tasks []*task.Task) {
	// Workers must outlive a shutdown request; only their own timeout
	// bounds them.
	workCtx := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	g.SetLimit(p.config.BatchSize)
	for _, t := range tasks {
		g.Go(func() error {
			p.execute(workCtx, t)
			return nil
		})
	}

	p.setState(StateDraining)
	_ = g.Wait()
}

// execute runs one task and reports its outcome to the queue.
func (p *Processor) execute(ctx context.Context, t *task.Task) {
	log := p.logger.With(
		"task_id", t.ID,
		"job_id", t.JobID,
		"retry_count", t.RetryCount,
	)

	start := p.now()
	ref, err := p.run(ctx, t)

	rctx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()

	if err == nil {
		p.completed.Add(1)
		log.Info("task completed", "result", ref, "duration", p.now().Sub(start).String())
		if markErr := p.queue.MarkComplete(rctx, t.ID, ref); markErr != nil {
			if errors.Is(markErr, task.ErrInvalidTransition) {
				// The lease was reclaimed first; the stored asset is not
				// referenced by any task record now.
				log.Error("generated asset orphaned, task no longer held by this worker",
					"orphaned_result", ref, "error", markErr)
				return
			}
			log.Error("failed to mark task completed", "result", ref, "error", markErr)
		}
		return
	}

	isRateLimit := false
	switch rl, ok := generation.AsRateLimit(err); {
	case ok:
		isRateLimit = true
		p.rateLimited.Add(1)
		cooldown := rl.RetryAfter
		if cooldown <= 0 {
			cooldown = p.config.DefaultCooldown
		}
		p.Pause(cooldown)
		log.Warn("provider rate limit, task will be retried", "error", err)
	case errors.Is(err, errAdmissionDenied):
		isRateLimit = true
		p.rateLimited.Add(1)
		log.Warn("admission wait exceeded, task will be retried")
	case errors.Is(err, context.DeadlineExceeded):
		p.failed.Add(1)
		p.timedOut.Add(1)
		err = fmt.Errorf("worker timeout after %s: %w", p.config.WorkerTimeout, err)
		log.Error("task timed out", "error", err)
	default:
		p.failed.Add(1)
		log.Error("task failed", "error", err)
	}

	if markErr := p.queue.MarkFailed(rctx, t.ID, err.Error(), isRateLimit); markErr != nil {
		log.Error("failed to mark task failed", "error", markErr)
	}
}

type outcome struct {
	ref string
	err error
}

// run acquires admission and calls the generator under the worker timeout.
// The timeout is enforced even if the generator ignores its context.
func (p *Processor) run(ctx context.Context, t *task.Task) (string, error) {
	req, err := generation.NewRequest(t)
	if err != nil {
		return "", err
	}

	wctx, cancel := context.WithTimeout(ctx, p.config.WorkerTimeout)
	defer cancel()

	if !p.limiter.Acquire(wctx, p.config.AcquireTimeout) {
		return "", errAdmissionDenied
	}

	done := make(chan outcome, 1)
	go func() {
		ref, err := p.generator.Generate(wctx, req)
		done <- outcome{ref: ref, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil && out.ref == "" {
			return "", fmt.Errorf("%w: generator returned no asset", generation.ErrInvalidResponse)
		}
		return out.ref, out.err
	case <-wctx.Done():
		return "", wctx.Err()
	}
}

// sleep waits for d or until ctx ends. It reports whether the caller
// should continue.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
