package task

import (
	"context"
	"time"
)

// Queue is the shared, durable task store. Every state change is a single
// atomic operation against the coordination store so that any number of
// producer and worker processes can use it concurrently.
type Queue interface {
	// Submit registers a pending task and returns its id.
	Submit(ctx context.Context, t *Task) (string, error)

	// GetBatch checks out up to limit releasable tasks, retries first.
	// It never blocks and may return fewer tasks, including none.
	GetBatch(ctx context.Context, limit int) ([]*Task, error)

	// MarkComplete records the result of a processing task.
	MarkComplete(ctx context.Context, taskID, result string) error

	// MarkFailed records a failed attempt. Rate-limit failures do not
	// consume the retry budget.
	MarkFailed(ctx context.Context, taskID, errMsg string, isRateLimit bool) error

	// GetTask returns one task record.
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// GetJobStatus tallies the tasks of a job without side effects.
	GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error)

	// CancelJob fails every task of the job that has not been checked out.
	CancelJob(ctx context.Context, jobID string) (CancelResult, error)

	// Cleanup purges every record of the job.
	Cleanup(ctx context.Context, jobID string) error

	// Stats returns set sizes for dashboards and health checks.
	Stats(ctx context.Context) (QueueStats, error)

	// ReclaimExpired fails processing tasks whose lease ended before now and
	// returns how many were reclaimed.
	ReclaimExpired(ctx context.Context, now time.Time) (int, error)

	// DeliverCompletions announces finished jobs that no process has
	// announced yet, such as jobs finished by a cancel in the API process.
	// It returns how many were delivered.
	DeliverCompletions(ctx context.Context) (int, error)
}

// Limiter is the global admission gate in front of the generation provider.
type Limiter interface {
	// Acquire blocks until an admission slot is granted, the timeout elapses
	// or ctx ends. A zero timeout waits as long as ctx allows.
	Acquire(ctx context.Context, timeout time.Duration) bool

	// Release exists for symmetry with semaphore-style gates. Sliding window
	// tokens expire on their own, so implementations may do nothing.
	Release()

	// Status reports the current occupancy of the window.
	Status(ctx context.Context) (LimiterStatus, error)
}
