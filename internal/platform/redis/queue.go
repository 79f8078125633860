package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/phrazzld/adforge/internal/events"
	"github.com/phrazzld/adforge/internal/task"
	"github.com/redis/go-redis/v9"
)

// Compile-time interface check.
var _ task.Queue = (*Queue)(nil)

// QueueConfig holds the queue's tunables.
type QueueConfig struct {
	// KeyPrefix namespaces every key. Defaults to DefaultKeyPrefix.
	KeyPrefix string

	// MaxRetries is the number of counted failures after which a task is
	// permanently failed.
	MaxRetries int

	// Lease is how long a checked-out task may stay in processing before
	// the sweeper reclaims it.
	Lease time.Duration

	// ScanDepth is the page size GetBatch reads from each set while it
	// looks for releasable tasks. Pages continue past blocked followers.
	ScanDepth int
}

// DefaultQueueConfig returns a QueueConfig with reasonable defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		KeyPrefix:  DefaultKeyPrefix,
		MaxRetries: 3,
		Lease:      4 * time.Minute,
		ScanDepth:  200,
	}
}

// Option configures the Queue.
type Option func(*Queue)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithEmitter publishes job lifecycle events through e.
func WithEmitter(e events.EventEmitter) Option {
	return func(q *Queue) { q.emitter = e }
}

// WithClock overrides the clock used for task timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Queue implements task.Queue on Redis.
type Queue struct {
	client  redis.Cmdable
	keys    keyspace
	config  QueueConfig
	logger  *slog.Logger
	emitter events.EventEmitter
	now     func() time.Time

	scoreMu   sync.Mutex
	lastScore float64
}

// NewQueue creates a Redis-backed queue. The caller owns the client.
func NewQueue(client redis.Cmdable, cfg QueueConfig, opts ...Option) *Queue {
	defaults := DefaultQueueConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.Lease <= 0 {
		cfg.Lease = defaults.Lease
	}
	if cfg.ScanDepth <= 0 {
		cfg.ScanDepth = defaults.ScanDepth
	}

	q := &Queue{
		client: client,
		keys:   keyspace{prefix: cfg.KeyPrefix},
		config: cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	q.logger = q.logger.With("component", "redis_queue")
	return q
}

// Ping checks connectivity to the coordination store.
func (q *Queue) Ping(ctx context.Context) error {
	return mapError("ping", q.client.Ping(ctx).Err())
}

// nextScore returns the FIFO score for a submission: wall-clock seconds
// with microsecond resolution, strictly increasing within this process.
func (q *Queue) nextScore() string {
	q.scoreMu.Lock()
	defer q.scoreMu.Unlock()

	score := float64(q.now().UnixMicro()) / 1e6
	if score <= q.lastScore {
		score = q.lastScore + 1e-6
	}
	q.lastScore = score
	return strconv.FormatFloat(score, 'f', 6, 64)
}

// Submit registers a pending task. Leaders also create their group's
// dependency record.
func (q *Queue) Submit(ctx context.Context, t *task.Task) (string, error) {
	if t == nil {
		return "", fmt.Errorf("%w: nil task", task.ErrInvalidTask)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return "", err
	}
	payload, err := encodePayload(t.Payload)
	if err != nil {
		return "", err
	}

	now := q.now()
	stored, err := submitScript.Run(ctx, q.client, nil,
		q.keys.prefix, t.ID, t.JobID, t.DependencyGroup, string(t.DependencyType),
		payload, q.nextScore(), millis(now),
	).Int64()
	if err != nil {
		return "", mapError("submit", err)
	}
	if stored == 0 {
		return "", fmt.Errorf("%w: %s", task.ErrDuplicateTask, t.ID)
	}

	t.Status = task.StatusPending
	t.CreatedAt = time.UnixMilli(now.UnixMilli()).UTC()

	q.logger.Debug("task submitted",
		"task_id", t.ID,
		"job_id", t.JobID,
		"dependency_type", t.DependencyType,
		"dependency_group", t.DependencyGroup)
	return t.ID, nil
}

// SubmitBatch submits tasks in order and stops at the first error. It
// returns the ids stored before that error.
func (q *Queue) SubmitBatch(ctx context.Context, tasks []*task.Task) ([]string, error) {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		id, err := q.Submit(ctx, t)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetBatch checks out up to limit tasks: the retry set first, then pending
// work in submission order. Followers are released only once their leader
// completed, with the leader's result injected into their payload.
func (q *Queue) GetBatch(ctx context.Context, limit int) ([]*task.Task, error) {
	if limit <= 0 {
		return nil, nil
	}

	now := q.now()
	reply, err := getBatchScript.Run(ctx, q.client, nil,
		q.keys.prefix, limit, q.config.ScanDepth, now.UnixMilli(), q.config.Lease.Milliseconds(),
	).Result()
	if err != nil {
		return nil, mapError("get batch", err)
	}
	res, err := toScriptResult(reply)
	if err != nil {
		return nil, err
	}

	ids := res.strings(0)
	q.notifyCompleted(ctx, res.strings(1))
	if len(ids) == 0 {
		return nil, nil
	}

	tasks, err := q.loadTasks(ctx, ids)
	if err != nil {
		return nil, err
	}
	q.logger.Debug("checked out batch", "requested", limit, "size", len(tasks))
	return tasks, nil
}

// loadTasks fetches task hashes in one round trip, preserving order.
func (q *Queue) loadTasks(ctx context.Context, ids []string) ([]*task.Task, error) {
	pipe := q.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, q.keys.task(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, mapError("load tasks", err)
	}

	tasks := make([]*task.Task, 0, len(ids))
	for i, cmd := range cmds {
		t, err := decodeTask(cmd.Val())
		if err != nil {
			if errors.Is(err, task.ErrTaskNotFound) {
				q.logger.Warn("checked out task vanished before load", "task_id", ids[i])
				continue
			}
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// MarkComplete moves a processing task to completed. For a leader the
// dependency record is flipped in the same script, which is what releases
// the group's followers.
func (q *Queue) MarkComplete(ctx context.Context, taskID, result string) error {
	reply, err := markCompleteScript.Run(ctx, q.client, nil,
		q.keys.prefix, taskID, result, q.now().UnixMilli(),
	).Result()
	if err != nil {
		return mapError("mark complete", err)
	}
	res, err := toScriptResult(reply)
	if err != nil {
		return err
	}
	if code := res.int(0); code != 1 {
		return transitionError(code, taskID, res.str(3))
	}

	q.logger.Debug("task completed", "task_id", taskID, "job_id", res.str(2))
	if res.int(1) == 1 {
		q.notifyCompleted(ctx, []string{res.str(2)})
	}
	return nil
}

// MarkFailed resolves a processing attempt. A rate-limit failure leaves
// retry_count untouched and always goes back to the retry set.
func (q *Queue) MarkFailed(ctx context.Context, taskID, errMsg string, isRateLimit bool) error {
	rl := "0"
	if isRateLimit {
		rl = "1"
	}
	reply, err := markFailedScript.Run(ctx, q.client, nil,
		q.keys.prefix, taskID, errMsg, rl, q.config.MaxRetries, q.now().UnixMilli(),
	).Result()
	if err != nil {
		return mapError("mark failed", err)
	}
	res, err := toScriptResult(reply)
	if err != nil {
		return err
	}
	if code := res.int(0); code != 1 {
		return transitionError(code, taskID, res.str(3))
	}

	if res.str(3) == string(task.StatusFailed) {
		q.logger.Warn("task permanently failed",
			"task_id", taskID,
			"job_id", res.str(2),
			"error", errMsg)
	}
	if res.int(1) == 1 {
		q.notifyCompleted(ctx, []string{res.str(2)})
	}
	return nil
}

// ReclaimExpired treats every processing task whose lease ended before now
// as a counted failure.
func (q *Queue) ReclaimExpired(ctx context.Context, now time.Time) (int, error) {
	reply, err := reclaimScript.Run(ctx, q.client, nil,
		q.keys.prefix, now.UnixMilli(), q.config.MaxRetries,
	).Result()
	if err != nil {
		return 0, mapError("reclaim expired", err)
	}
	res, err := toScriptResult(reply)
	if err != nil {
		return 0, err
	}

	ids := res.strings(0)
	for _, id := range ids {
		q.logger.Warn("reclaimed task with expired lease", "task_id", id)
	}
	q.notifyCompleted(ctx, res.strings(1))
	return len(ids), nil
}

// GetTask returns one task record.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	m, err := q.client.HGetAll(ctx, q.keys.task(taskID)).Result()
	if err != nil {
		return nil, mapError("get task", err)
	}
	t, err := decodeTask(m)
	if errors.Is(err, task.ErrTaskNotFound) {
		return nil, fmt.Errorf("%w: %s", task.ErrTaskNotFound, taskID)
	}
	return t, err
}

// GetJobStatus tallies the job's tasks. It never writes.
func (q *Queue) GetJobStatus(ctx context.Context, jobID string) (*task.JobStatus, error) {
	ids, err := q.client.ZRange(ctx, q.keys.jobTasks(jobID), 0, -1).Result()
	if err != nil {
		return nil, mapError("get job status", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s", task.ErrJobNotFound, jobID)
	}

	// MULTI gives one consistent snapshot of all task states.
	pipe := q.client.TxPipeline()
	cmds := make([]*redis.SliceCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HMGet(ctx, q.keys.task(id), "status", "result", "cancelled")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, mapError("get job status", err)
	}

	status := &task.JobStatus{JobID: jobID, Results: []string{}}
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) < 3 || vals[0] == nil {
			continue
		}
		st, _ := vals[0].(string)
		result, _ := vals[1].(string)
		cancelled, _ := vals[2].(string)
		status.Add(&task.Task{Status: task.Status(st), Result: result, Cancelled: cancelled == "1"})
	}
	return status, nil
}

// JobTasks returns the full records of a job's tasks in submission order.
func (q *Queue) JobTasks(ctx context.Context, jobID string) ([]*task.Task, error) {
	ids, err := q.client.ZRange(ctx, q.keys.jobTasks(jobID), 0, -1).Result()
	if err != nil {
		return nil, mapError("job tasks", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s", task.ErrJobNotFound, jobID)
	}
	return q.loadTasks(ctx, ids)
}

// CancelJob fails the job's tasks that are not checked out. Processing
// tasks are left to finish and reported as still processing.
func (q *Queue) CancelJob(ctx context.Context, jobID string) (task.CancelResult, error) {
	reply, err := cancelJobScript.Run(ctx, q.client, nil,
		q.keys.prefix, jobID, q.now().UnixMilli(),
	).Result()
	if err != nil {
		return task.CancelResult{}, mapError("cancel job", err)
	}
	res, err := toScriptResult(reply)
	if err != nil {
		return task.CancelResult{}, err
	}
	if res.int(0) == -1 {
		return task.CancelResult{}, fmt.Errorf("%w: %s", task.ErrJobNotFound, jobID)
	}

	result := task.CancelResult{
		Cancelled:       int(res.int(1)),
		StillProcessing: int(res.int(2)),
	}
	q.logger.Info("job cancelled",
		"job_id", jobID,
		"cancelled", result.Cancelled,
		"still_processing", result.StillProcessing)
	if res.int(3) == 1 {
		q.notifyCompleted(ctx, []string{jobID})
	}
	return result, nil
}

// Cleanup purges every record of the job. Callers decide when history may
// go; nothing expires on its own.
func (q *Queue) Cleanup(ctx context.Context, jobID string) error {
	n, err := cleanupScript.Run(ctx, q.client, nil, q.keys.prefix, jobID).Int64()
	if err != nil {
		return mapError("cleanup", err)
	}
	q.logger.Info("job records purged", "job_id", jobID, "tasks", n)
	return nil
}

// Stats returns the size of every state set and the number of known jobs.
func (q *Queue) Stats(ctx context.Context) (task.QueueStats, error) {
	pipe := q.client.TxPipeline()
	pending := pipe.ZCard(ctx, q.keys.pending())
	processing := pipe.ZCard(ctx, q.keys.processing())
	retry := pipe.ZCard(ctx, q.keys.retry())
	completed := pipe.ZCard(ctx, q.keys.completed())
	failed := pipe.ZCard(ctx, q.keys.failed())
	jobs := pipe.SCard(ctx, q.keys.jobs())
	if _, err := pipe.Exec(ctx); err != nil {
		return task.QueueStats{}, mapError("stats", err)
	}

	return task.QueueStats{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Retry:      retry.Val(),
		Completed:  completed.Val(),
		Failed:     failed.Val(),
		TotalJobs:  jobs.Val(),
	}, nil
}

// GetDependency returns the dependency record of a group.
func (q *Queue) GetDependency(ctx context.Context, group string) (*task.Dependency, error) {
	m, err := q.client.HGetAll(ctx, q.keys.dep(group)).Result()
	if err != nil {
		return nil, mapError("get dependency", err)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("%w: no dependency record for group %s", task.ErrTaskNotFound, group)
	}
	return &task.Dependency{
		Group:        group,
		LeaderTaskID: m["leader_task_id"],
		Completed:    m["completed"] == "1",
		Failed:       m["failed"] == "1",
		ResultPath:   m["result_path"],
	}, nil
}

// notifyCompleted announces jobs a transition just finished. Without an
// emitter the announcements stay in the completions set for a worker's
// DeliverCompletions. Emission is best effort: the transition already
// happened and is not reported as failed because a handler did.
func (q *Queue) notifyCompleted(ctx context.Context, jobIDs []string) {
	for _, jobID := range jobIDs {
		if jobID == "" {
			continue
		}
		q.logger.Info("job completed", "job_id", jobID)
		if q.emitter == nil {
			continue
		}
		if _, err := q.announce(ctx, jobID); err != nil {
			q.logger.Error("job completion handler failed", "job_id", jobID, "error", err)
		}
	}
}

// DeliverCompletions drains the completions set through the emitter. A queue
// without an emitter leaves the set alone.
func (q *Queue) DeliverCompletions(ctx context.Context) (int, error) {
	if q.emitter == nil {
		return 0, nil
	}
	jobIDs, err := q.client.SMembers(ctx, q.keys.completions()).Result()
	if err != nil {
		return 0, mapError("list completions", err)
	}

	delivered := 0
	for _, jobID := range jobIDs {
		ok, err := q.announce(ctx, jobID)
		if err != nil {
			q.logger.Error("deferred job completion not delivered", "job_id", jobID, "error", err)
			continue
		}
		if ok {
			delivered++
		}
	}
	if delivered > 0 {
		q.logger.Info("delivered deferred job completions", "count", delivered)
	}
	return delivered, nil
}

// announce claims jobID from the completions set and emits job.completed.
// It reports false when another process claimed it first. A failed delivery
// puts the claim back so a later sweep retries it, unless the job has been
// purged meanwhile.
func (q *Queue) announce(ctx context.Context, jobID string) (bool, error) {
	claimed, err := q.client.SRem(ctx, q.keys.completions(), jobID).Result()
	if err != nil {
		return false, mapError("claim completion", err)
	}
	if claimed == 0 {
		return false, nil
	}

	err = q.emitCompleted(ctx, jobID)
	if err == nil || errors.Is(err, task.ErrJobNotFound) {
		return err == nil, err
	}
	if rerr := q.client.SAdd(context.WithoutCancel(ctx), q.keys.completions(), jobID).Err(); rerr != nil {
		q.logger.Error("failed to requeue job completion", "job_id", jobID, "error", rerr)
	}
	return false, err
}

func (q *Queue) emitCompleted(ctx context.Context, jobID string) error {
	status, err := q.GetJobStatus(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load status of completed job: %w", err)
	}
	event, err := events.NewJobEvent(events.TypeJobCompleted, jobID, status)
	if err != nil {
		return fmt.Errorf("build job event: %w", err)
	}
	return q.emitter.EmitEvent(ctx, event)
}
