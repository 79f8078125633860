package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/adforge/internal/store"
	"github.com/phrazzld/adforge/internal/task"
)

// JobQueue is the queue surface the job service needs on top of task.Queue.
type JobQueue interface {
	task.Queue

	// JobTasks returns the full task records of a job in submission order.
	JobTasks(ctx context.Context, jobID string) ([]*task.Task, error)

	// Ping checks that the coordination store is reachable.
	Ping(ctx context.Context) error
}

// JobSubmission reports the ids assigned to a submitted job.
type JobSubmission struct {
	JobID   string   `json:"job_id"`
	TaskIDs []string `json:"task_ids"`
}

// JobService provides the producer-facing job operations.
type JobService interface {
	// Submit registers one task. A missing task id is generated.
	Submit(ctx context.Context, t *task.Task) (string, error)

	// SubmitJob registers every task of a job in order. A missing job id is
	// generated and stamped onto the tasks; tasks naming another job are
	// rejected before anything is written.
	SubmitJob(ctx context.Context, jobID string, tasks []*task.Task) (*JobSubmission, error)

	// GetJobStatus returns the live status of a job, or its archived status
	// once the job has been cleaned up.
	GetJobStatus(ctx context.Context, jobID string) (*task.JobStatus, error)

	// CancelJob fails the tasks of a job that have not been checked out.
	CancelJob(ctx context.Context, jobID string) (task.CancelResult, error)

	// ArchiveJob writes the archive of a complete job without purging it.
	ArchiveJob(ctx context.Context, jobID string) (*store.JobArchive, error)

	// FinalizeJob archives a complete job and purges its live records.
	// Finalizing an already finalized job returns its archive.
	FinalizeJob(ctx context.Context, jobID string) (*store.JobArchive, error)

	// QueueStats returns the operational view of the queue.
	QueueStats(ctx context.Context) (task.QueueStats, error)

	// RateLimiterStatus returns the occupancy of the admission window.
	RateLimiterStatus(ctx context.Context) (task.LimiterStatus, error)

	// Ping checks that the coordination store is reachable.
	Ping(ctx context.Context) error
}

type jobServiceImpl struct {
	queue    JobQueue
	archives store.JobArchiveStore
	limiter  task.Limiter
	logger   *slog.Logger
	now      func() time.Time
}

var _ JobService = (*jobServiceImpl)(nil)

// NewJobService creates a JobService.
// It returns an error if any of the required dependencies are nil.
func NewJobService(
	queue JobQueue,
	archives store.JobArchiveStore,
	limiter task.Limiter,
	logger *slog.Logger,
) (JobService, error) {
	if queue == nil {
		return nil, &JobServiceError{Operation: "create_service", Message: "queue cannot be nil"}
	}
	if archives == nil {
		return nil, &JobServiceError{Operation: "create_service", Message: "archives cannot be nil"}
	}
	if limiter == nil {
		return nil, &JobServiceError{Operation: "create_service", Message: "limiter cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &jobServiceImpl{
		queue:    queue,
		archives: archives,
		limiter:  limiter,
		logger:   logger.With("component", "job_service"),
		now:      time.Now,
	}, nil
}

func (s *jobServiceImpl) Submit(ctx context.Context, t *task.Task) (string, error) {
	if t == nil {
		return "", fmt.Errorf("%w: task is required", task.ErrInvalidTask)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	id, err := s.queue.Submit(ctx, t)
	if err != nil {
		s.logger.Warn("failed to submit task",
			"error", err,
			"task_id", t.ID,
			"job_id", t.JobID)
		return "", NewJobServiceError("submit_task", "failed to enqueue task", err)
	}

	s.logger.Info("task submitted",
		"task_id", id,
		"job_id", t.JobID,
		"dependency_type", t.DependencyType)
	return id, nil
}

func (s *jobServiceImpl) SubmitJob(
	ctx context.Context,
	jobID string,
	tasks []*task.Task,
) (*JobSubmission, error) {
	if len(tasks) == 0 {
		return nil, ErrEmptyJob
	}
	if jobID == "" {
		jobID = uuid.NewString()
	}

	seen := make(map[string]struct{}, len(tasks))
	for i, t := range tasks {
		if t == nil {
			return nil, fmt.Errorf("%w: task %d is empty", task.ErrInvalidTask, i)
		}
		if t.JobID == "" {
			t.JobID = jobID
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.Normalize()
		if t.JobID != jobID {
			return nil, fmt.Errorf("%w: task %s belongs to job %s, not %s",
				task.ErrInvalidTask, t.ID, t.JobID, jobID)
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("%w: task_id %s appears twice", task.ErrInvalidTask, t.ID)
		}
		seen[t.ID] = struct{}{}
	}

	sub := &JobSubmission{JobID: jobID, TaskIDs: make([]string, 0, len(tasks))}
	for _, t := range tasks {
		id, err := s.queue.Submit(ctx, t)
		if err != nil {
			s.logger.Error("job submission stopped part way",
				"error", err,
				"job_id", jobID,
				"task_id", t.ID,
				"submitted", len(sub.TaskIDs))
			return sub, NewJobServiceError("submit_job", "failed to enqueue task "+t.ID, err)
		}
		sub.TaskIDs = append(sub.TaskIDs, id)
	}

	s.logger.Info("job submitted", "job_id", jobID, "tasks", len(sub.TaskIDs))
	return sub, nil
}

func (s *jobServiceImpl) GetJobStatus(ctx context.Context, jobID string) (*task.JobStatus, error) {
	status, err := s.queue.GetJobStatus(ctx, jobID)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, task.ErrJobNotFound) {
		s.logger.Error("failed to read job status", "error", err, "job_id", jobID)
		return nil, NewJobServiceError("get_job_status", "failed to read job status", err)
	}

	archive, err := s.archives.Get(ctx, jobID)
	if err != nil {
		if !store.IsNotFoundError(err) {
			s.logger.Error("failed to read job archive", "error", err, "job_id", jobID)
		}
		return nil, NewJobServiceError("get_job_status", "failed to read job archive", err)
	}

	s.logger.Debug("served job status from archive", "job_id", jobID)
	st := archive.Status
	return &st, nil
}

func (s *jobServiceImpl) CancelJob(ctx context.Context, jobID string) (task.CancelResult, error) {
	res, err := s.queue.CancelJob(ctx, jobID)
	if err != nil {
		return task.CancelResult{}, NewJobServiceError("cancel_job", "failed to cancel job", err)
	}
	s.logger.Info("job cancelled",
		"job_id", jobID,
		"cancelled", res.Cancelled,
		"still_processing", res.StillProcessing)
	return res, nil
}

func (s *jobServiceImpl) ArchiveJob(ctx context.Context, jobID string) (*store.JobArchive, error) {
	tasks, err := s.queue.JobTasks(ctx, jobID)
	if err != nil {
		return nil, NewJobServiceError("archive_job", "failed to load job tasks", err)
	}

	archive := store.NewJobArchive(jobID, tasks, s.now())
	if !archive.Status.IsComplete {
		return nil, fmt.Errorf("%w: %s has %d pending, %d processing, %d retrying",
			ErrJobNotComplete, jobID,
			archive.Status.Pending, archive.Status.Processing, archive.Status.Retrying)
	}

	if err := s.archives.Save(ctx, archive); err != nil {
		s.logger.Error("failed to archive job", "error", err, "job_id", jobID)
		return nil, NewJobServiceError("archive_job", "failed to save archive", err)
	}

	s.logger.Info("job archived",
		"job_id", jobID,
		"completed", archive.Status.Completed,
		"failed", archive.Status.Failed)
	return archive, nil
}

func (s *jobServiceImpl) FinalizeJob(ctx context.Context, jobID string) (*store.JobArchive, error) {
	archive, err := s.ArchiveJob(ctx, jobID)
	if errors.Is(err, task.ErrJobNotFound) {
		// Already purged: the archive is the only record left.
		existing, getErr := s.archives.Get(ctx, jobID)
		if getErr != nil {
			return nil, NewJobServiceError("finalize_job", "failed to read job archive", getErr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.queue.Cleanup(ctx, jobID); err != nil {
		s.logger.Error("job archived but cleanup failed", "error", err, "job_id", jobID)
		return nil, NewJobServiceError("finalize_job", "failed to purge job", err)
	}

	s.logger.Info("job finalized", "job_id", jobID, "tasks", archive.Status.Total)
	return archive, nil
}

func (s *jobServiceImpl) QueueStats(ctx context.Context) (task.QueueStats, error) {
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return task.QueueStats{}, NewJobServiceError("queue_stats", "failed to read queue stats", err)
	}
	return stats, nil
}

func (s *jobServiceImpl) RateLimiterStatus(ctx context.Context) (task.LimiterStatus, error) {
	status, err := s.limiter.Status(ctx)
	if err != nil {
		return task.LimiterStatus{}, NewJobServiceError("rate_limiter_status", "failed to read limiter", err)
	}
	return status, nil
}

func (s *jobServiceImpl) Ping(ctx context.Context) error {
	return s.queue.Ping(ctx)
}
