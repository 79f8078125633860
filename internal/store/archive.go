package store

import (
	"context"
	"time"

	"github.com/phrazzld/adforge/internal/task"
)

// JobArchive is the durable record of a finished job, written before its
// live state is purged from the queue.
type JobArchive struct {
	JobID      string         `json:"job_id"`
	Status     task.JobStatus `json:"status"`
	Tasks      []ArchivedTask `json:"tasks"`
	ArchivedAt time.Time      `json:"archived_at"`
}

// ArchivedTask is the final state of one task of an archived job.
type ArchivedTask struct {
	TaskID          string              `json:"task_id"`
	DependencyGroup string              `json:"dependency_group,omitempty"`
	DependencyType  task.DependencyType `json:"dependency_type"`
	Status          task.Status         `json:"status"`
	RetryCount      int                 `json:"retry_count"`
	LastError       string              `json:"last_error,omitempty"`
	Result          string              `json:"result,omitempty"`
	Cancelled       bool                `json:"cancelled,omitempty"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
}

// NewJobArchive snapshots a job from its tasks.
func NewJobArchive(jobID string, tasks []*task.Task, now time.Time) *JobArchive {
	a := &JobArchive{
		JobID:      jobID,
		Status:     task.JobStatus{JobID: jobID, Results: []string{}},
		Tasks:      make([]ArchivedTask, 0, len(tasks)),
		ArchivedAt: now.UTC(),
	}
	for _, t := range tasks {
		a.Status.Add(t)
		a.Tasks = append(a.Tasks, ArchivedTask{
			TaskID:          t.ID,
			DependencyGroup: t.DependencyGroup,
			DependencyType:  t.DependencyType,
			Status:          t.Status,
			RetryCount:      t.RetryCount,
			LastError:       t.LastError,
			Result:          t.Result,
			Cancelled:       t.Cancelled,
			CompletedAt:     t.CompletedAt,
		})
	}
	return a
}

// JobArchiveStore persists archives of finished jobs.
type JobArchiveStore interface {
	// Save writes the archive, replacing an earlier one for the same job.
	Save(ctx context.Context, archive *JobArchive) error

	// Get returns the archive of a job or ErrArchiveNotFound.
	Get(ctx context.Context, jobID string) (*JobArchive, error)
}
