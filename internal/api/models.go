package api

import (
	"time"

	"github.com/phrazzld/adforge/internal/task"
)

// MaxTasksPerJob bounds a single job submission.
const MaxTasksPerJob = 500

// TaskRequest is one task of a submission.
type TaskRequest struct {
	TaskID          string         `json:"task_id"          validate:"omitempty,max=128"`
	JobID           string         `json:"job_id"           validate:"omitempty,max=128"`
	DependencyGroup string         `json:"dependency_group" validate:"omitempty,max=128"`
	DependencyType  string         `json:"dependency_type"  validate:"omitempty,oneof=none leader follower"`
	Payload         map[string]any `json:"payload"`
}

// ToTask converts the request into a pending task.
func (r TaskRequest) ToTask() *task.Task {
	t := task.NewTask(r.TaskID, r.JobID, r.Payload)
	t.DependencyGroup = r.DependencyGroup
	if r.DependencyType != "" {
		t.DependencyType = task.DependencyType(r.DependencyType)
	}
	return t
}

// SubmitJobRequest submits every task of a job in order.
type SubmitJobRequest struct {
	JobID string        `json:"job_id" validate:"omitempty,max=128"`
	Tasks []TaskRequest `json:"tasks"  validate:"required,min=1,max=500,dive"`
}

// SubmitTaskResponse acknowledges a single task submission.
type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
	JobID  string `json:"job_id"`
}

// CancelJobResponse reports what a cancellation revoked.
type CancelJobResponse struct {
	JobID           string `json:"job_id"`
	Cancelled       int    `json:"cancelled"`
	StillProcessing int    `json:"still_processing"`
}

// FinalizeJobResponse is the archived summary of a finalized job.
type FinalizeJobResponse struct {
	JobID      string         `json:"job_id"`
	Status     task.JobStatus `json:"status"`
	ArchivedAt time.Time      `json:"archived_at"`
}

// LimiterStatusResponse is the admission window occupancy.
type LimiterStatusResponse struct {
	Current       int     `json:"current"`
	Limit         int     `json:"limit"`
	WindowSeconds float64 `json:"window_seconds"`
	Available     int     `json:"available"`
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status string `json:"status"`
}
