package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Status represents the lifecycle state of a task.
type Status string

// A task is in exactly one of these states at any time.
const (
	StatusPending    Status = "pending"
	StatusRetrying   Status = "retrying"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition can leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DependencyType places a task inside its dependency group.
type DependencyType string

const (
	DependencyNone     DependencyType = "none"
	DependencyLeader   DependencyType = "leader"
	DependencyFollower DependencyType = "follower"
)

// LeaderResultPathKey is the payload key under which a follower receives the
// result of its group's leader. Producers may not set it themselves.
const LeaderResultPathKey = "leader_result_path"

// Task is one unit of generation work.
type Task struct {
	ID              string         `json:"task_id"`
	JobID           string         `json:"job_id"`
	DependencyGroup string         `json:"dependency_group,omitempty"`
	DependencyType  DependencyType `json:"dependency_type"`
	// Payload holds opaque generation parameters. The queue only adds
	// LeaderResultPathKey to it when releasing a follower.
	Payload map[string]any `json:"payload,omitempty"`

	Status           Status `json:"status"`
	RetryCount       int    `json:"retry_count"`
	LastError        string `json:"last_error,omitempty"`
	Result           string `json:"result,omitempty"`
	LeaderResultPath string `json:"leader_result_path,omitempty"`
	Cancelled        bool   `json:"cancelled,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
}

// NewTask builds a pending task with a normalised dependency type.
func NewTask(id, jobID string, payload map[string]any) *Task {
	return &Task{
		ID:             id,
		JobID:          jobID,
		DependencyType: DependencyNone,
		Payload:        payload,
		Status:         StatusPending,
	}
}

// AsLeader marks the task as the leader of group.
func (t *Task) AsLeader(group string) *Task {
	t.DependencyType = DependencyLeader
	t.DependencyGroup = group
	return t
}

// AsFollower marks the task as a follower in group.
func (t *Task) AsFollower(group string) *Task {
	t.DependencyType = DependencyFollower
	t.DependencyGroup = group
	return t
}

// Normalize fills defaults that producers may leave empty.
func (t *Task) Normalize() {
	if t.DependencyType == "" {
		t.DependencyType = DependencyNone
	}
	t.ID = strings.TrimSpace(t.ID)
	t.JobID = strings.TrimSpace(t.JobID)
	t.DependencyGroup = strings.TrimSpace(t.DependencyGroup)
}

// Validate checks the producer-supplied fields of a task.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: task_id is required", ErrInvalidTask)
	}
	if t.JobID == "" {
		return fmt.Errorf("%w: job_id is required", ErrInvalidTask)
	}
	if strings.IndexFunc(t.ID, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: task_id %q contains whitespace", ErrInvalidTask, t.ID)
	}
	if strings.IndexFunc(t.JobID, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: job_id %q contains whitespace", ErrInvalidTask, t.JobID)
	}

	switch t.DependencyType {
	case DependencyNone:
		if t.DependencyGroup != "" {
			return fmt.Errorf("%w: dependency_group set without a dependency_type", ErrInvalidTask)
		}
	case DependencyLeader, DependencyFollower:
		if t.DependencyGroup == "" {
			return fmt.Errorf("%w: %s task requires a dependency_group", ErrInvalidTask, t.DependencyType)
		}
	default:
		return fmt.Errorf("%w: unknown dependency_type %q", ErrInvalidTask, t.DependencyType)
	}

	if _, ok := t.Payload[LeaderResultPathKey]; ok {
		return fmt.Errorf("%w: payload key %q is reserved", ErrInvalidTask, LeaderResultPathKey)
	}

	return nil
}

// Dependency is the shared record of one dependency group.
type Dependency struct {
	Group        string `json:"dependency_group"`
	LeaderTaskID string `json:"leader_task_id"`
	Completed    bool   `json:"completed"`
	Failed       bool   `json:"failed"`
	ResultPath   string `json:"result_path,omitempty"`
}

// JobStatus aggregates the tasks of one job. It is derived on read.
type JobStatus struct {
	JobID      string `json:"job_id"`
	Total      int    `json:"total"`
	Pending    int    `json:"pending"`
	Processing int    `json:"processing"`
	Retrying   int    `json:"retrying"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	// Cancelled counts the failed tasks that were failed by CancelJob.
	Cancelled  int      `json:"cancelled"`
	IsComplete bool     `json:"is_complete"`
	Results    []string `json:"results"`
}

// Add tallies one task into the aggregate.
func (s *JobStatus) Add(t *Task) {
	s.Total++
	switch t.Status {
	case StatusPending:
		s.Pending++
	case StatusProcessing:
		s.Processing++
	case StatusRetrying:
		s.Retrying++
	case StatusCompleted:
		s.Completed++
		if t.Result != "" {
			s.Results = append(s.Results, t.Result)
		}
	case StatusFailed:
		s.Failed++
		if t.Cancelled {
			s.Cancelled++
		}
	}
	s.IsComplete = s.Pending == 0 && s.Processing == 0 && s.Retrying == 0
}

// QueueStats is the operational view of the queue.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Retry      int64 `json:"retry"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	TotalJobs  int64 `json:"total_jobs"`
}

// CancelResult reports what CancelJob could and could not revoke.
type CancelResult struct {
	Cancelled       int `json:"cancelled"`
	StillProcessing int `json:"still_processing"`
}

// LimiterStatus is the operational view of the admission limiter.
type LimiterStatus struct {
	Current   int           `json:"current"`
	Limit     int           `json:"limit"`
	Window    time.Duration `json:"-"`
	Available int           `json:"available"`
}

// MarshalJSON renders the window in seconds.
func (s LimiterStatus) MarshalJSON() ([]byte, error) {
	type alias LimiterStatus
	return json.Marshal(struct {
		alias
		WindowSeconds float64 `json:"window"`
	}{alias(s), s.Window.Seconds()})
}
