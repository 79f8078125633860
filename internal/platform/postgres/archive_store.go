package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/phrazzld/adforge/internal/platform/logger"
	"github.com/phrazzld/adforge/internal/store"
	"github.com/phrazzld/adforge/internal/task"
)

var _ store.JobArchiveStore = (*JobArchiveStore)(nil)

const (
	upsertArchiveQuery = `
		INSERT INTO job_archives (job_id, total, completed, failed, cancelled, results, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id) DO UPDATE SET
			total = EXCLUDED.total,
			completed = EXCLUDED.completed,
			failed = EXCLUDED.failed,
			cancelled = EXCLUDED.cancelled,
			results = EXCLUDED.results,
			archived_at = EXCLUDED.archived_at
	`

	deleteArchiveTasksQuery = `DELETE FROM job_archive_tasks WHERE job_id = $1`

	insertArchiveTaskQuery = `
		INSERT INTO job_archive_tasks (
			job_id, task_id, position, dependency_group, dependency_type,
			status, retry_count, last_error, result, cancelled, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	selectArchiveQuery = `
		SELECT total, completed, failed, cancelled, results, archived_at
		FROM job_archives
		WHERE job_id = $1
	`

	selectArchiveTasksQuery = `
		SELECT task_id, dependency_group, dependency_type, status, retry_count,
			last_error, result, cancelled, completed_at
		FROM job_archive_tasks
		WHERE job_id = $1
		ORDER BY position ASC
	`
)

// JobArchiveStore implements store.JobArchiveStore on PostgreSQL.
type JobArchiveStore struct {
	db *sql.DB
}

// NewJobArchiveStore creates a JobArchiveStore.
func NewJobArchiveStore(db *sql.DB) *JobArchiveStore {
	return &JobArchiveStore{db: db}
}

// Save upserts the archive row and replaces its task rows in one
// transaction.
func (s *JobArchiveStore) Save(ctx context.Context, a *store.JobArchive) error {
	if a == nil || a.JobID == "" {
		return fmt.Errorf("%w: archive requires a job id", store.ErrInvalidEntity)
	}
	log := logger.FromContext(ctx).With("job_id", a.JobID)

	results := a.Status.Results
	if results == nil {
		results = []string{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("%w: encode results: %v", store.ErrInvalidEntity, err)
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertArchiveQuery,
			a.JobID,
			a.Status.Total,
			a.Status.Completed,
			a.Status.Failed,
			a.Status.Cancelled,
			resultsJSON,
			a.ArchivedAt,
		); err != nil {
			return MapError(err)
		}

		if _, err := tx.ExecContext(ctx, deleteArchiveTasksQuery, a.JobID); err != nil {
			return MapError(err)
		}

		for i, t := range a.Tasks {
			var completedAt sql.NullTime
			if t.CompletedAt != nil {
				completedAt = sql.NullTime{Time: *t.CompletedAt, Valid: true}
			}
			if _, err := tx.ExecContext(ctx, insertArchiveTaskQuery,
				a.JobID,
				t.TaskID,
				i,
				t.DependencyGroup,
				string(t.DependencyType),
				string(t.Status),
				t.RetryCount,
				t.LastError,
				t.Result,
				t.Cancelled,
				completedAt,
			); err != nil {
				if IsUniqueViolation(err) {
					return fmt.Errorf("task %s listed twice: %w", t.TaskID, MapError(err))
				}
				return MapError(err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error("failed to save job archive", "error", err)
		return store.NewStoreError("job_archive", "save", "could not persist archive", err)
	}

	log.Debug("job archive saved", "tasks", len(a.Tasks))
	return nil
}

// Get loads an archive with its tasks in submission order.
func (s *JobArchiveStore) Get(ctx context.Context, jobID string) (*store.JobArchive, error) {
	a := &store.JobArchive{
		JobID:  jobID,
		Status: task.JobStatus{JobID: jobID, IsComplete: true},
	}

	var resultsJSON []byte
	err := s.db.QueryRowContext(ctx, selectArchiveQuery, jobID).Scan(
		&a.Status.Total,
		&a.Status.Completed,
		&a.Status.Failed,
		&a.Status.Cancelled,
		&resultsJSON,
		&a.ArchivedAt,
	)
	if IsNotFoundError(err) {
		return nil, fmt.Errorf("%w: %s", store.ErrArchiveNotFound, jobID)
	}
	if err != nil {
		return nil, store.NewStoreError("job_archive", "get", "query failed", MapError(err))
	}
	if err := json.Unmarshal(resultsJSON, &a.Status.Results); err != nil {
		return nil, store.NewStoreError("job_archive", "get", "corrupt results column", err)
	}

	tasks, err := s.getTasks(ctx, jobID)
	if err != nil {
		return nil, err
	}
	a.Tasks = tasks
	return a, nil
}

func (s *JobArchiveStore) getTasks(ctx context.Context, jobID string) ([]store.ArchivedTask, error) {
	rows, err := s.db.QueryContext(ctx, selectArchiveTasksQuery, jobID)
	if err != nil {
		return nil, store.NewStoreError("job_archive", "get", "task query failed", MapError(err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logger.FromContext(ctx).Warn("failed to close rows", "error", cerr)
		}
	}()

	tasks := []store.ArchivedTask{}
	for rows.Next() {
		var (
			t           store.ArchivedTask
			depType     string
			status      string
			completedAt sql.NullTime
		)
		if err := rows.Scan(
			&t.TaskID,
			&t.DependencyGroup,
			&depType,
			&status,
			&t.RetryCount,
			&t.LastError,
			&t.Result,
			&t.Cancelled,
			&completedAt,
		); err != nil {
			return nil, store.NewStoreError("job_archive", "get", "scan task", err)
		}
		t.DependencyType = task.DependencyType(depType)
		t.Status = task.Status(status)
		if completedAt.Valid {
			ts := completedAt.Time.UTC()
			t.CompletedAt = &ts
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("job_archive", "get", "iterate tasks", err)
	}
	return tasks, nil
}
