package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/phrazzld/adforge/internal/platform/logger"
	"github.com/phrazzld/adforge/internal/store"
	"github.com/phrazzld/adforge/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	svc      *jobServiceImpl
	queue    *MockJobQueue
	archives *MockArchiveStore
	limiter  *MockLimiter
}

var archiveTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		queue:    &MockJobQueue{},
		archives: &MockArchiveStore{},
		limiter:  &MockLimiter{},
	}
	log, _ := logger.NewTestLogger()
	svc, err := NewJobService(f.queue, f.archives, f.limiter, log)
	require.NoError(t, err)
	f.svc = svc.(*jobServiceImpl)
	f.svc.now = func() time.Time { return archiveTime }

	t.Cleanup(func() {
		f.queue.AssertExpectations(t)
		f.archives.AssertExpectations(t)
		f.limiter.AssertExpectations(t)
	})
	return f
}

func doneTask(id, jobID, result string) *task.Task {
	t := task.NewTask(id, jobID, nil)
	t.Status = task.StatusCompleted
	t.Result = result
	return t
}

func TestNewJobService_RequiresDependencies(t *testing.T) {
	t.Parallel()
	q, a, l := &MockJobQueue{}, &MockArchiveStore{}, &MockLimiter{}

	_, err := NewJobService(nil, a, l, nil)
	assert.Error(t, err)
	_, err = NewJobService(q, nil, l, nil)
	assert.Error(t, err)
	_, err = NewJobService(q, a, nil, nil)
	assert.Error(t, err)

	svc, err := NewJobService(q, a, l, nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestSubmit_GeneratesMissingID(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	tk := task.NewTask("", "job-1", map[string]any{"prompt": "x"})

	f.queue.On("Submit", mock.Anything, tk).Return("generated", nil).Run(func(args mock.Arguments) {
		assert.NotEmpty(t, args.Get(1).(*task.Task).ID)
	})

	id, err := f.svc.Submit(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, "generated", id)
}

func TestSubmit_PassesQueueSentinels(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	tk := task.NewTask("t1", "job-1", nil)

	f.queue.On("Submit", mock.Anything, tk).Return("", fmt.Errorf("%w: t1", task.ErrDuplicateTask))

	_, err := f.svc.Submit(context.Background(), tk)
	assert.ErrorIs(t, err, task.ErrDuplicateTask)
	var se *JobServiceError
	assert.False(t, errors.As(err, &se), "expected conditions are not wrapped")
}

func TestSubmit_NilTask(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)

	_, err := f.svc.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, task.ErrInvalidTask)
}

func TestSubmitJob(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	tasks := []*task.Task{
		task.NewTask("hero", "", nil).AsLeader("g1"),
		task.NewTask("", "", nil).AsFollower("g1"),
	}

	f.queue.On("Submit", mock.Anything, mock.MatchedBy(func(tk *task.Task) bool {
		return tk.ID == "hero"
	})).Return("hero", nil).Once()
	f.queue.On("Submit", mock.Anything, mock.MatchedBy(func(tk *task.Task) bool {
		return tk.ID != "hero" && tk.ID != "" && tk.DependencyType == task.DependencyFollower
	})).Return("variant", nil).Once()

	sub, err := f.svc.SubmitJob(context.Background(), "", tasks)
	require.NoError(t, err)
	require.NotEmpty(t, sub.JobID)
	assert.Equal(t, []string{"hero", "variant"}, sub.TaskIDs)
	for _, tk := range tasks {
		assert.Equal(t, sub.JobID, tk.JobID)
	}
}

func TestSubmitJob_RejectsBeforeWriting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		jobID   string
		tasks   []*task.Task
		wantErr error
	}{
		{
			name:    "empty",
			jobID:   "job-1",
			wantErr: ErrEmptyJob,
		},
		{
			name:    "foreign job",
			jobID:   "job-1",
			tasks:   []*task.Task{task.NewTask("a", "job-1", nil), task.NewTask("b", "job-2", nil)},
			wantErr: task.ErrInvalidTask,
		},
		{
			name:    "duplicate ids",
			jobID:   "job-1",
			tasks:   []*task.Task{task.NewTask("a", "", nil), task.NewTask("a", "", nil)},
			wantErr: task.ErrInvalidTask,
		},
		{
			name:    "invalid task",
			jobID:   "job-1",
			tasks:   []*task.Task{task.NewTask("a", "", nil), task.NewTask("b", "", nil).AsLeader("")},
			wantErr: task.ErrInvalidTask,
		},
		{
			name:    "nil task",
			jobID:   "job-1",
			tasks:   []*task.Task{nil},
			wantErr: task.ErrInvalidTask,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newServiceFixture(t)

			_, err := f.svc.SubmitJob(context.Background(), tt.jobID, tt.tasks)
			assert.ErrorIs(t, err, tt.wantErr)
			f.queue.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmitJob_StopsOnQueueFailure(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	first := task.NewTask("a", "job-1", nil)
	second := task.NewTask("b", "job-1", nil)

	f.queue.On("Submit", mock.Anything, first).Return("a", nil).Once()
	f.queue.On("Submit", mock.Anything, second).Return("", fmt.Errorf("%w: boom", task.ErrQueueUnavailable)).Once()

	sub, err := f.svc.SubmitJob(context.Background(), "job-1", []*task.Task{first, second})
	assert.ErrorIs(t, err, task.ErrQueueUnavailable)
	var se *JobServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "submit_job", se.Operation)
	require.NotNil(t, sub)
	assert.Equal(t, []string{"a"}, sub.TaskIDs)
}

func TestGetJobStatus(t *testing.T) {
	t.Parallel()

	t.Run("live", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		live := &task.JobStatus{JobID: "job-1", Total: 2, Pending: 1, Completed: 1}
		f.queue.On("GetJobStatus", mock.Anything, "job-1").Return(live, nil)

		got, err := f.svc.GetJobStatus(context.Background(), "job-1")
		require.NoError(t, err)
		assert.Same(t, live, got)
	})

	t.Run("archived", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		f.queue.On("GetJobStatus", mock.Anything, "job-1").Return(nil, task.ErrJobNotFound)
		f.archives.On("Get", mock.Anything, "job-1").Return(&store.JobArchive{
			JobID:  "job-1",
			Status: task.JobStatus{JobID: "job-1", Total: 3, Completed: 3, IsComplete: true},
		}, nil)

		got, err := f.svc.GetJobStatus(context.Background(), "job-1")
		require.NoError(t, err)
		assert.Equal(t, 3, got.Completed)
		assert.True(t, got.IsComplete)
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		f.queue.On("GetJobStatus", mock.Anything, "nope").Return(nil, task.ErrJobNotFound)
		f.archives.On("Get", mock.Anything, "nope").Return(nil, store.ErrArchiveNotFound)

		_, err := f.svc.GetJobStatus(context.Background(), "nope")
		assert.ErrorIs(t, err, task.ErrJobNotFound)
	})

	t.Run("store down", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		f.queue.On("GetJobStatus", mock.Anything, "job-1").Return(nil, task.ErrQueueUnavailable)

		_, err := f.svc.GetJobStatus(context.Background(), "job-1")
		assert.ErrorIs(t, err, task.ErrQueueUnavailable)
		f.archives.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})
}

func TestCancelJob(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	f.queue.On("CancelJob", mock.Anything, "job-1").Return(task.CancelResult{Cancelled: 2, StillProcessing: 1}, nil)
	f.queue.On("CancelJob", mock.Anything, "nope").Return(task.CancelResult{}, task.ErrJobNotFound)

	res, err := f.svc.CancelJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, task.CancelResult{Cancelled: 2, StillProcessing: 1}, res)

	_, err = f.svc.CancelJob(context.Background(), "nope")
	assert.ErrorIs(t, err, task.ErrJobNotFound)
}

func TestFinalizeJob(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	tasks := []*task.Task{doneTask("a", "job-1", "ref-a"), doneTask("b", "job-1", "ref-b")}

	f.queue.On("JobTasks", mock.Anything, "job-1").Return(tasks, nil)
	f.archives.On("Save", mock.Anything, mock.MatchedBy(func(a *store.JobArchive) bool {
		return a.JobID == "job-1" && a.Status.Completed == 2 && a.ArchivedAt.Equal(archiveTime)
	})).Return(nil)
	f.queue.On("Cleanup", mock.Anything, "job-1").Return(nil)

	archive, err := f.svc.FinalizeJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ref-a", "ref-b"}, archive.Status.Results)
	assert.Len(t, archive.Tasks, 2)
}

func TestFinalizeJob_NotComplete(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	tasks := []*task.Task{doneTask("a", "job-1", "ref-a"), task.NewTask("b", "job-1", nil)}
	f.queue.On("JobTasks", mock.Anything, "job-1").Return(tasks, nil)

	_, err := f.svc.FinalizeJob(context.Background(), "job-1")
	assert.ErrorIs(t, err, ErrJobNotComplete)
	f.archives.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	f.queue.AssertNotCalled(t, "Cleanup", mock.Anything, mock.Anything)
}

func TestFinalizeJob_AlreadyFinalized(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	existing := &store.JobArchive{JobID: "job-1", Status: task.JobStatus{JobID: "job-1", IsComplete: true}}
	f.queue.On("JobTasks", mock.Anything, "job-1").Return(nil, task.ErrJobNotFound)
	f.archives.On("Get", mock.Anything, "job-1").Return(existing, nil)

	got, err := f.svc.FinalizeJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Same(t, existing, got)
}

func TestFinalizeJob_SaveFailureKeepsLiveRecords(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	f.queue.On("JobTasks", mock.Anything, "job-1").Return([]*task.Task{doneTask("a", "job-1", "r")}, nil)
	f.archives.On("Save", mock.Anything, mock.Anything).Return(errors.New("db down"))

	_, err := f.svc.FinalizeJob(context.Background(), "job-1")
	var se *JobServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "archive_job", se.Operation)
	f.queue.AssertNotCalled(t, "Cleanup", mock.Anything, mock.Anything)
}

func TestOperationalViews(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	stats := task.QueueStats{Pending: 3, Processing: 1, TotalJobs: 2}
	limiter := task.LimiterStatus{Current: 4, Limit: 10, Window: time.Minute, Available: 6}

	f.queue.On("Stats", mock.Anything).Return(stats, nil)
	f.limiter.On("Status", mock.Anything).Return(limiter, nil)
	f.queue.On("Ping", mock.Anything).Return(nil)

	gotStats, err := f.svc.QueueStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stats, gotStats)

	gotLimiter, err := f.svc.RateLimiterStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, limiter, gotLimiter)

	assert.NoError(t, f.svc.Ping(context.Background()))
}

func TestOperationalViews_StoreUnavailable(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	down := fmt.Errorf("%w: dial tcp", task.ErrQueueUnavailable)
	f.queue.On("Stats", mock.Anything).Return(task.QueueStats{}, down)
	f.limiter.On("Status", mock.Anything).Return(task.LimiterStatus{}, down)

	_, err := f.svc.QueueStats(context.Background())
	assert.ErrorIs(t, err, task.ErrQueueUnavailable)
	_, err = f.svc.RateLimiterStatus(context.Background())
	assert.ErrorIs(t, err, task.ErrQueueUnavailable)
}
