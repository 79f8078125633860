package service

import (
	"context"
	"time"

	"github.com/phrazzld/adforge/internal/store"
	"github.com/phrazzld/adforge/internal/task"
	"github.com/stretchr/testify/mock"
)

// MockJobQueue mocks the JobQueue interface
type MockJobQueue struct {
	mock.Mock
}

func (m *MockJobQueue) Submit(ctx context.Context, t *task.Task) (string, error) {
	args := m.Called(ctx, t)
	return args.String(0), args.Error(1)
}

func (m *MockJobQueue) GetBatch(ctx context.Context, limit int) ([]*task.Task, error) {
	args := m.Called(ctx, limit)
	tasks, _ := args.Get(0).([]*task.Task)
	return tasks, args.Error(1)
}

func (m *MockJobQueue) MarkComplete(ctx context.Context, taskID, result string) error {
	return m.Called(ctx, taskID, result).Error(0)
}

func (m *MockJobQueue) MarkFailed(ctx context.Context, taskID, errMsg string, isRateLimit bool) error {
	return m.Called(ctx, taskID, errMsg, isRateLimit).Error(0)
}

func (m *MockJobQueue) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	args := m.Called(ctx, taskID)
	t, _ := args.Get(0).(*task.Task)
	return t, args.Error(1)
}

func (m *MockJobQueue) GetJobStatus(ctx context.Context, jobID string) (*task.JobStatus, error) {
	args := m.Called(ctx, jobID)
	st, _ := args.Get(0).(*task.JobStatus)
	return st, args.Error(1)
}

func (m *MockJobQueue) CancelJob(ctx context.Context, jobID string) (task.CancelResult, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(task.CancelResult), args.Error(1)
}

func (m *MockJobQueue) Cleanup(ctx context.Context, jobID string) error {
	return m.Called(ctx, jobID).Error(0)
}

func (m *MockJobQueue) Stats(ctx context.Context) (task.QueueStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(task.QueueStats), args.Error(1)
}

func (m *MockJobQueue) ReclaimExpired(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *MockJobQueue) DeliverCompletions(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockJobQueue) JobTasks(ctx context.Context, jobID string) ([]*task.Task, error) {
	args := m.Called(ctx, jobID)
	tasks, _ := args.Get(0).([]*task.Task)
	return tasks, args.Error(1)
}

func (m *MockJobQueue) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockArchiveStore mocks store.JobArchiveStore
type MockArchiveStore struct {
	mock.Mock
}

func (m *MockArchiveStore) Save(ctx context.Context, a *store.JobArchive) error {
	return m.Called(ctx, a).Error(0)
}

func (m *MockArchiveStore) Get(ctx context.Context, jobID string) (*store.JobArchive, error) {
	args := m.Called(ctx, jobID)
	a, _ := args.Get(0).(*store.JobArchive)
	return a, args.Error(1)
}

// MockLimiter mocks task.Limiter
type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Acquire(ctx context.Context, timeout time.Duration) bool {
	return m.Called(ctx, timeout).Bool(0)
}

func (m *MockLimiter) Release() {
	m.Called()
}

func (m *MockLimiter) Status(ctx context.Context) (task.LimiterStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(task.LimiterStatus), args.Error(1)
}
