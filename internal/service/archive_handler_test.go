package service

import (
	"context"
	"errors"
	"testing"

	"github.com/phrazzld/adforge/internal/events"
	"github.com/phrazzld/adforge/internal/platform/logger"
	"github.com/phrazzld/adforge/internal/store"
	"github.com/phrazzld/adforge/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockArchiver struct {
	mock.Mock
}

func (m *mockArchiver) ArchiveJob(ctx context.Context, jobID string) (*store.JobArchive, error) {
	args := m.Called(ctx, jobID)
	a, _ := args.Get(0).(*store.JobArchive)
	return a, args.Error(1)
}

func completedEvent(t *testing.T, jobID string) *events.JobEvent {
	t.Helper()
	ev, err := events.NewJobEvent(events.TypeJobCompleted, jobID, task.JobStatus{JobID: jobID, Total: 1, IsComplete: true})
	require.NoError(t, err)
	return ev
}

func TestArchiveHandler(t *testing.T) {
	t.Parallel()
	log, _ := logger.NewTestLogger()

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "archives"},
		{name: "reopened job", err: ErrJobNotComplete},
		{name: "already purged", err: task.ErrJobNotFound},
		{name: "store failure", err: errors.New("db down"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			archiver := &mockArchiver{}
			var archive *store.JobArchive
			if tt.err == nil {
				archive = &store.JobArchive{JobID: "job-1", Status: task.JobStatus{Total: 1, Completed: 1}}
			}
			archiver.On("ArchiveJob", mock.Anything, "job-1").Return(archive, tt.err).Once()

			h := NewArchiveHandler(archiver, log)
			err := h.HandleEvent(context.Background(), completedEvent(t, "job-1"))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			archiver.AssertExpectations(t)
		})
	}
}

func TestArchiveHandler_IgnoresOtherEvents(t *testing.T) {
	t.Parallel()
	archiver := &mockArchiver{}
	h := NewArchiveHandler(archiver, nil)

	ev, err := events.NewJobEvent("job.reopened", "job-1", nil)
	require.NoError(t, err)

	assert.NoError(t, h.HandleEvent(context.Background(), ev))
	assert.NoError(t, h.HandleEvent(context.Background(), nil))
	archiver.AssertNotCalled(t, "ArchiveJob", mock.Anything, mock.Anything)
}

func TestArchiveHandler_WiredThroughEmitter(t *testing.T) {
	t.Parallel()
	log, _ := logger.NewTestLogger()
	archiver := &mockArchiver{}
	archiver.On("ArchiveJob", mock.Anything, "job-9").
		Return(&store.JobArchive{JobID: "job-9"}, nil).Once()

	emitter := events.NewInMemoryEventEmitter(log)
	emitter.RegisterHandler(NewArchiveHandler(archiver, log))

	require.NoError(t, emitter.EmitEvent(context.Background(), completedEvent(t, "job-9")))
	archiver.AssertExpectations(t)
}
