package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/phrazzld/adforge/internal/events"
	"github.com/phrazzld/adforge/internal/store"
	"github.com/phrazzld/adforge/internal/task"
)

// JobArchiver archives complete jobs. JobService satisfies it.
type JobArchiver interface {
	ArchiveJob(ctx context.Context, jobID string) (*store.JobArchive, error)
}

// ArchiveHandler archives every job announced by a job.completed event.
// Live records are left in place; FinalizeJob purges them later.
type ArchiveHandler struct {
	archiver JobArchiver
	logger   *slog.Logger
}

var _ events.EventHandler = (*ArchiveHandler)(nil)

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(archiver JobArchiver, logger *slog.Logger) *ArchiveHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveHandler{
		archiver: archiver,
		logger:   logger.With("component", "archive_handler"),
	}
}

// HandleEvent implements events.EventHandler.
func (h *ArchiveHandler) HandleEvent(ctx context.Context, event *events.JobEvent) error {
	if event == nil || event.Type != events.TypeJobCompleted {
		return nil
	}

	var status task.JobStatus
	if err := event.UnmarshalPayload(&status); err != nil {
		h.logger.Warn("job.completed payload unreadable, archiving anyway",
			"error", err,
			"event_id", event.ID,
			"job_id", event.JobID)
	}

	archive, err := h.archiver.ArchiveJob(ctx, event.JobID)
	switch {
	case errors.Is(err, ErrJobNotComplete), errors.Is(err, task.ErrJobNotFound):
		// Reopened by a new submission or purged since the event fired.
		h.logger.Info("skipping archive of job that is no longer complete",
			"job_id", event.JobID,
			"reason", err)
		return nil
	case err != nil:
		return err
	}

	h.logger.Info("archived completed job",
		"job_id", event.JobID,
		"event_id", event.ID,
		"total", archive.Status.Total,
		"total_at_event", status.Total,
		"completed", archive.Status.Completed,
		"failed", archive.Status.Failed)
	return nil
}
