package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/adforge/internal/api/shared"
	"github.com/phrazzld/adforge/internal/service"
	"github.com/phrazzld/adforge/internal/task"
)

// JobHandler serves the job submission and lifecycle endpoints.
type JobHandler struct {
	jobs   service.JobService
	logger *slog.Logger
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(jobs service.JobService, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{jobs: jobs, logger: logger.With("component", "job_handler")}
}

// SubmitJob handles POST /api/jobs.
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	tasks := make([]*task.Task, 0, len(req.Tasks))
	for _, tr := range req.Tasks {
		tasks = append(tasks, tr.ToTask())
	}

	sub, err := h.jobs.SubmitJob(r.Context(), strings.TrimSpace(req.JobID), tasks)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit job")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, sub)
}

// SubmitTask handles POST /api/tasks.
func (h *JobHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	t := req.ToTask()
	id, err := h.jobs.Submit(r.Context(), t)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitTaskResponse{TaskID: id, JobID: t.JobID})
}

// GetJobStatus handles GET /api/jobs/{jobID}.
func (h *JobHandler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}

	status, err := h.jobs.GetJobStatus(r.Context(), jobID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get job status")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, status)
}

// CancelJob handles POST /api/jobs/{jobID}/cancel.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}

	res, err := h.jobs.CancelJob(r.Context(), jobID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to cancel job")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, CancelJobResponse{
		JobID:           jobID,
		Cancelled:       res.Cancelled,
		StillProcessing: res.StillProcessing,
	})
}

// FinalizeJob handles POST /api/jobs/{jobID}/finalize.
func (h *JobHandler) FinalizeJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}

	archive, err := h.jobs.FinalizeJob(r.Context(), jobID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to finalize job")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, FinalizeJobResponse{
		JobID:      archive.JobID,
		Status:     archive.Status,
		ArchivedAt: archive.ArchivedAt,
	})
}

func pathJobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid jobID: required field")
		return "", false
	}
	return jobID, true
}
