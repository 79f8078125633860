package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/adforge/internal/api/shared"
	"github.com/phrazzld/adforge/internal/service"
)

// OpsHandler serves the operational views and the health check.
type OpsHandler struct {
	jobs   service.JobService
	logger *slog.Logger
}

// NewOpsHandler creates an OpsHandler.
func NewOpsHandler(jobs service.JobService, logger *slog.Logger) *OpsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpsHandler{jobs: jobs, logger: logger.With("component", "ops_handler")}
}

// QueueStats handles GET /api/ops/queue.
func (h *OpsHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.jobs.QueueStats(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read queue stats")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// RateLimiterStatus handles GET /api/ops/ratelimiter.
func (h *OpsHandler) RateLimiterStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.jobs.RateLimiterStatus(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read rate limiter status")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, LimiterStatusResponse{
		Current:       status.Current,
		Limit:         status.Limit,
		WindowSeconds: status.Window.Seconds(),
		Available:     status.Available,
	})
}

// Health handles GET /health. It reports 503 while Redis is unreachable.
func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.jobs.Ping(ctx); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "unavailable", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}
