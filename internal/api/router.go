package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	apimiddleware "github.com/phrazzld/adforge/internal/api/middleware"
	"github.com/phrazzld/adforge/internal/service"
	"github.com/phrazzld/adforge/internal/service/auth"
)

// RequestTimeout bounds every API request.
const RequestTimeout = 30 * time.Second

// NewRouter wires the handlers and middleware of the HTTP surface.
func NewRouter(jobs service.JobService, jwtService auth.JWTService, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	jobHandler := NewJobHandler(jobs, logger)
	opsHandler := NewOpsHandler(jobs, logger)
	authMiddleware := apimiddleware.NewAuthMiddleware(jwtService)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.NewTraceMiddleware(logger))

	r.Get("/health", opsHandler.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(RequestTimeout))
		r.Use(authMiddleware.Authenticate)

		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.RequireScope(auth.ScopeJobsWrite))
			r.Post("/jobs", jobHandler.SubmitJob)
			r.Post("/tasks", jobHandler.SubmitTask)
			r.Post("/jobs/{jobID}/cancel", jobHandler.CancelJob)
			r.Post("/jobs/{jobID}/finalize", jobHandler.FinalizeJob)
		})

		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.RequireScope(auth.ScopeJobsRead))
			r.Get("/jobs/{jobID}", jobHandler.GetJobStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.RequireScope(auth.ScopeOpsRead))
			r.Get("/ops/queue", opsHandler.QueueStats)
			r.Get("/ops/ratelimiter", opsHandler.RateLimiterStatus)
		})
	})

	return r
}
