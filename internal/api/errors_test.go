package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/phrazzld/adforge/internal/api/shared"
	"github.com/phrazzld/adforge/internal/service"
	"github.com/phrazzld/adforge/internal/service/auth"
	"github.com/phrazzld/adforge/internal/store"
	"github.com/phrazzld/adforge/internal/task"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{auth.ErrExpiredToken, http.StatusUnauthorized},
		{auth.ErrTokenNotYetValid, http.StatusUnauthorized},
		{auth.ErrInsufficientScope, http.StatusForbidden},
		{fmt.Errorf("%w: bad", task.ErrInvalidTask), http.StatusBadRequest},
		{service.ErrEmptyJob, http.StatusBadRequest},
		{task.ErrDuplicateTask, http.StatusConflict},
		{task.ErrInvalidTransition, http.StatusConflict},
		{service.NewJobServiceError("get_job_status", "x", store.ErrArchiveNotFound), http.StatusNotFound},
		{task.ErrTaskNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: i/o timeout", task.ErrQueueUnavailable), http.StatusServiceUnavailable},
		{errors.New("something else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, MapErrorToStatusCode(tt.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
	assert.Equal(t, "Job not found", GetSafeErrorMessage(fmt.Errorf("wrap: %w", task.ErrJobNotFound)))
	assert.Equal(t, "invalid task: payload is required",
		GetSafeErrorMessage(fmt.Errorf("%w: payload is required", task.ErrInvalidTask)))
	assert.Equal(t, "An unexpected error occurred",
		GetSafeErrorMessage(errors.New("pq: relation job_archives does not exist")))
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	err := shared.ValidateRequest(&SubmitJobRequest{Tasks: []TaskRequest{{TaskID: "a"}, {DependencyType: "boss"}}})
	assert.Equal(t, "Invalid Tasks[1].DependencyType: invalid value", SanitizeValidationError(err))

	assert.Equal(t, "Request body is required", SanitizeValidationError(shared.ErrEmptyBody))
	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("other")))
}
