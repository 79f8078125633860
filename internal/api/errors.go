package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/adforge/internal/api/shared"
	"github.com/phrazzld/adforge/internal/service"
	"github.com/phrazzld/adforge/internal/service/auth"
	"github.com/phrazzld/adforge/internal/store"
	"github.com/phrazzld/adforge/internal/task"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return http.StatusUnauthorized

	case errors.Is(err, auth.ErrInsufficientScope):
		return http.StatusForbidden

	case errors.Is(err, task.ErrInvalidTask),
		errors.Is(err, service.ErrEmptyJob),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, task.ErrDuplicateTask),
		errors.Is(err, service.ErrJobNotComplete),
		errors.Is(err, task.ErrInvalidTransition):
		return http.StatusConflict

	case errors.Is(err, task.ErrJobNotFound),
		errors.Is(err, task.ErrTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, task.ErrQueueUnavailable):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"
	case errors.Is(err, auth.ErrInsufficientScope):
		return "Insufficient scope"

	// Task validation messages describe the caller's own input and are
	// safe to echo.
	case errors.Is(err, task.ErrInvalidTask):
		return err.Error()
	case errors.Is(err, service.ErrEmptyJob):
		return "Job must contain at least one task"

	case errors.Is(err, task.ErrDuplicateTask):
		return "Task already exists"
	case errors.Is(err, service.ErrJobNotComplete):
		return "Job is not complete"
	case errors.Is(err, task.ErrInvalidTransition):
		return "Invalid task state transition"

	case errors.Is(err, task.ErrJobNotFound):
		return "Job not found"
	case errors.Is(err, task.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, task.ErrQueueUnavailable):
		return "Task queue temporarily unavailable"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the status and safe message for err and logs the
// redacted detail.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		msg = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err)
}

// SanitizeValidationError turns validator errors into a short message
// naming the first offending field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("Invalid %s: %s", fieldPath(fe.Namespace()), getValidationTagMessage(fe.Tag()))
	}
	if err != nil && strings.HasPrefix(err.Error(), "invalid JSON body") {
		return "Invalid JSON body"
	}
	if errors.Is(err, shared.ErrEmptyBody) {
		return "Request body is required"
	}
	return "Validation error"
}

// fieldPath drops the struct name from a validator namespace:
// "SubmitJobRequest.Tasks[0].TaskID" becomes "Tasks[0].TaskID".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "excludesall":
		return "contains invalid characters"
	case "required_with":
		return "required with dependency_type"
	default:
		return "validation failed"
	}
}
