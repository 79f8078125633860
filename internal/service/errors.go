package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/adforge/internal/store"
	"github.com/phrazzld/adforge/internal/task"
)

// Service-level sentinel errors. The API layer maps them to status codes;
// queue sentinels from package task pass through unchanged.
var (
	// ErrJobNotComplete indicates a job still has pending, processing or
	// retrying tasks. API layer should map this to HTTP 409 Conflict.
	ErrJobNotComplete = errors.New("job is not complete")

	// ErrEmptyJob indicates a job submission without tasks.
	ErrEmptyJob = errors.New("job has no tasks")
)

// JobServiceError wraps errors from the job service with context.
type JobServiceError struct {
	// Operation is the operation that failed (e.g., "submit_job", "finalize_job")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for JobServiceError.
func (e *JobServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("job service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *JobServiceError) Unwrap() error {
	return e.Err
}

// NewJobServiceError creates a JobServiceError. Expected conditions are
// returned as they are so that callers can match them directly.
func NewJobServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		ErrJobNotComplete,
		ErrEmptyJob,
		task.ErrInvalidTask,
		task.ErrDuplicateTask,
		task.ErrJobNotFound,
		task.ErrTaskNotFound,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, store.ErrArchiveNotFound) {
		return fmt.Errorf("%w: %v", task.ErrJobNotFound, err)
	}
	return &JobServiceError{Operation: operation, Message: message, Err: err}
}
