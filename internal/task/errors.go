package task

import "errors"

// Common errors returned by Queue implementations.
var (
	// ErrInvalidTask indicates producer-supplied task fields are malformed.
	ErrInvalidTask = errors.New("invalid task")

	// ErrDuplicateTask indicates a task with the same id was already submitted.
	ErrDuplicateTask = errors.New("task already exists")

	// ErrTaskNotFound indicates the task id is unknown to the queue.
	ErrTaskNotFound = errors.New("task not found")

	// ErrJobNotFound indicates no task is registered under the job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition indicates a state change that the lifecycle forbids,
	// such as completing a task that is not processing.
	ErrInvalidTransition = errors.New("invalid task state transition")

	// ErrQueueUnavailable indicates the coordination store could not be reached.
	ErrQueueUnavailable = errors.New("task queue unavailable")
)
