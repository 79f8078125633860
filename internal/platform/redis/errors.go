package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/phrazzld/adforge/internal/task"
)

// mapError translates a client error into the queue's error vocabulary.
// Context errors keep their identity so callers can tell shutdown from an
// unreachable store.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", task.ErrQueueUnavailable, op, err)
}

// transitionError maps the negative status codes returned by the scripts.
func transitionError(code int64, taskID, status string) error {
	switch code {
	case -1:
		return fmt.Errorf("%w: %s", task.ErrTaskNotFound, taskID)
	case -2:
		return fmt.Errorf("%w: task %s is %s, not processing", task.ErrInvalidTransition, taskID, status)
	default:
		return fmt.Errorf("unexpected script result %d for task %s", code, taskID)
	}
}
