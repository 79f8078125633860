package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// InMemoryEventEmitter delivers events synchronously to the handlers of this
// process, in subscription order, on the emitting goroutine. A slow handler
// therefore delays the queue call that emitted the event.
type InMemoryEventEmitter struct {
	mu     sync.RWMutex
	byType map[string][]EventHandler
	all    []EventHandler
	logger *slog.Logger
}

var _ EventEmitter = (*InMemoryEventEmitter)(nil)

// NewInMemoryEventEmitter creates an emitter with no handlers.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventEmitter{
		byType: make(map[string][]EventHandler),
		logger: logger.With("component", "event_emitter"),
	}
}

// RegisterHandler subscribes handler to every event type.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, handler)
}

// Subscribe registers handler for events of eventType only.
func (e *InMemoryEventEmitter) Subscribe(eventType string, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byType[eventType] = append(e.byType[eventType], handler)
	e.logger.Debug("subscribed event handler",
		"event_type", eventType,
		"handler_count", len(e.byType[eventType]))
}

func (e *InMemoryEventEmitter) handlersFor(eventType string) []EventHandler {
	e.mu.RLock()
	defer e.mu.RUnlock()
	typed := e.byType[eventType]
	out := make([]EventHandler, 0, len(typed)+len(e.all))
	out = append(out, typed...)
	return append(out, e.all...)
}

// EmitEvent delivers event to its subscribers. Every handler runs even when
// an earlier one fails; the failures are joined into the returned error.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *JobEvent) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	handlers := e.handlersFor(event.Type)
	if len(handlers) == 0 {
		e.logger.Debug("no handlers for event", "event_type", event.Type, "job_id", event.JobID)
		return nil
	}

	var errs []error
	for i, h := range handlers {
		if err := deliver(ctx, h, event); err != nil {
			e.logger.Error("event handler failed",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"event_type", event.Type,
				"job_id", event.JobID)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// deliver runs one handler, turning a panic into an error so the worker that
// reported the task outcome keeps running.
func deliver(ctx context.Context, h EventHandler, event *JobEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panicked: %v", r)
		}
	}()
	return h.HandleEvent(ctx, event)
}
