package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewJobEvent(t *testing.T) {
	t.Parallel()

	event, err := NewJobEvent(TypeJobCompleted, "j1", map[string]int{"total": 3})
	require.NoError(t, err)

	assert.Equal(t, TypeJobCompleted, event.Type)
	assert.Equal(t, "j1", event.JobID)
	assert.NotEqual(t, [16]byte{}, [16]byte(event.ID))

	var body map[string]int
	require.NoError(t, event.UnmarshalPayload(&body))
	assert.Equal(t, 3, body["total"])
}

func TestNewJobEventRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	_, err := NewJobEvent(TypeJobCompleted, "j1", make(chan int))
	assert.Error(t, err)
}

func TestInMemoryEventEmitter_DeliversToAllHandlers(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEventEmitter(testLogger())
	var seen []string
	failing := errors.New("archive unavailable")

	emitter.RegisterHandler(HandlerFunc(func(ctx context.Context, e *JobEvent) error {
		seen = append(seen, "first:"+e.JobID)
		return failing
	}))
	emitter.RegisterHandler(HandlerFunc(func(ctx context.Context, e *JobEvent) error {
		seen = append(seen, "second:"+e.JobID)
		return errors.New("later error")
	}))

	event, err := NewJobEvent(TypeJobCompleted, "j7", nil)
	require.NoError(t, err)

	err = emitter.EmitEvent(context.Background(), event)

	assert.ErrorIs(t, err, failing)
	assert.ErrorContains(t, err, "later error")
	assert.Equal(t, []string{"first:j7", "second:j7"}, seen)
}

func TestInMemoryEventEmitter_SubscribeFiltersByType(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEventEmitter(testLogger())
	var seen []string
	record := func(name string) EventHandler {
		return HandlerFunc(func(ctx context.Context, e *JobEvent) error {
			seen = append(seen, name+":"+e.Type)
			return nil
		})
	}
	emitter.Subscribe(TypeJobCompleted, record("archive"))
	emitter.Subscribe("job.cancelled", record("other"))
	emitter.RegisterHandler(record("audit"))

	event, err := NewJobEvent(TypeJobCompleted, "j1", nil)
	require.NoError(t, err)
	require.NoError(t, emitter.EmitEvent(context.Background(), event))

	assert.Equal(t, []string{"archive:job.completed", "audit:job.completed"}, seen)
}

func TestInMemoryEventEmitter_RecoversHandlerPanic(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEventEmitter(testLogger())
	reached := false
	emitter.RegisterHandler(HandlerFunc(func(ctx context.Context, e *JobEvent) error {
		panic("nil archive")
	}))
	emitter.RegisterHandler(HandlerFunc(func(ctx context.Context, e *JobEvent) error {
		reached = true
		return nil
	}))

	event, err := NewJobEvent(TypeJobCompleted, "j1", nil)
	require.NoError(t, err)

	err = emitter.EmitEvent(context.Background(), event)
	assert.ErrorContains(t, err, "event handler panicked: nil archive")
	assert.True(t, reached)
}

func TestInMemoryEventEmitter_NilEvent(t *testing.T) {
	t.Parallel()

	assert.Error(t, NewInMemoryEventEmitter(nil).EmitEvent(context.Background(), nil))
}

func TestInMemoryEventEmitter_NoHandlers(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEventEmitter(nil)
	event, err := NewJobEvent(TypeJobCompleted, "j1", nil)
	require.NoError(t, err)

	assert.NoError(t, emitter.EmitEvent(context.Background(), event))
}
