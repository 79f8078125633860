package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/adforge/internal/generation"
)

// MockGenerator implements generation.Generator for testing.
type MockGenerator struct {
	// GenerateFn, when set, decides the outcome of every call.
	GenerateFn func(ctx context.Context, req generation.Request) (string, error)

	// Result and Err are returned when GenerateFn is nil. An empty Result
	// becomes "jobs/<job>/<task>.png".
	Result string
	Err    error

	mu       sync.Mutex
	requests []generation.Request
}

var _ generation.Generator = (*MockGenerator)(nil)

// Generate records the request and returns the scripted outcome.
func (m *MockGenerator) Generate(ctx context.Context, req generation.Request) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, req)
	}
	if m.Err != nil {
		return "", m.Err
	}
	if m.Result != "" {
		return m.Result, nil
	}
	return "jobs/" + req.JobID + "/" + req.TaskID + ".png", nil
}

// CallCount returns how many times Generate was called.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every request received, in call order.
func (m *MockGenerator) Requests() []generation.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]generation.Request(nil), m.requests...)
}

// RequestFor returns the last request received for taskID.
func (m *MockGenerator) RequestFor(taskID string) (generation.Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.requests) - 1; i >= 0; i-- {
		if m.requests[i].TaskID == taskID {
			return m.requests[i], true
		}
	}
	return generation.Request{}, false
}
