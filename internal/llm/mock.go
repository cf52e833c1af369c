package llm

import (
	"context"
	"sync"
	"time"
)

// MockGenerator is a scripted Generator for tests.
// Responses and Errors are consumed in order; the last entry repeats.
type MockGenerator struct {
	Responses []*Response
	Errors    []error

	// Delay is waited (honoring ctx) before each reply.
	Delay time.Duration

	// Func, when set, replaces the scripted replies.
	Func func(ctx context.Context, req *Request) (*Response, error)

	mu    sync.Mutex
	calls []Request
}

// NewMockGenerator returns a generator that always answers text.
func NewMockGenerator(text string) *MockGenerator {
	return &MockGenerator{Responses: []*Response{{Text: text}}}
}

// NewFailingGenerator returns a generator that always fails with err.
func NewFailingGenerator(err error) *MockGenerator {
	return &MockGenerator{Errors: []error{err}}
}

// Generate records the call and replays the script.
func (m *MockGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	m.mu.Lock()
	n := len(m.calls)
	m.calls = append(m.calls, *req)
	m.mu.Unlock()

	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, NewTimeoutError(ctx.Err())
		case <-timer.C:
		}
	}

	if m.Func != nil {
		return m.Func(ctx, req)
	}

	if len(m.Errors) > 0 {
		if err := m.Errors[min(n, len(m.Errors)-1)]; err != nil {
			return nil, err
		}
	}
	if len(m.Responses) == 0 {
		return nil, NewEmptyError()
	}
	resp := *m.Responses[min(n, len(m.Responses)-1)]
	return &resp, nil
}

// Calls returns a copy of every request received so far.
func (m *MockGenerator) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of requests received.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
