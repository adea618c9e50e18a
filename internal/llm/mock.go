package llm

import (
	"context"
	"sync"
)

// MockClient is a test double for the LLM Client interface.
// It can also be used for dry-run mode. Safe for concurrent use; the
// deferred pipeline stages call it from multiple workers.
type MockClient struct {
	Response *Response
	Err      error

	// Func, when set, overrides Response/Err per call.
	Func func(prompt string) (*Response, error)

	mu    sync.Mutex
	calls []string
}

// Complete records the call and returns the mock response.
func (m *MockClient) Complete(ctx context.Context, prompt string) (*Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, prompt)
	m.mu.Unlock()
	if m.Func != nil {
		return m.Func(prompt)
	}
	if m.Response == nil && m.Err == nil {
		return &Response{Content: "", Provider: "mock"}, nil
	}
	return m.Response, m.Err
}

// Calls returns a copy of the prompts sent so far.
func (m *MockClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.calls...)
}
