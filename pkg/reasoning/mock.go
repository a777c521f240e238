package reasoning

import (
	"context"
	"sync"
)

// Mock is a mock reasoning provider for testing.
// Set the function fields to control behavior, or use the defaults.
type Mock struct {
	mu    sync.Mutex
	calls []string

	// ChatFunc handles chat requests. Default echoes a canned response.
	ChatFunc func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthFunc handles health checks. Default returns nil.
	HealthFunc func(ctx context.Context) error

	// CloseFunc handles close. Default returns nil.
	CloseFunc func() error
}

// NewMock creates a mock provider with default behaviors.
func NewMock() *Mock {
	return &Mock{}
}

// Chat implements Provider.
func (m *Mock) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.record("Chat")
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	return &ChatResponse{
		Message:      NewAssistantMessage("Mock response"),
		FinishReason: "stop",
		Model:        "mock",
	}, nil
}

// Health implements Provider.
func (m *Mock) Health(ctx context.Context) error {
	m.record("Health")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close implements Provider.
func (m *Mock) Close() error {
	m.record("Close")
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns the list of method calls made on this mock.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

// Reset clears the recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
}

// Ensure Mock implements Provider
var _ Provider = (*Mock)(nil)
