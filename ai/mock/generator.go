package mock

import (
	"context"
	"sync"

	"github.com/poiesic/graphmill/ai"
)

// MockGenerator is a test double for ai.Generator.
// It allows custom behavior injection via function fields.
type MockGenerator struct {
	// GenerateTextFunc is called by GenerateText if set.
	// If nil, responses are drained from the Responses queue, falling
	// back to a fixed canned response when the queue is empty.
	GenerateTextFunc func(ctx context.Context, req ai.GenerationRequest) (string, error)

	// Responses is a queue of canned responses, consumed in order.
	Responses []string

	mu        sync.Mutex
	callCount int
	requests  []ai.GenerationRequest
}

// NewMockGenerator creates a mock generator with default canned behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockGenerator(responses ...string) *MockGenerator {
	return &MockGenerator{Responses: responses}
}

// GenerateText returns the next queued response, or a fixed empty script.
func (m *MockGenerator) GenerateText(ctx context.Context, req ai.GenerationRequest) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.requests = append(m.requests, req)

	if m.GenerateTextFunc != nil {
		m.mu.Unlock()
		return m.GenerateTextFunc(ctx, req)
	}

	if len(m.Responses) > 0 {
		response := m.Responses[0]
		m.Responses = m.Responses[1:]
		m.mu.Unlock()
		return response, nil
	}
	m.mu.Unlock()
	return "RETURN 1", nil
}

// CallCount returns the number of times GenerateText was called.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Requests returns a copy of all recorded generation requests.
func (m *MockGenerator) Requests() []ai.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ai.GenerationRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Reset clears recorded calls and injected behavior.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.requests = nil
	m.Responses = nil
	m.GenerateTextFunc = nil
}
