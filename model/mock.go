package model

import (
	"context"
	"sync"
)

// MockModel is a scripted in-memory Model for tests and examples. Responses
// are returned in the order they were enqueued; when the script is exhausted
// an empty stop response is returned.
type MockModel struct {
	mu     sync.Mutex
	info   Info
	script []Response
	calls  []Request
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{Name: name, Provider: "mock", SupportsTools: true},
	}
}

// Enqueue appends a scripted response.
func (m *MockModel) Enqueue(resp Response) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, resp)
	return m
}

// EnqueueText appends a scripted plain-text final response.
func (m *MockModel) EnqueueText(text string) *MockModel {
	return m.Enqueue(Response{
		Message:      Message{Role: RoleAssistant, Text: text},
		FinishReason: "stop",
	})
}

// EnqueueCalls appends a scripted response requesting tool calls.
func (m *MockModel) EnqueueCalls(calls ...FunctionCall) *MockModel {
	return m.Enqueue(Response{
		Message:      Message{Role: RoleAssistant, Calls: calls},
		FinishReason: "tool_calls",
	})
}

// Requests returns the requests seen so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if len(m.script) == 0 {
		return &Response{Message: Message{Role: RoleAssistant}, FinishReason: "stop"}, nil
	}
	resp := m.script[0]
	m.script = m.script[1:]
	return &resp, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
