package testutil

import (
	"context"
	"sync"

	"github.com/sorrymaker9331/finsight/tool"
)

// CallRecord captures one invocation received by a StubToolClient.
type CallRecord struct {
	Name string
	Args map[string]any
}

// StubToolClient is a scriptable in-memory tool.Client. Responses register
// per tool name; unregistered tools fail with a not-found error like a real
// server. A response function may be swapped mid-test to simulate transient
// failures.
type StubToolClient struct {
	mu        sync.Mutex
	tools     []tool.Descriptor
	responses map[string]func(args map[string]any) (tool.Result, error)
	calls     []CallRecord

	// DiscoverErr, when set, fails DiscoverTools.
	DiscoverErr error
}

// NewStubToolClient creates an empty stub.
func NewStubToolClient() *StubToolClient {
	return &StubToolClient{responses: map[string]func(map[string]any) (tool.Result, error){}}
}

// Register adds a tool with a fixed successful response.
func (s *StubToolClient) Register(name, content string) *StubToolClient {
	return s.RegisterFunc(name, func(map[string]any) (tool.Result, error) {
		return tool.Result{Content: content}, nil
	})
}

// RegisterFunc adds a tool backed by a response function.
func (s *StubToolClient) RegisterFunc(name string, fn func(args map[string]any) (tool.Result, error)) *StubToolClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.responses[name]; !exists {
		s.tools = append(s.tools, tool.Descriptor{
			Name:        name,
			InputSchema: map[string]any{"type": "object"},
		})
	}
	s.responses[name] = fn
	return s
}

// RegisterError adds a tool that always fails with the given classified
// error kind.
func (s *StubToolClient) RegisterError(name string, kind tool.ErrorKind) *StubToolClient {
	return s.RegisterFunc(name, func(map[string]any) (tool.Result, error) {
		return tool.Result{}, &tool.Error{Kind: kind, Tool: name, Message: "stubbed failure"}
	})
}

// DiscoverTools implements tool.Client.
func (s *StubToolClient) DiscoverTools(ctx context.Context) ([]tool.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DiscoverErr != nil {
		return nil, s.DiscoverErr
	}
	out := make([]tool.Descriptor, len(s.tools))
	copy(out, s.tools)
	return out, nil
}

// Call implements tool.Client.
func (s *StubToolClient) Call(ctx context.Context, name string, args map[string]any) (tool.Result, error) {
	s.mu.Lock()
	fn, ok := s.responses[name]
	s.calls = append(s.calls, CallRecord{Name: name, Args: args})
	s.mu.Unlock()
	if !ok {
		return tool.Result{}, &tool.Error{Kind: tool.ErrNotFound, Tool: name, Message: "unknown tool"}
	}
	return fn(args)
}

// Close implements tool.Client.
func (s *StubToolClient) Close() error { return nil }

// Calls returns the invocations received so far.
func (s *StubToolClient) Calls() []CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CallRecord, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of invocations of a named tool.
func (s *StubToolClient) CallCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}
