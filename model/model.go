// Package model defines the minimal language-model interface the reasoning
// loop drives, with provider adapters under model/openai and model/anthropic.
// Requests and responses are normalized so agent code never branches per
// vendor.
package model

import "context"

// Role identifies the author of a message.
type Role string

const (
	// RoleUser is end-user or orchestrator supplied content.
	RoleUser Role = "user"
	// RoleAssistant is model-generated content.
	RoleAssistant Role = "assistant"
	// RoleTool carries tool execution results back to the model.
	RoleTool Role = "tool"
)

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // JSON-encoded argument object
}

// FunctionResult is the outcome of a function call fed back to the model.
type FunctionResult struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Content string `json:"content,omitempty"`
	Err     string `json:"error,omitempty"`
}

// Message is one turn of a model conversation. An assistant message may carry
// function calls; a tool message carries the matching results.
type Message struct {
	Role    Role             `json:"role"`
	Text    string           `json:"text,omitempty"`
	Calls   []FunctionCall   `json:"calls,omitempty"`
	Results []FunctionResult `json:"results,omitempty"`
}

// ToolDefinition declaratively exposes a callable tool to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is the normalized model input produced by a reasoning loop.
type Request struct {
	Instructions string           `json:"instructions"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a complete model turn.
type Response struct {
	Message      Message     `json:"message"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// HasCalls reports whether the response requests tool execution.
func (r *Response) HasCalls() bool { return len(r.Message.Calls) > 0 }

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the interface the reasoning loop drives.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Info() Info
}
