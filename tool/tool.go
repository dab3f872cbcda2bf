// Package tool implements the tool-invocation protocol client. Agents reach
// external data sources (quotes, financial statements, macro indicators,
// news) through Model Context Protocol servers; this package wraps the MCP
// client session behind a small Client interface and layers the retry policy
// and trace recording on top via Invoker.
package tool

import "context"

// Descriptor describes one callable tool exposed by a tool server.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// Result is the successful payload of a tool call. Content carries the
// server's response serialized to a JSON string; immutable once constructed.
type Result struct {
	Content string `json:"content"`
}

// Client speaks the tool-invocation protocol to one tool server. A Client
// must be safe for concurrent calls; the underlying transport is a single
// multiplexed channel.
type Client interface {
	// DiscoverTools lists the tools available on the server.
	DiscoverTools(ctx context.Context) ([]Descriptor, error)

	// Call invokes a named tool with the given arguments. Implementations
	// classify failures via *Error; the timeout is carried on ctx.
	Call(ctx context.Context, name string, args map[string]any) (Result, error)

	// Close releases the transport.
	Close() error
}
