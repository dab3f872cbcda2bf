package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sorrymaker9331/finsight/logging"
)

// MCPClient is a Client backed by an MCP client session. The session
// multiplexes concurrent calls over a single transport (stdio pipe to a tool
// server subprocess, or any mcp.Transport for tests).
type MCPClient struct {
	name      string
	transport mcp.Transport
	logger    logging.Logger

	mu      sync.Mutex
	session *mcp.ClientSession
	known   map[string]struct{}
}

// MCPClientParams configures an MCPClient.
type MCPClientParams struct {
	// Name is a readable identifier for the server, used in logs.
	Name string
	// Transport is the MCP transport to connect over.
	Transport mcp.Transport
	// Logger defaults to a no-op logger when nil.
	Logger logging.Logger
}

// NewMCPClient creates a client for an arbitrary MCP transport.
func NewMCPClient(params MCPClientParams) *MCPClient {
	return &MCPClient{
		name:      params.Name,
		transport: params.Transport,
		logger:    logging.Ensure(params.Logger),
	}
}

// NewStdioMCPClient creates a client that spawns the tool server subprocess
// and speaks MCP over its standard input/output pipe.
func NewStdioMCPClient(name string, cmd *exec.Cmd, logger logging.Logger) *MCPClient {
	if name == "" {
		name = fmt.Sprintf("stdio: %s", cmd.Path)
	}
	return NewMCPClient(MCPClientParams{
		Name:      name,
		Transport: &mcp.CommandTransport{Command: cmd},
		Logger:    logger,
	})
}

// Connect establishes the client session. Must be called before DiscoverTools
// or Call.
func (c *MCPClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return nil
	}
	client := mcp.NewClient(&mcp.Implementation{Name: c.name}, nil)
	session, err := client.Connect(ctx, c.transport, nil)
	if err != nil {
		return NewError(ErrRemoteFailure, "", fmt.Errorf("connect to %s: %w", c.name, err))
	}
	c.session = session
	c.logger.Info("tool server connected", "server", c.name)
	return nil
}

// Close terminates the session and its transport.
func (c *MCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

func (c *MCPClient) currentSession() (*mcp.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, NewError(ErrRemoteFailure, "", errors.New("client not connected"))
	}
	return c.session, nil
}

// DiscoverTools lists the server's tools and remembers their names so later
// calls to unknown tools fail fast with ErrNotFound instead of a round trip.
func (c *MCPClient) DiscoverTools(ctx context.Context) ([]Descriptor, error) {
	session, err := c.currentSession()
	if err != nil {
		return nil, err
	}
	res, err := session.ListTools(ctx, nil)
	if err != nil {
		return nil, c.classify("", err)
	}
	descriptors := make([]Descriptor, 0, len(res.Tools))
	known := make(map[string]struct{}, len(res.Tools))
	for _, t := range res.Tools {
		schema, err := schemaToMap(t.InputSchema)
		if err != nil {
			return nil, &Error{Kind: ErrProtocol, Tool: t.Name, Message: "unreadable input schema", Err: err}
		}
		descriptors = append(descriptors, Descriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
		known[t.Name] = struct{}{}
	}
	c.mu.Lock()
	c.known = known
	c.mu.Unlock()
	return descriptors, nil
}

// Call invokes a named tool. The provided context carries the per-call
// timeout; on expiry the in-flight call is abandoned and classified as
// ErrTimeout.
func (c *MCPClient) Call(ctx context.Context, name string, args map[string]any) (Result, error) {
	session, err := c.currentSession()
	if err != nil {
		return Result{}, err
	}
	c.mu.Lock()
	if c.known != nil {
		if _, ok := c.known[name]; !ok {
			c.mu.Unlock()
			return Result{}, &Error{Kind: ErrNotFound, Tool: name, Message: "tool not exposed by server"}
		}
	}
	c.mu.Unlock()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return Result{}, c.classify(name, err)
	}
	content, err := flattenContent(res)
	if err != nil {
		return Result{}, &Error{Kind: ErrProtocol, Tool: name, Err: err}
	}
	if res.IsError {
		return Result{}, &Error{Kind: ErrRemoteFailure, Tool: name, Message: content}
	}
	return Result{Content: content}, nil
}

// classify maps transport errors onto the tool error taxonomy. Deadline and
// cancellation become ErrTimeout; everything else from the session is a
// remote failure and therefore retryable.
func (c *MCPClient) classify(name string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewError(ErrTimeout, name, err)
	}
	return NewError(ErrRemoteFailure, name, err)
}

// flattenContent serializes a tool result to a single JSON string, preferring
// structured content when the server provides it.
func flattenContent(res *mcp.CallToolResult) (string, error) {
	if res.StructuredContent != nil {
		b, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return "", fmt.Errorf("marshal structured content: %w", err)
		}
		return string(b), nil
	}
	switch len(res.Content) {
	case 0:
		// Empty content is a valid result (e.g. "no data found").
		return "[]", nil
	case 1:
		if tc, ok := res.Content[0].(*mcp.TextContent); ok {
			return tc.Text, nil
		}
		b, err := json.Marshal(res.Content[0])
		if err != nil {
			return "", fmt.Errorf("marshal content: %w", err)
		}
		return string(b), nil
	default:
		b, err := json.Marshal(res.Content)
		if err != nil {
			return "", fmt.Errorf("marshal content list: %w", err)
		}
		return string(b), nil
	}
}

// schemaToMap converts the SDK schema type into a plain JSON map.
func schemaToMap(schema any) (map[string]any, error) {
	if schema == nil {
		return nil, nil
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
