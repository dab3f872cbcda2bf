package tool_test

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorrymaker9331/finsight/tool"
)

type quoteArgs struct {
	Code string `json:"code"`
}

// startTestServer wires an in-process MCP server to a connected MCPClient.
func startTestServer(t *testing.T) *tool.MCPClient {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{Name: "test-data-server"}, nil)
	mcp.AddTool(server, &mcp.Tool{Name: "get_stock_basic_info", Description: "Basic stock info"},
		func(ctx context.Context, req *mcp.CallToolRequest, args quoteArgs) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: `{"code":"` + args.Code + `","name":"test"}`}},
			}, nil, nil
		})
	mcp.AddTool(server, &mcp.Tool{Name: "get_profit_data", Description: "Profitability data"},
		func(ctx context.Context, req *mcp.CallToolRequest, args quoteArgs) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "data source offline"}},
				IsError: true,
			}, nil, nil
		})

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx := context.Background()
	_, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := tool.NewMCPClient(tool.MCPClientParams{Name: "test", Transport: clientTransport})
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(func() { client.Close() })
	return client
}

func TestMCPClientDiscoverTools(t *testing.T) {
	client := startTestServer(t)

	tools, err := client.DiscoverTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)

	names := []string{tools[0].Name, tools[1].Name}
	assert.Contains(t, names, "get_stock_basic_info")
	assert.Contains(t, names, "get_profit_data")
	for _, d := range tools {
		assert.NotEmpty(t, d.Description)
		assert.NotEmpty(t, d.InputSchema)
	}
}

func TestMCPClientCall(t *testing.T) {
	client := startTestServer(t)
	ctx := context.Background()
	_, err := client.DiscoverTools(ctx)
	require.NoError(t, err)

	res, err := client.Call(ctx, "get_stock_basic_info", map[string]any{"code": "600519"})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "600519")
}

func TestMCPClientCallServerError(t *testing.T) {
	client := startTestServer(t)
	ctx := context.Background()
	_, err := client.DiscoverTools(ctx)
	require.NoError(t, err)

	_, err = client.Call(ctx, "get_profit_data", map[string]any{"code": "600519"})
	require.Error(t, err)
	te, ok := tool.AsError(err)
	require.True(t, ok)
	assert.Equal(t, tool.ErrRemoteFailure, te.Kind)
	assert.True(t, te.Retryable())
}

func TestMCPClientCallUnknownTool(t *testing.T) {
	client := startTestServer(t)
	ctx := context.Background()
	_, err := client.DiscoverTools(ctx)
	require.NoError(t, err)

	_, err = client.Call(ctx, "get_weather", nil)
	te, ok := tool.AsError(err)
	require.True(t, ok)
	assert.Equal(t, tool.ErrNotFound, te.Kind)
	assert.False(t, te.Retryable())
}

func TestMCPClientNotConnected(t *testing.T) {
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	_ = serverTransport
	client := tool.NewMCPClient(tool.MCPClientParams{Name: "test", Transport: clientTransport})

	_, err := client.DiscoverTools(context.Background())
	require.Error(t, err)
	_, ok := tool.AsError(err)
	assert.True(t, ok)
}
