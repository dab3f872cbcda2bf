package tool_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorrymaker9331/finsight/internal/testutil"
	"github.com/sorrymaker9331/finsight/tool"
	"github.com/sorrymaker9331/finsight/trace"
)

func noSleep(slept *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
}

func TestInvokerSuccessFirstAttempt(t *testing.T) {
	client := testutil.NewStubToolClient().Register("get_stock_basic_info", `{"code":"600519"}`)
	rec := trace.NewRecorder()
	inv := tool.NewInvoker(client, "market", 0, rec)

	res, err := inv.Call(context.Background(), "get_stock_basic_info", map[string]any{"code": "600519"})
	require.NoError(t, err)
	assert.Equal(t, `{"code":"600519"}`, res.Content)

	calls := rec.Filter(trace.KindToolCall)
	require.Len(t, calls, 1)
	assert.Equal(t, 1, calls[0].Attempt)
	assert.Equal(t, "market", calls[0].Node)
	assert.Empty(t, rec.Filter(trace.KindToolRetry))
}

func TestInvokerRetriesTransientFailure(t *testing.T) {
	attempts := 0
	client := testutil.NewStubToolClient().RegisterFunc("get_profit_data", func(map[string]any) (tool.Result, error) {
		attempts++
		if attempts < 3 {
			return tool.Result{}, &tool.Error{Kind: tool.ErrRemoteFailure, Tool: "get_profit_data", Message: "upstream 500"}
		}
		return tool.Result{Content: "ok"}, nil
	})

	var slept []time.Duration
	rec := trace.NewRecorder()
	inv := tool.NewInvoker(client, "financial-report", 0, rec, tool.WithSleep(noSleep(&slept)))

	res, err := inv.Call(context.Background(), "get_profit_data", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, 3, attempts)

	// backoff strictly increases between retries
	require.Len(t, slept, 2)
	assert.Greater(t, slept[1], slept[0])

	// every attempt is traced with its attempt number
	calls := rec.Filter(trace.KindToolCall)
	require.Len(t, calls, 3)
	for i, e := range calls {
		assert.Equal(t, i+1, e.Attempt)
	}
	assert.NotEmpty(t, calls[0].Err)
	assert.Empty(t, calls[2].Err)
	require.Len(t, rec.Filter(trace.KindToolRetry), 2)
}

func TestInvokerExhaustsRetries(t *testing.T) {
	client := testutil.NewStubToolClient().RegisterError("get_shibor_data", tool.ErrTimeout)

	var slept []time.Duration
	rec := trace.NewRecorder()
	inv := tool.NewInvoker(client, "macro", 0, rec,
		tool.WithRetryPolicy(tool.RetryPolicy{MaxRetries: 2, Base: 100 * time.Millisecond, Max: time.Second}),
		tool.WithSleep(noSleep(&slept)))

	_, err := inv.Call(context.Background(), "get_shibor_data", nil)
	require.Error(t, err)
	te, ok := tool.AsError(err)
	require.True(t, ok)
	assert.Equal(t, tool.ErrTimeout, te.Kind)

	assert.Equal(t, 3, client.CallCount("get_shibor_data"))
	assert.Len(t, rec.Filter(trace.KindToolCall), 3)
}

func TestInvokerNeverRetriesNotFound(t *testing.T) {
	client := testutil.NewStubToolClient().Register("known_tool", "x")
	rec := trace.NewRecorder()
	inv := tool.NewInvoker(client, "news", 0, rec)

	_, err := inv.Call(context.Background(), "missing_tool", nil)
	te, ok := tool.AsError(err)
	require.True(t, ok)
	assert.Equal(t, tool.ErrNotFound, te.Kind)
	assert.Equal(t, 1, client.CallCount("missing_tool"))
	assert.Empty(t, rec.Filter(trace.KindToolRetry))
}

func TestInvokerNeverRetriesProtocolError(t *testing.T) {
	client := testutil.NewStubToolClient().RegisterError("get_growth_data", tool.ErrProtocol)
	rec := trace.NewRecorder()
	inv := tool.NewInvoker(client, "financial-report", 0, rec)

	_, err := inv.Call(context.Background(), "get_growth_data", nil)
	te, ok := tool.AsError(err)
	require.True(t, ok)
	assert.Equal(t, tool.ErrProtocol, te.Kind)
	assert.Equal(t, 1, client.CallCount("get_growth_data"))
}

func TestInvokerStopsWhenContextCanceled(t *testing.T) {
	client := testutil.NewStubToolClient().RegisterError("get_cash_flow_data", tool.ErrRemoteFailure)
	rec := trace.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	inv := tool.NewInvoker(client, "financial-report", 0, rec,
		tool.WithSleep(func(context.Context, time.Duration) error { return nil }))
	cancel()

	_, err := inv.Call(ctx, "get_cash_flow_data", nil)
	require.Error(t, err)
	assert.Equal(t, 1, client.CallCount("get_cash_flow_data"))
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := tool.RetryPolicy{MaxRetries: 4, Base: 500 * time.Millisecond, Max: 5 * time.Second}
	assert.Equal(t, 500*time.Millisecond, p.Backoff(1))
	assert.Equal(t, time.Second, p.Backoff(2))
	assert.Equal(t, 2*time.Second, p.Backoff(3))
	assert.Equal(t, 4*time.Second, p.Backoff(4))
	assert.Equal(t, 5*time.Second, p.Backoff(5))
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := tool.DefaultRetryPolicy()
	assert.Equal(t, 2, p.MaxRetries)
	assert.Greater(t, p.Backoff(2), p.Backoff(1))
}
