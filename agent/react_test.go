package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorrymaker9331/finsight/core"
	"github.com/sorrymaker9331/finsight/internal/testutil"
	"github.com/sorrymaker9331/finsight/model"
	"github.com/sorrymaker9331/finsight/tool"
	"github.com/sorrymaker9331/finsight/trace"
)

const newsFinal = `{"summary":"coverage is positive","sentiment":"positive","confidence":0.8}`

func newsNode(t *testing.T, mock *model.MockModel, tools *testutil.StubToolClient) *ReActNode {
	t.Helper()
	cfg := ReActConfig{
		Name:       AgentNews,
		Model:      mock,
		OutputType: NewsFindings{},
	}
	if tools != nil {
		cfg.Tools = tools
	}
	node, err := NewReActNode(cfg)
	require.NoError(t, err)
	return node
}

func newsSnapshot(query string) core.Snapshot {
	return core.NewState(query, nil).Snapshot()
}

func TestReActDirectFinalOutput(t *testing.T) {
	mock := model.NewMockModel("mock").EnqueueText(newsFinal)
	node := newsNode(t, mock, nil)
	rec := trace.NewRecorder()

	delta, err := node.Execute(context.Background(), newsSnapshot("analyze 600519"), rec)
	require.NoError(t, err)

	out, ok := delta.AgentOutputs[AgentNews]
	require.True(t, ok)
	assert.Equal(t, "coverage is positive", out.Fields["summary"])
	assert.Equal(t, 0.8, out.Confidence)
	assert.False(t, out.NeedsRetry)
	assert.Empty(t, delta.Errors)

	require.Len(t, rec.Filter(trace.KindModelCall), 1)
}

func TestReActToolLoop(t *testing.T) {
	tools := testutil.NewStubToolClient().Register("get_stock_basic_info", `{"name":"test co"}`)
	mock := model.NewMockModel("mock").
		EnqueueCalls(model.FunctionCall{ID: "c1", Name: "get_stock_basic_info", Arguments: `{"code":"600519"}`}).
		EnqueueText(newsFinal)
	node := newsNode(t, mock, tools)
	rec := trace.NewRecorder()

	delta, err := node.Execute(context.Background(), newsSnapshot("analyze 600519"), rec)
	require.NoError(t, err)

	// the observation lands in the delta
	require.Len(t, delta.Observations, 1)
	assert.Equal(t, AgentNews, delta.Observations[0].Agent)
	assert.Equal(t, "get_stock_basic_info", delta.Observations[0].Tool)
	assert.Equal(t, `{"name":"test co"}`, delta.Observations[0].Result)

	// the tool result went back to the model on the second turn
	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, model.RoleTool, last.Role)
	require.Len(t, last.Results, 1)
	assert.Equal(t, `{"name":"test co"}`, last.Results[0].Content)

	// tools were advertised to the model
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "get_stock_basic_info", reqs[0].Tools[0].Name)
}

func TestReActToolFailureContinuesLoop(t *testing.T) {
	tools := testutil.NewStubToolClient()
	tools.Register("get_stock_basic_info", "{}")
	tools.RegisterError("crawl_news", tool.ErrRemoteFailure)

	mock := model.NewMockModel("mock").
		EnqueueCalls(model.FunctionCall{ID: "c1", Name: "crawl_news", Arguments: `{}`}).
		EnqueueText(newsFinal)
	node := newsNode(t, mock, tools)
	rec := trace.NewRecorder()

	delta, err := node.Execute(context.Background(), newsSnapshot("q"), rec)
	require.NoError(t, err)

	// the failure is a non-fatal error record plus an errored observation
	require.Len(t, delta.Errors, 1)
	assert.Equal(t, "tool:remote_failure", delta.Errors[0].Kind)
	assert.False(t, delta.Errors[0].Fatal)
	require.Len(t, delta.Observations, 1)
	assert.NotEmpty(t, delta.Observations[0].Err)

	// and the model still produced a final output
	_, ok := delta.AgentOutputs[AgentNews]
	assert.True(t, ok)
}

func TestReActInvalidOutput(t *testing.T) {
	mock := model.NewMockModel("mock").EnqueueText(`{"sentiment":"positive"}`)
	node := newsNode(t, mock, nil)

	delta, err := node.Execute(context.Background(), newsSnapshot("q"), trace.NewRecorder())
	require.Error(t, err)

	ae, ok := core.AsAgentError(err)
	require.True(t, ok)
	assert.Equal(t, core.AgentErrInvalidOutput, ae.Kind)
	assert.False(t, ae.Fatal)

	assert.Empty(t, delta.AgentOutputs)
	require.Len(t, delta.Errors, 1)
	assert.Equal(t, string(core.AgentErrInvalidOutput), delta.Errors[0].Kind)
}

func TestReActNonJSONOutput(t *testing.T) {
	mock := model.NewMockModel("mock").EnqueueText("I have no idea.")
	node := newsNode(t, mock, nil)

	_, err := node.Execute(context.Background(), newsSnapshot("q"), trace.NewRecorder())
	ae, ok := core.AsAgentError(err)
	require.True(t, ok)
	assert.Equal(t, core.AgentErrInvalidOutput, ae.Kind)
}

func TestReActIterationExhaustion(t *testing.T) {
	tools := testutil.NewStubToolClient().Register("get_stock_basic_info", "{}")
	mock := model.NewMockModel("mock")
	for i := 0; i < 3; i++ {
		mock.EnqueueCalls(model.FunctionCall{ID: "c", Name: "get_stock_basic_info", Arguments: `{}`})
	}

	node, err := NewReActNode(ReActConfig{
		Name:          AgentNews,
		Model:         mock,
		Tools:         tools,
		OutputType:    NewsFindings{},
		MaxIterations: 2,
	})
	require.NoError(t, err)

	delta, err := node.Execute(context.Background(), newsSnapshot("q"), trace.NewRecorder())
	require.Error(t, err)

	ae, ok := core.AsAgentError(err)
	require.True(t, ok)
	assert.Equal(t, core.AgentErrReasoningLimit, ae.Kind)

	// partial work survives: both iterations' observations are in the delta
	assert.Len(t, delta.Observations, 2)
	require.Len(t, delta.Errors, 1)
	assert.Equal(t, string(core.AgentErrReasoningLimit), delta.Errors[0].Kind)
}

func TestReActToolDiscoveryFailure(t *testing.T) {
	tools := testutil.NewStubToolClient()
	tools.DiscoverErr = errors.New("server exited")

	mock := model.NewMockModel("mock")
	node := newsNode(t, mock, tools)

	_, err := node.Execute(context.Background(), newsSnapshot("q"), trace.NewRecorder())
	ae, ok := core.AsAgentError(err)
	require.True(t, ok)
	assert.Equal(t, core.AgentErrToolUnavailable, ae.Kind)
	assert.False(t, ae.Fatal)
	assert.Empty(t, mock.Requests())
}

func TestReActToolDiscoveryFailureFatal(t *testing.T) {
	tools := testutil.NewStubToolClient()
	tools.DiscoverErr = errors.New("server exited")

	node, err := NewReActNode(ReActConfig{
		Name:                   AgentNews,
		Model:                  model.NewMockModel("mock"),
		Tools:                  tools,
		OutputType:             NewsFindings{},
		FatalOnToolUnavailable: true,
	})
	require.NoError(t, err)

	_, err = node.Execute(context.Background(), newsSnapshot("q"), trace.NewRecorder())
	ae, ok := core.AsAgentError(err)
	require.True(t, ok)
	assert.True(t, ae.Fatal)
}

func TestReActRetryPassSeesPreviousFindings(t *testing.T) {
	mock := model.NewMockModel("mock").EnqueueText(newsFinal)
	node := newsNode(t, mock, nil)

	state := core.NewState("q", nil)
	state.AgentOutputs[AgentNews] = core.AgentOutput{
		Fields:     map[string]any{"summary": "thin data"},
		NeedsRetry: true,
	}

	_, err := node.Execute(context.Background(), state.Snapshot(), trace.NewRecorder())
	require.NoError(t, err)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	prompt := reqs[0].Messages[0].Text
	assert.Contains(t, prompt, "re-analysis")
	assert.Contains(t, prompt, "thin data")
}

func TestReActInstructionsCarrySchema(t *testing.T) {
	mock := model.NewMockModel("mock").EnqueueText(newsFinal)
	node := newsNode(t, mock, nil)

	_, err := node.Execute(context.Background(), newsSnapshot("q"), trace.NewRecorder())
	require.NoError(t, err)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Instructions, "single JSON object")
	assert.Contains(t, reqs[0].Instructions, "confidence")
}
