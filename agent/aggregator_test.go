package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorrymaker9331/finsight/core"
	"github.com/sorrymaker9331/finsight/model"
	"github.com/sorrymaker9331/finsight/trace"
)

func fullState() *core.State {
	s := core.NewState("analyze 600519", map[string]string{"stock_code": "600519"})
	s.AgentOutputs[AgentNews] = core.AgentOutput{
		Fields:     map[string]any{"summary": "positive coverage", "sentiment": "positive", "confidence": 0.8},
		Confidence: 0.8,
	}
	s.AgentOutputs[AgentMarket] = core.AgentOutput{
		Fields:     map[string]any{"summary": "uptrend intact", "trend": "up", "confidence": 0.7},
		Confidence: 0.7,
	}
	s.AgentOutputs[AgentFinancialReport] = core.AgentOutput{
		Fields:     map[string]any{"summary": "strong margins", "confidence": 0.9},
		Confidence: 0.9,
	}
	s.AgentOutputs[AgentMacro] = core.AgentOutput{
		Fields:     map[string]any{"summary": "loose liquidity", "confidence": 0.6},
		Confidence: 0.6,
	}
	return s
}

func TestAggregatorFullReport(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})
	delta, err := agg.Execute(context.Background(), fullState().Snapshot(), trace.NewRecorder())
	require.NoError(t, err)
	require.NotNil(t, delta.Report)

	r := delta.Report
	assert.False(t, r.Degraded)
	assert.Empty(t, r.Missing)
	require.Len(t, r.Sections, 4)

	news, ok := r.Section(AgentNews)
	require.True(t, ok)
	assert.Equal(t, "positive coverage", news.Summary)
	assert.Equal(t, 0.8, news.Confidence)
	assert.Equal(t, "News & Sentiment", news.Title)

	// mechanical synthesis stitches the available summaries
	assert.Contains(t, r.Synthesis, "positive coverage")
	assert.Contains(t, r.Synthesis, "loose liquidity")
}

func TestAggregatorMarksMissingSections(t *testing.T) {
	s := fullState()
	delete(s.AgentOutputs, AgentMarket)
	s.Errors = append(s.Errors, core.ErrorRecord{
		Origin: AgentMarket, Kind: "tool_unavailable", Message: "tool server unreachable",
	})

	agg := NewAggregator(AggregatorConfig{})
	delta, err := agg.Execute(context.Background(), s.Snapshot(), trace.NewRecorder())
	require.NoError(t, err)

	r := delta.Report
	assert.True(t, r.Degraded)
	assert.Equal(t, []string{AgentMarket}, r.Missing)

	market, ok := r.Section(AgentMarket)
	require.True(t, ok)
	assert.True(t, market.Missing)
	assert.Equal(t, "tool server unreachable", market.Reason)
}

func TestAggregatorNeverFatalOnEmptyState(t *testing.T) {
	s := core.NewState("q", nil)
	agg := NewAggregator(AggregatorConfig{})

	delta, err := agg.Execute(context.Background(), s.Snapshot(), trace.NewRecorder())
	require.NoError(t, err)

	r := delta.Report
	require.NotNil(t, r)
	assert.True(t, r.Degraded)
	assert.Len(t, r.Missing, 4)
	assert.Equal(t, "No analyst produced findings for this query.", r.Synthesis)
}

func TestAggregatorModelSynthesis(t *testing.T) {
	mock := model.NewMockModel("mock").EnqueueText("Overall the picture is constructive.")
	agg := NewAggregator(AggregatorConfig{Model: mock})
	rec := trace.NewRecorder()

	delta, err := agg.Execute(context.Background(), fullState().Snapshot(), rec)
	require.NoError(t, err)
	assert.Equal(t, "Overall the picture is constructive.", delta.Report.Synthesis)
	require.Len(t, rec.Filter(trace.KindModelCall), 1)

	// the model saw every section summary
	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Messages[0].Text, "strong margins")
}

func TestAggregatorSynthesisFallbackOnModelFailure(t *testing.T) {
	// empty script yields an empty response, which synthesis rejects
	mock := model.NewMockModel("mock")
	agg := NewAggregator(AggregatorConfig{Model: mock})

	delta, err := agg.Execute(context.Background(), fullState().Snapshot(), trace.NewRecorder())
	require.NoError(t, err)
	assert.Contains(t, delta.Report.Synthesis, "positive coverage")
}

func TestStartNodeIsNoOp(t *testing.T) {
	delta, err := StartNode{}.Execute(context.Background(), core.NewState("q", nil).Snapshot(), trace.NewRecorder())
	require.NoError(t, err)
	assert.Empty(t, delta.AgentOutputs)
	assert.Nil(t, delta.Report)
	assert.Equal(t, AgentStart, StartNode{}.Name())
}
