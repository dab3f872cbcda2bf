package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	ae := NewAgentError("news", AgentErrToolUnavailable, cause)

	assert.ErrorIs(t, ae, cause)
	assert.Contains(t, ae.Error(), "agent news")
	assert.Contains(t, ae.Error(), "tool_unavailable")
	assert.False(t, ae.Fatal)

	wrapped := fmt.Errorf("superstep 2: %w", ae)
	got, ok := AsAgentError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "news", got.Agent)
}

func TestAgentErrorRecord(t *testing.T) {
	ae := NewAgentError("macro", AgentErrInvalidOutput, errors.New("missing confidence"))
	ae.Fatal = true

	rec := ae.Record()
	assert.Equal(t, "macro", rec.Origin)
	assert.Equal(t, string(AgentErrInvalidOutput), rec.Kind)
	assert.Equal(t, "missing confidence", rec.Message)
	assert.True(t, rec.Fatal)
}

func TestOrchestrationError(t *testing.T) {
	oe := NewOrchestrationError(OrchestrationErrMaxSteps, "superstep cap %d reached", 20)
	assert.Contains(t, oe.Error(), "max_steps_exceeded")
	assert.Contains(t, oe.Error(), "superstep cap 20 reached")

	wrapped := fmt.Errorf("run failed: %w", oe)
	got, ok := AsOrchestrationError(wrapped)
	require.True(t, ok)
	assert.Equal(t, OrchestrationErrMaxSteps, got.Kind)
}

func TestAsAgentErrorMiss(t *testing.T) {
	_, ok := AsAgentError(errors.New("plain"))
	assert.False(t, ok)
}
