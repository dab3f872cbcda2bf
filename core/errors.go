package core

import (
	"errors"
	"fmt"
)

// AgentErrorKind classifies agent-level failures.
type AgentErrorKind string

const (
	// AgentErrToolUnavailable indicates the agent could not reach or discover
	// its tools (e.g. tool server down, missing credentials).
	AgentErrToolUnavailable AgentErrorKind = "tool_unavailable"
	// AgentErrReasoningLimit indicates the reasoning loop exhausted its
	// iteration budget without emitting a final output.
	AgentErrReasoningLimit AgentErrorKind = "reasoning_limit_exceeded"
	// AgentErrInvalidOutput indicates the agent emitted output that does not
	// conform to its declared shape.
	AgentErrInvalidOutput AgentErrorKind = "invalid_output"
)

// AgentError is a failure of one agent node. Non-fatal by default; the
// orchestrator records it and the router decides whether to route around it.
type AgentError struct {
	Agent string
	Kind  AgentErrorKind
	Fatal bool
	Err   error
}

func (e *AgentError) Error() string {
	msg := fmt.Sprintf("agent %s: %s", e.Agent, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *AgentError) Unwrap() error { return e.Err }

// NewAgentError builds a non-fatal agent error.
func NewAgentError(agent string, kind AgentErrorKind, err error) *AgentError {
	return &AgentError{Agent: agent, Kind: kind, Err: err}
}

// Record converts the error into its workflow state representation.
func (e *AgentError) Record() ErrorRecord {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return ErrorRecord{Origin: e.Agent, Kind: string(e.Kind), Message: msg, Fatal: e.Fatal}
}

// AsAgentError extracts an *AgentError from an error chain.
func AsAgentError(err error) (*AgentError, bool) {
	var ae *AgentError
	ok := errors.As(err, &ae)
	return ae, ok
}

// OrchestrationErrorKind classifies run-level failures.
type OrchestrationErrorKind string

const (
	// OrchestrationErrMaxSteps indicates the global superstep cap was reached
	// before a terminal node, or routing stalled without a terminal marker.
	OrchestrationErrMaxSteps OrchestrationErrorKind = "max_steps_exceeded"
	// OrchestrationErrFatalAgent indicates a node marked fatal failed.
	OrchestrationErrFatalAgent OrchestrationErrorKind = "fatal_agent_error"
	// OrchestrationErrInvalidTopology indicates a malformed graph, including
	// concurrent siblings writing the same state key.
	OrchestrationErrInvalidTopology OrchestrationErrorKind = "invalid_topology"
)

// OrchestrationError aborts a run. The orchestrator still returns the best
// available partial report and the full trace alongside it.
type OrchestrationError struct {
	Kind    OrchestrationErrorKind
	Message string
	Err     error
}

func (e *OrchestrationError) Error() string {
	msg := fmt.Sprintf("orchestration: %s", e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *OrchestrationError) Unwrap() error { return e.Err }

// NewOrchestrationError builds an OrchestrationError with a formatted message.
func NewOrchestrationError(kind OrchestrationErrorKind, format string, args ...any) *OrchestrationError {
	return &OrchestrationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsOrchestrationError extracts an *OrchestrationError from an error chain.
func AsOrchestrationError(err error) (*OrchestrationError, bool) {
	var oe *OrchestrationError
	ok := errors.As(err, &oe)
	return oe, ok
}
