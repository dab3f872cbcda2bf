package tool

import (
	"errors"
	"fmt"
)

// ErrorKind classifies tool call failures. Timeout and RemoteFailure are
// transient and retried; NotFound and ProtocolError indicate a caller or
// contract bug and are never retried.
type ErrorKind string

const (
	// ErrTimeout indicates the call exceeded its deadline or was cancelled.
	ErrTimeout ErrorKind = "timeout"
	// ErrNotFound indicates the named tool is not exposed by the server.
	ErrNotFound ErrorKind = "not_found"
	// ErrRemoteFailure indicates the server reported or caused a failure.
	ErrRemoteFailure ErrorKind = "remote_failure"
	// ErrProtocol indicates a malformed exchange on the wire.
	ErrProtocol ErrorKind = "protocol_error"
)

// Error is a classified tool call failure.
type Error struct {
	Kind    ErrorKind
	Tool    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("tool %s: %s", e.Tool, e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure kind is transient.
func (e *Error) Retryable() bool {
	return e.Kind == ErrTimeout || e.Kind == ErrRemoteFailure
}

// NewError builds an Error wrapping a cause.
func NewError(kind ErrorKind, tool string, err error) *Error {
	return &Error{Kind: kind, Tool: tool, Err: err}
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var te *Error
	ok := errors.As(err, &te)
	return te, ok
}
