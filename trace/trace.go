// Package trace provides the append-only execution recorder used to audit a
// workflow run. Every node entry/exit, tool call attempt and raised error is
// captured as an immutable Entry ordered by a logical sequence number, which
// keeps traces deterministic even when concurrent branches interleave their
// wall-clock timestamps.
package trace

import (
	"sync"
	"time"
)

// Kind categorizes a trace entry.
type Kind string

const (
	// KindRunStarted marks the beginning of an orchestrator run.
	KindRunStarted Kind = "run_started"
	// KindRunCompleted marks the end of an orchestrator run.
	KindRunCompleted Kind = "run_completed"
	// KindSuperstep marks the completion of one orchestrator superstep.
	KindSuperstep Kind = "superstep"
	// KindNodeEntered marks a node beginning execution against a snapshot.
	KindNodeEntered Kind = "node_entered"
	// KindNodeExited marks a node finishing execution.
	KindNodeExited Kind = "node_exited"
	// KindToolCall records a single tool call attempt (including retries).
	KindToolCall Kind = "tool_call"
	// KindToolRetry records the scheduling of a retry after a failed attempt.
	KindToolRetry Kind = "tool_retry"
	// KindModelCall records one model generation within a reasoning loop.
	KindModelCall Kind = "model_call"
	// KindError records an error surfaced to the workflow state.
	KindError Kind = "error"
)

// Entry is one immutable record of a workflow event. Seq is assigned at
// record time and is the authoritative ordering; Timestamp is informational.
type Entry struct {
	Seq       uint64         `json:"seq"`
	Kind      Kind           `json:"kind"`
	Node      string         `json:"node,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Attempt   int            `json:"attempt,omitempty"`
	Step      int            `json:"step,omitempty"`
	Err       string         `json:"error,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration,omitempty"`
}

// Recorder accumulates trace entries for the lifetime of one run. Record
// never fails; the only delay a caller can observe is the bounded mutex hold
// of a slice append. Sequence numbers are assigned under the same lock so the
// recorded order and the sequence order always agree.
type Recorder struct {
	mu      sync.Mutex
	seq     uint64
	entries []Entry
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record assigns the next sequence number and timestamp to e and appends it.
// Safe for concurrent use.
func (r *Recorder) Record(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	e.Seq = r.seq
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	r.entries = append(r.entries, e)
}

// Drain returns a copy of all entries recorded so far in sequence order. The
// recorder itself is not reset; a run drains once after completion.
func (r *Recorder) Drain() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of recorded entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Filter returns the recorded entries matching kind, in sequence order.
func (r *Recorder) Filter(kind Kind) []Entry {
	var out []Entry
	for _, e := range r.Drain() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
