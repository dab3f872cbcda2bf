package core

import (
	"time"

	"github.com/google/uuid"
)

// AgentOutput is one agent's structured findings: a mapping of named fields
// specific to the agent's domain plus the routing surface (confidence and the
// optional retry request the Router reads).
type AgentOutput struct {
	Fields     map[string]any `json:"fields"`
	Confidence float64        `json:"confidence"`
	NeedsRetry bool           `json:"needs_retry,omitempty"`
}

// Clone returns a copy with an independent Fields map. Nested values are
// shared; producers treat them as immutable once emitted.
func (o AgentOutput) Clone() AgentOutput {
	c := o
	c.Fields = make(map[string]any, len(o.Fields))
	for k, v := range o.Fields {
		c.Fields[k] = v
	}
	return c
}

// ToolObservation records one tool invocation outcome observed by an agent.
// Entries are append-only and never mutated after insertion.
type ToolObservation struct {
	Agent     string         `json:"agent"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result,omitempty"`
	Err       string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ErrorRecord is one accumulated workflow error. Presence does not halt the
// run unless Fatal is set.
type ErrorRecord struct {
	Origin  string `json:"origin"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal,omitempty"`
}

// State is the single shared mutable context of one workflow run. It is owned
// exclusively by the orchestrator between supersteps; no locking is required
// because nodes only ever receive snapshots.
type State struct {
	RunID        string
	Query        string
	Metadata     map[string]string
	AgentOutputs map[string]AgentOutput
	Observations []ToolObservation
	Errors       []ErrorRecord
	StepCount    int
	Report       *Report
	Created      time.Time
}

// NewState creates the initial state for a query. Metadata carries derived
// query attributes (stock code, company name) extracted before the run.
func NewState(query string, metadata map[string]string) *State {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &State{
		RunID:        uuid.NewString(),
		Query:        query,
		Metadata:     metadata,
		AgentOutputs: map[string]AgentOutput{},
		Created:      time.Now().UTC(),
	}
}

// Snapshot is an immutable deep copy of a State at a superstep boundary.
// Fields are exported for read access; mutating a snapshot affects nothing.
type Snapshot struct {
	RunID        string
	Query        string
	Metadata     map[string]string
	AgentOutputs map[string]AgentOutput
	Observations []ToolObservation
	Errors       []ErrorRecord
	StepCount    int
	Report       *Report
}

// Snapshot returns a deep copy safe for concurrent readers.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		RunID:        s.RunID,
		Query:        s.Query,
		Metadata:     make(map[string]string, len(s.Metadata)),
		AgentOutputs: make(map[string]AgentOutput, len(s.AgentOutputs)),
		Observations: make([]ToolObservation, len(s.Observations)),
		Errors:       make([]ErrorRecord, len(s.Errors)),
		StepCount:    s.StepCount,
	}
	for k, v := range s.Metadata {
		snap.Metadata[k] = v
	}
	for k, v := range s.AgentOutputs {
		snap.AgentOutputs[k] = v.Clone()
	}
	copy(snap.Observations, s.Observations)
	copy(snap.Errors, s.Errors)
	if s.Report != nil {
		r := s.Report.Clone()
		snap.Report = &r
	}
	return snap
}

// Output returns the output recorded for an agent, if any.
func (s Snapshot) Output(agent string) (AgentOutput, bool) {
	out, ok := s.AgentOutputs[agent]
	return out, ok
}

// ObservationsFor returns the tool observations recorded by an agent, in
// insertion order.
func (s Snapshot) ObservationsFor(agent string) []ToolObservation {
	var out []ToolObservation
	for _, obs := range s.Observations {
		if obs.Agent == agent {
			out = append(out, obs)
		}
	}
	return out
}

// FatalErrors returns the accumulated errors marked fatal.
func (s Snapshot) FatalErrors() []ErrorRecord {
	var out []ErrorRecord
	for _, e := range s.Errors {
		if e.Fatal {
			out = append(out, e)
		}
	}
	return out
}
