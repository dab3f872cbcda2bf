package core

// Delta is the isolated set of state changes produced by one node execution.
// The orchestrator applies deltas atomically between supersteps; a node never
// mutates the state it was given.
type Delta struct {
	// AgentOutputs maps agent id to a replacement output. A well-formed node
	// writes only its own key; the orchestrator rejects same-key writes from
	// concurrent siblings.
	AgentOutputs map[string]AgentOutput

	// Observations are appended to the shared observation log.
	Observations []ToolObservation

	// Errors are appended to the shared error log.
	Errors []ErrorRecord

	// Report is set only by the terminal aggregator node.
	Report *Report
}

// NewDelta returns an empty delta.
func NewDelta() *Delta {
	return &Delta{AgentOutputs: map[string]AgentOutput{}}
}

// SetOutput records the output delta for an agent key.
func (d *Delta) SetOutput(agent string, out AgentOutput) {
	if d.AgentOutputs == nil {
		d.AgentOutputs = map[string]AgentOutput{}
	}
	d.AgentOutputs[agent] = out
}

// AddObservation appends one tool observation to the delta.
func (d *Delta) AddObservation(obs ToolObservation) {
	d.Observations = append(d.Observations, obs)
}

// AddError appends one error record to the delta.
func (d *Delta) AddError(rec ErrorRecord) {
	d.Errors = append(d.Errors, rec)
}

// WriteKeys returns the agent-output keys this delta writes, plus the report
// pseudo-key when the delta sets a report. Used for conflict detection.
func (d *Delta) WriteKeys() []string {
	keys := make([]string, 0, len(d.AgentOutputs)+1)
	for k := range d.AgentOutputs {
		keys = append(keys, k)
	}
	if d.Report != nil {
		keys = append(keys, ReportKey)
	}
	return keys
}

// ReportKey is the pseudo state key claimed by a delta that sets the report.
const ReportKey = "__report__"

// Apply merges the delta into the state. Only the orchestrator calls this,
// between supersteps, after conflict checks have passed.
func (s *State) Apply(d *Delta) {
	if d == nil {
		return
	}
	for k, v := range d.AgentOutputs {
		s.AgentOutputs[k] = v
	}
	s.Observations = append(s.Observations, d.Observations...)
	s.Errors = append(s.Errors, d.Errors...)
	if d.Report != nil {
		s.Report = d.Report
	}
}
