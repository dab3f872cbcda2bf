package engine

import (
	"time"

	"github.com/sorrymaker9331/finsight/core"
)

// NodeSpec declares one workflow node and its scheduling contract.
type NodeSpec struct {
	// Node is the executable unit.
	Node core.Node

	// Concurrent marks the node safe to run in parallel with other
	// concurrent nodes scheduled in the same superstep.
	Concurrent bool

	// Writes declares the agent-output keys the node may write. Used to
	// reject topologies where concurrent siblings could collide.
	Writes []string

	// Fatal escalates any execution error of this node to a run abort.
	Fatal bool

	// Timeout overrides the orchestrator's per-node deadline when positive.
	Timeout time.Duration
}

// Router decides which nodes run next. Next receives an immutable snapshot
// of the merged state and the names of the nodes that just executed, and
// must be a pure function of its arguments: no side effects, no internal
// state, the same inputs always produce the same schedule.
type Router interface {
	// Next returns the next node set, or done=true to end the run.
	Next(snap core.Snapshot, executed []string) (next []string, done bool)
}

// Topology is the static workflow graph: its nodes, the entry node, the
// terminal report node and the router connecting them.
type Topology struct {
	// Entry names the node scheduled in the first superstep.
	Entry string

	// Terminal names the report-producing node. On a fatal abort or step
	// exhaustion the orchestrator runs it once out of band so the caller
	// still receives a partial report.
	Terminal string

	// Nodes maps node name to its spec.
	Nodes map[string]NodeSpec

	Router Router
}

// Validate checks the graph invariants before any execution. Violations are
// returned as invalid-topology orchestration errors.
func (t Topology) Validate() error {
	if t.Entry == "" {
		return core.NewOrchestrationError(core.OrchestrationErrInvalidTopology, "entry node is not set")
	}
	if t.Router == nil {
		return core.NewOrchestrationError(core.OrchestrationErrInvalidTopology, "router is not set")
	}
	if _, ok := t.Nodes[t.Entry]; !ok {
		return core.NewOrchestrationError(core.OrchestrationErrInvalidTopology,
			"entry node %q is not in the graph", t.Entry)
	}
	if t.Terminal != "" {
		if _, ok := t.Nodes[t.Terminal]; !ok {
			return core.NewOrchestrationError(core.OrchestrationErrInvalidTopology,
				"terminal node %q is not in the graph", t.Terminal)
		}
	}
	writers := map[string]string{}
	for name, spec := range t.Nodes {
		if spec.Node == nil {
			return core.NewOrchestrationError(core.OrchestrationErrInvalidTopology,
				"node %q has no executable", name)
		}
		if got := spec.Node.Name(); got != name {
			return core.NewOrchestrationError(core.OrchestrationErrInvalidTopology,
				"node registered as %q reports name %q", name, got)
		}
		if !spec.Concurrent {
			continue
		}
		for _, key := range spec.Writes {
			if other, taken := writers[key]; taken {
				return core.NewOrchestrationError(core.OrchestrationErrInvalidTopology,
					"concurrent nodes %q and %q both declare write key %q", other, name, key)
			}
			writers[key] = name
		}
	}
	return nil
}

// StandardRouter implements the analysis workflow: the entry node fans out
// to all analysts, analysts whose merged output asks for another pass are
// re-scheduled, and once no analyst asks for one the summarizer runs and
// the workflow ends.
type StandardRouter struct {
	// Entry, Analysts and Summarizer name the corresponding nodes.
	Entry      string
	Analysts   []string
	Summarizer string
}

// Next implements Router.
func (r StandardRouter) Next(snap core.Snapshot, executed []string) ([]string, bool) {
	if snap.Report != nil {
		return nil, true
	}
	for _, name := range executed {
		if name == r.Summarizer {
			return nil, true
		}
	}
	for _, name := range executed {
		if name == r.Entry {
			return append([]string(nil), r.Analysts...), false
		}
	}

	// After an analyst pass: re-fork the analysts that flagged their own
	// output for another look. The step cap is the only bound on passes.
	var again []string
	for _, name := range r.Analysts {
		if out, ok := snap.Output(name); ok && out.NeedsRetry {
			again = append(again, name)
		}
	}
	if len(again) > 0 {
		return again, false
	}
	return []string{r.Summarizer}, false
}
