// Package core defines the shared data model of a workflow run: the mutable
// WorkflowState threaded through the graph, the immutable Snapshot handed to
// nodes, the Delta a node returns, the final Report, and the error taxonomy
// shared by agents and the orchestrator.
//
// Ownership rules are strict: only the orchestrator mutates a State by
// applying deltas between supersteps. Nodes read a Snapshot (a deep copy) and
// never see another node's delta until the next superstep.
package core
