// Package agent implements the graph nodes: the bounded ReAct reasoning loop
// each analyst runs, the four financial analyst configurations, and the
// terminal aggregator that consolidates agent outputs into the final report.
//
// A node receives an immutable state snapshot, reasons in think/act/observe
// cycles against a model and a tool client, and emits a state delta. Nodes
// never mutate shared state; the orchestrator applies deltas between
// supersteps.
package agent
