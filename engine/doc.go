// Package engine drives workflow execution in supersteps: snapshot the
// state, execute the scheduled nodes against it, merge their deltas, then
// ask the router for the next node set. Nodes never share mutable state and
// routing is a pure function of the merged state, so a run is deterministic
// up to model and tool output.
package engine
