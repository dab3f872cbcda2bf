package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sorrymaker9331/finsight/core"
	"github.com/sorrymaker9331/finsight/logging"
	"github.com/sorrymaker9331/finsight/observability"
	"github.com/sorrymaker9331/finsight/trace"
)

// Config defines tuning parameters for a workflow run.
type Config struct {
	// MaxSteps caps the number of supersteps in one run. The cap is the
	// global progress guarantee: it bounds retry re-forks and malformed
	// routing alike. Set to 0 for the default.
	MaxSteps int

	// NodeTimeout is the per-node execution deadline, overridable per node
	// via NodeSpec.Timeout. Zero disables the deadline.
	NodeTimeout time.Duration
}

// DefaultConfig returns production defaults: 20 supersteps, two minutes per
// node.
func DefaultConfig() Config {
	return Config{
		MaxSteps:    20,
		NodeTimeout: 2 * time.Minute,
	}
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the run logger.
func WithLogger(l *logging.RunLogger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics attaches run metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithQueryMetadata sets the query preprocessor that derives the initial
// state metadata (e.g. stock code extraction).
func WithQueryMetadata(fn func(query string) map[string]string) Option {
	return func(o *Orchestrator) { o.queryMeta = fn }
}

// Orchestrator executes a workflow graph over a shared state in supersteps.
// It is the only writer of the state: nodes receive immutable snapshots and
// return deltas, which the orchestrator merges in deterministic order
// between supersteps.
type Orchestrator struct {
	topo      Topology
	cfg       Config
	logger    *logging.RunLogger
	metrics   *observability.Metrics
	queryMeta func(string) map[string]string
}

// New validates the topology and builds an orchestrator.
func New(topo Topology, cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultConfig().MaxSteps
	}
	o := &Orchestrator{topo: topo, cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.Nop()
	}
	o.logger = o.logger.WithComponent("engine")
	return o, nil
}

// Result is the outcome of one run: the report (possibly partial), the final
// state and the ordered execution trace. Report and Trace are populated even
// when Run also returns an error.
type Result struct {
	Report *core.Report
	State  core.Snapshot
	Trace  []trace.Entry
}

// Run executes the workflow for a query until the router terminates it, a
// fatal error aborts it or the superstep cap is hit. On abort the returned
// error is an *core.OrchestrationError and the result still carries the
// partial report and full trace.
func (o *Orchestrator) Run(ctx context.Context, query string) (*Result, error) {
	meta := map[string]string{}
	if o.queryMeta != nil {
		meta = o.queryMeta(query)
	}
	state := core.NewState(query, meta)
	rec := trace.NewRecorder()
	log := o.logger.WithRun(state.RunID)

	rec.Record(trace.Entry{Kind: trace.KindRunStarted, Detail: map[string]any{"query": query}})
	log.Info("run started", "query", query)

	current := []string{o.topo.Entry}
	for state.StepCount < o.cfg.MaxSteps {
		if err := ctx.Err(); err != nil {
			return o.abort(ctx, state, rec, log,
				core.NewOrchestrationError(core.OrchestrationErrFatalAgent, "run canceled: %v", err))
		}

		step := state.StepCount + 1
		rec.Record(trace.Entry{
			Kind:   trace.KindSuperstep,
			Step:   step,
			Detail: map[string]any{"nodes": append([]string(nil), current...)},
		})
		o.metrics.Superstep()

		results, err := o.executeSet(ctx, state.Snapshot(), rec, current)
		if err != nil {
			return o.abort(ctx, state, rec, log, err)
		}

		merged, fatal := o.merge(state, rec, results)
		if !merged {
			return o.abort(ctx, state, rec, log,
				core.NewOrchestrationError(core.OrchestrationErrInvalidTopology,
					"superstep %d: concurrent nodes wrote the same state key", step))
		}
		state.StepCount = step
		if fatal != nil {
			return o.abort(ctx, state, rec, log,
				&core.OrchestrationError{Kind: core.OrchestrationErrFatalAgent, Message: "node failed fatally", Err: fatal})
		}

		next, done := o.topo.Router.Next(state.Snapshot(), current)
		if done {
			result := o.finish(state, rec, "completed")
			log.Info("run completed", "steps", state.StepCount)
			o.metrics.RunCompleted("completed")
			return result, nil
		}
		if len(next) == 0 {
			return o.abort(ctx, state, rec, log,
				core.NewOrchestrationError(core.OrchestrationErrMaxSteps,
					"router returned no nodes without terminating"))
		}
		for _, name := range next {
			if _, ok := o.topo.Nodes[name]; !ok {
				return o.abort(ctx, state, rec, log,
					core.NewOrchestrationError(core.OrchestrationErrInvalidTopology,
						"router scheduled unknown node %q", name))
			}
		}
		current = next
	}

	return o.abort(ctx, state, rec, log,
		core.NewOrchestrationError(core.OrchestrationErrMaxSteps,
			"superstep cap %d reached before a terminal node", o.cfg.MaxSteps))
}

// nodeResult pairs a node's delta with its classified error.
type nodeResult struct {
	name  string
	delta *core.Delta
	err   error
	fatal bool
}

// executeSet runs one superstep's node set against a shared snapshot. Nodes
// all marked concurrent run in parallel; any other set runs sequentially in
// name order. The returned error is non-nil only for scheduling failures,
// never for node failures, which are classified per result.
func (o *Orchestrator) executeSet(ctx context.Context, snap core.Snapshot, rec *trace.Recorder, names []string) ([]nodeResult, error) {
	ordered := append([]string(nil), names...)
	sort.Strings(ordered)

	parallel := len(ordered) > 1
	for _, name := range ordered {
		if !o.topo.Nodes[name].Concurrent {
			parallel = false
			break
		}
	}

	results := make([]nodeResult, len(ordered))
	if !parallel {
		for i, name := range ordered {
			results[i] = o.executeNode(ctx, snap, rec, name)
		}
		return results, nil
	}

	var wg sync.WaitGroup
	for i, name := range ordered {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = o.executeNode(ctx, snap, rec, name)
		}(i, name)
	}
	wg.Wait()
	return results, nil
}

func (o *Orchestrator) executeNode(ctx context.Context, snap core.Snapshot, rec *trace.Recorder, name string) nodeResult {
	spec := o.topo.Nodes[name]
	timeout := o.cfg.NodeTimeout
	if spec.Timeout > 0 {
		timeout = spec.Timeout
	}
	nodeCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rec.Record(trace.Entry{Kind: trace.KindNodeEntered, Node: name, Step: snap.StepCount + 1})
	start := time.Now()
	delta, err := spec.Node.Execute(nodeCtx, snap, rec)
	dur := time.Since(start)

	exited := trace.Entry{Kind: trace.KindNodeExited, Node: name, Step: snap.StepCount + 1, Duration: dur}
	if err != nil {
		exited.Err = err.Error()
	}
	rec.Record(exited)
	o.metrics.NodeRun(name, dur)
	o.logger.LogNodeRun(name, snap.StepCount+1, dur, err)

	res := nodeResult{name: name, delta: delta, err: err}
	if err != nil {
		if ae, ok := core.AsAgentError(err); ok {
			res.fatal = ae.Fatal
		}
		if spec.Fatal {
			res.fatal = true
		}
	}
	return res
}

// merge applies the superstep's deltas to the state in node-name order after
// checking that no two deltas claim the same write key. It returns false on
// a write conflict; the fatal return carries the first fatal node error.
func (o *Orchestrator) merge(state *core.State, rec *trace.Recorder, results []nodeResult) (ok bool, fatal error) {
	claimed := map[string]string{}
	for _, res := range results {
		if res.delta == nil {
			continue
		}
		for _, key := range res.delta.WriteKeys() {
			if other, taken := claimed[key]; taken {
				rec.Record(trace.Entry{
					Kind: trace.KindError,
					Node: res.name,
					Err:  fmt.Sprintf("write conflict on %q with node %q", key, other),
				})
				return false, nil
			}
			claimed[key] = res.name
		}
	}

	sorted := append([]nodeResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })
	for _, res := range sorted {
		state.Apply(res.delta)
		if res.err == nil {
			continue
		}
		rec.Record(trace.Entry{Kind: trace.KindError, Node: res.name, Err: res.err.Error()})
		if ae, aok := core.AsAgentError(res.err); aok {
			errRec := ae.Record()
			errRec.Fatal = errRec.Fatal || res.fatal
			if deltaCarries(res.delta, ae) {
				if errRec.Fatal {
					markFatal(state, ae.Agent, string(ae.Kind))
				}
			} else {
				state.Apply(&core.Delta{Errors: []core.ErrorRecord{errRec}})
			}
		} else {
			state.Apply(&core.Delta{Errors: []core.ErrorRecord{{
				Origin: res.name, Kind: "node_failure", Message: res.err.Error(), Fatal: res.fatal,
			}}})
		}
		if res.fatal && fatal == nil {
			fatal = res.err
		}
	}
	return true, fatal
}

// markFatal upgrades the most recent matching error record in place, so an
// escalated failure the node already recorded itself still reads as fatal.
func markFatal(state *core.State, origin, kind string) {
	for i := len(state.Errors) - 1; i >= 0; i-- {
		if state.Errors[i].Origin == origin && state.Errors[i].Kind == kind {
			state.Errors[i].Fatal = true
			return
		}
	}
}

// deltaCarries reports whether the node already recorded its own failure in
// the delta, so the orchestrator does not double-record it.
func deltaCarries(d *core.Delta, ae *core.AgentError) bool {
	if d == nil {
		return false
	}
	for _, rec := range d.Errors {
		if rec.Origin == ae.Agent && rec.Kind == string(ae.Kind) {
			return true
		}
	}
	return false
}

// finish records run completion and assembles the result.
func (o *Orchestrator) finish(state *core.State, rec *trace.Recorder, outcome string) *Result {
	rec.Record(trace.Entry{
		Kind:   trace.KindRunCompleted,
		Step:   state.StepCount,
		Detail: map[string]any{"outcome": outcome},
	})
	snap := state.Snapshot()
	return &Result{Report: snap.Report, State: snap, Trace: rec.Drain()}
}

// abort ends the run on an orchestration error. When the graph has a
// terminal node and no report exists yet, the terminal runs once out of
// band so the caller still gets a partial, degraded report.
func (o *Orchestrator) abort(ctx context.Context, state *core.State, rec *trace.Recorder, log *logging.RunLogger, cause error) (*Result, error) {
	log.Error("run aborted", "error", cause)
	if state.Report == nil && o.topo.Terminal != "" {
		res := o.executeNode(context.WithoutCancel(ctx), state.Snapshot(), rec, o.topo.Terminal)
		if res.delta != nil {
			state.Apply(res.delta)
		}
	}
	o.metrics.RunCompleted("aborted")
	return o.finish(state, rec, "aborted"), cause
}
