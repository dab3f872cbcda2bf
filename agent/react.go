package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sorrymaker9331/finsight/core"
	"github.com/sorrymaker9331/finsight/internal/schema"
	"github.com/sorrymaker9331/finsight/logging"
	"github.com/sorrymaker9331/finsight/model"
	"github.com/sorrymaker9331/finsight/observability"
	"github.com/sorrymaker9331/finsight/tool"
	"github.com/sorrymaker9331/finsight/trace"
)

// ReActConfig configures one reasoning-loop node.
type ReActConfig struct {
	// Name is the agent identifier; it is also the state key the node writes.
	Name string

	// Model drives the think step.
	Model model.Model

	// Tools is the tool server client; nil disables the act step.
	Tools tool.Client

	// Instructions is the system prompt handed to the model verbatim.
	Instructions string

	// OutputType is a struct value whose derived JSON schema the final output
	// must satisfy. Required.
	OutputType any

	// MaxIterations bounds the think/act/observe loop. Defaults to 8.
	MaxIterations int

	// ToolTimeout is the per-call deadline. Defaults to 30s.
	ToolTimeout time.Duration

	// ToolConcurrency bounds parallel tool calls within one iteration.
	// Defaults to 4.
	ToolConcurrency int

	// Retry overrides the default tool retry policy.
	Retry tool.RetryPolicy

	// FatalOnToolUnavailable marks tool discovery failure as fatal, aborting
	// the whole run (e.g. an agent that cannot function at all without its
	// data source).
	FatalOnToolUnavailable bool

	Logger  logging.Logger
	Metrics *observability.Metrics

	// sleep overrides backoff sleeping in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// ReActNode executes a bounded think/act/observe/decide loop. Each Execute
// call reasons from the snapshot plus a local observation buffer; nothing is
// shared between invocations so a node is safe to run concurrently with its
// siblings.
type ReActNode struct {
	cfg       ReActConfig
	outSchema map[string]any
}

// NewReActNode builds a node, deriving the output schema from cfg.OutputType.
func NewReActNode(cfg ReActConfig) (*ReActNode, error) {
	if cfg.Name == "" {
		return nil, errors.New("react node: name is required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("react node %s: model is required", cfg.Name)
	}
	if cfg.OutputType == nil {
		return nil, fmt.Errorf("react node %s: output type is required", cfg.Name)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 8
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 30 * time.Second
	}
	if cfg.ToolConcurrency <= 0 {
		cfg.ToolConcurrency = 4
	}
	if cfg.Retry == (tool.RetryPolicy{}) {
		cfg.Retry = tool.DefaultRetryPolicy()
	}
	cfg.Logger = logging.Ensure(cfg.Logger)

	outSchema, err := schema.Derive(cfg.OutputType)
	if err != nil {
		return nil, fmt.Errorf("react node %s: derive output schema: %w", cfg.Name, err)
	}
	return &ReActNode{cfg: cfg, outSchema: outSchema}, nil
}

// Name implements core.Node.
func (n *ReActNode) Name() string { return n.cfg.Name }

// OutputSchema returns the derived schema of the node's final output.
func (n *ReActNode) OutputSchema() map[string]any { return n.outSchema }

// Execute implements core.Node. On failure it returns the partial delta
// accumulated so far (observations and errors, never an output key) together
// with an *core.AgentError for the orchestrator to classify.
func (n *ReActNode) Execute(ctx context.Context, snap core.Snapshot, rec *trace.Recorder) (*core.Delta, error) {
	delta := core.NewDelta()

	invOpts := []tool.InvokerOption{
		tool.WithRetryPolicy(n.cfg.Retry),
		tool.WithLogger(n.cfg.Logger),
		tool.WithMetrics(n.cfg.Metrics),
	}
	if n.cfg.sleep != nil {
		invOpts = append(invOpts, tool.WithSleep(n.cfg.sleep))
	}

	var invoker *tool.Invoker
	var toolDefs []model.ToolDefinition
	if n.cfg.Tools != nil {
		invoker = tool.NewInvoker(n.cfg.Tools, n.cfg.Name, n.cfg.ToolTimeout, rec, invOpts...)
		descriptors, err := invoker.DiscoverTools(ctx)
		if err != nil {
			ae := core.NewAgentError(n.cfg.Name, core.AgentErrToolUnavailable, err)
			ae.Fatal = n.cfg.FatalOnToolUnavailable
			return delta, ae
		}
		toolDefs = make([]model.ToolDefinition, len(descriptors))
		for i, d := range descriptors {
			toolDefs[i] = model.ToolDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.InputSchema,
			}
		}
	}

	messages := []model.Message{{Role: model.RoleUser, Text: n.taskPrompt(snap)}}

	for iter := 1; iter <= n.cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return delta, core.NewAgentError(n.cfg.Name, core.AgentErrReasoningLimit, err)
		}

		resp, err := n.generate(ctx, rec, messages, toolDefs)
		if err != nil {
			return delta, core.NewAgentError(n.cfg.Name, core.AgentErrToolUnavailable,
				fmt.Errorf("model generation: %w", err))
		}

		if !resp.HasCalls() {
			out, err := n.finalize(resp.Message.Text)
			if err != nil {
				delta.AddError(core.ErrorRecord{
					Origin: n.cfg.Name, Kind: string(core.AgentErrInvalidOutput), Message: err.Error(),
				})
				return delta, core.NewAgentError(n.cfg.Name, core.AgentErrInvalidOutput, err)
			}
			delta.SetOutput(n.cfg.Name, out)
			return delta, nil
		}

		results := n.act(ctx, invoker, delta, resp.Message.Calls)
		messages = append(messages,
			model.Message{Role: model.RoleAssistant, Text: resp.Message.Text, Calls: resp.Message.Calls},
			model.Message{Role: model.RoleTool, Results: results},
		)
	}

	err := fmt.Errorf("no final output after %d iterations", n.cfg.MaxIterations)
	delta.AddError(core.ErrorRecord{
		Origin: n.cfg.Name, Kind: string(core.AgentErrReasoningLimit), Message: err.Error(),
	})
	return delta, core.NewAgentError(n.cfg.Name, core.AgentErrReasoningLimit, err)
}

// generate performs one think step, recording its latency on the tracer.
func (n *ReActNode) generate(ctx context.Context, rec *trace.Recorder, messages []model.Message, toolDefs []model.ToolDefinition) (*model.Response, error) {
	start := time.Now()
	resp, err := n.cfg.Model.Generate(ctx, model.Request{
		Instructions: n.instructions(),
		Messages:     messages,
		Tools:        toolDefs,
	})
	entry := trace.Entry{
		Kind:     trace.KindModelCall,
		Node:     n.cfg.Name,
		Duration: time.Since(start),
	}
	if err != nil {
		entry.Err = err.Error()
	}
	rec.Record(entry)
	return resp, err
}

// act executes the requested tool calls, concurrently up to ToolConcurrency,
// appending observations to the delta and returning results for the model.
// Tool failures surface to the model as error results and to the state as
// non-fatal error records; the loop continues so the model can route around
// a failing data source.
func (n *ReActNode) act(ctx context.Context, invoker *tool.Invoker, delta *core.Delta, calls []model.FunctionCall) []model.FunctionResult {
	results := make([]model.FunctionResult, len(calls))
	observations := make([]core.ToolObservation, len(calls))
	errRecords := make([]*core.ErrorRecord, len(calls))

	sem := make(chan struct{}, n.cfg.ToolConcurrency)
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call model.FunctionCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			r := n.invokeOne(ctx, invoker, call)
			results[i] = r.res
			observations[i] = r.obs
			errRecords[i] = r.rec
		}(i, call)
	}
	wg.Wait()

	for i := range calls {
		delta.AddObservation(observations[i])
		if errRecords[i] != nil {
			delta.AddError(*errRecords[i])
		}
	}
	return results
}

type oneResult struct {
	obs core.ToolObservation
	res model.FunctionResult
	rec *core.ErrorRecord
}

func (n *ReActNode) invokeOne(ctx context.Context, invoker *tool.Invoker, call model.FunctionCall) oneResult {
	obs := core.ToolObservation{
		Agent:     n.cfg.Name,
		Tool:      call.Name,
		Timestamp: time.Now().UTC(),
	}
	res := model.FunctionResult{ID: call.ID, Name: call.Name}

	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			msg := fmt.Sprintf("invalid tool arguments: %v", err)
			obs.Err = msg
			res.Err = msg
			return oneResult{obs: obs, res: res}
		}
	}
	obs.Arguments = args

	if invoker == nil {
		msg := "no tool server configured"
		obs.Err = msg
		res.Err = msg
		return oneResult{obs: obs, res: res}
	}

	result, err := invoker.Call(ctx, call.Name, args)
	if err != nil {
		obs.Err = err.Error()
		res.Err = err.Error()
		kind := string(tool.ErrRemoteFailure)
		if te, ok := tool.AsError(err); ok {
			kind = string(te.Kind)
		}
		return oneResult{obs: obs, res: res, rec: &core.ErrorRecord{
			Origin: n.cfg.Name, Kind: "tool:" + kind, Message: err.Error(),
		}}
	}
	obs.Result = result.Content
	res.Content = result.Content
	return oneResult{obs: obs, res: res}
}

// finalize parses and validates the model's final text into an AgentOutput.
func (n *ReActNode) finalize(text string) (core.AgentOutput, error) {
	fields, err := ParseStructured(text)
	if err != nil {
		return core.AgentOutput{}, err
	}
	if err := schema.Validate(n.outSchema, fields); err != nil {
		return core.AgentOutput{}, err
	}
	out := core.AgentOutput{Fields: fields}
	if c, ok := fields["confidence"].(float64); ok {
		out.Confidence = c
	}
	if r, ok := fields["needs_retry"].(bool); ok {
		out.NeedsRetry = r
	}
	return out, nil
}

func (n *ReActNode) instructions() string {
	return n.cfg.Instructions + "\n\n" +
		"When your analysis is complete, reply with a single JSON object and no other text. " +
		"The object must match this schema:\n" + mustJSON(n.outSchema)
}

// taskPrompt renders the user task from the snapshot: the query, derived
// metadata and any prior output of this agent (present on a retry pass).
func (n *ReActNode) taskPrompt(snap core.Snapshot) string {
	prompt := snap.Query
	for _, kv := range sortedMetaPairs(snap.Metadata) {
		prompt += fmt.Sprintf("\n%s: %s", kv[0], kv[1])
	}
	if prev, ok := snap.Output(n.cfg.Name); ok && prev.NeedsRetry {
		prompt += "\n\nYour previous analysis was marked for re-analysis. Previous findings:\n" + mustJSON(prev.Fields)
	}
	return prompt
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
