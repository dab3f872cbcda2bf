// Package finsight provides a high-level façade over the workflow engine
// and the financial-analysis agents. Most applications interact with this
// package by:
//  1. Creating a Workflow via New() with a model and a tool client
//  2. Calling Analyze() with a free-text query
//  3. Rendering the returned report as JSON or markdown
//
// The façade wires the standard topology (start node, four parallel
// analysts, summarizer) and delegates execution to engine.Orchestrator.
// Callers needing a custom graph use the engine package directly.
package finsight

import (
	"context"
	"time"

	"github.com/sorrymaker9331/finsight/agent"
	"github.com/sorrymaker9331/finsight/core"
	"github.com/sorrymaker9331/finsight/engine"
	"github.com/sorrymaker9331/finsight/logging"
	"github.com/sorrymaker9331/finsight/model"
	"github.com/sorrymaker9331/finsight/observability"
	"github.com/sorrymaker9331/finsight/tool"
)

// Options configures the standard workflow.
type Options struct {
	// MaxSteps caps the number of supersteps per run.
	MaxSteps int

	// MaxIterations bounds each analyst's reasoning loop.
	MaxIterations int

	// ToolTimeout is the per-tool-call deadline.
	ToolTimeout time.Duration

	// NodeTimeout is the per-node execution deadline.
	NodeTimeout time.Duration

	// Retry overrides the default tool retry policy.
	Retry tool.RetryPolicy

	// SynthesisModel overrides the analysis model for the summarizer's
	// synthesis step. Nil reuses the analysis model.
	SynthesisModel model.Model

	// Logger defaults to a silent logger.
	Logger *logging.RunLogger

	// Metrics is optional.
	Metrics *observability.Metrics
}

// Workflow is the assembled analysis pipeline.
type Workflow struct {
	orch *engine.Orchestrator
}

// New assembles the standard topology around a model and a tool client.
func New(m model.Model, tools tool.Client, optFns ...func(o *Options)) (*Workflow, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	analysts, err := agent.NewAnalysts(agent.AnalystParams{
		Model:         m,
		Tools:         tools,
		MaxIterations: opts.MaxIterations,
		ToolTimeout:   opts.ToolTimeout,
		Retry:         opts.Retry,
		Logger:        opts.Logger.WithComponent("agent"),
		Metrics:       opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	synthModel := opts.SynthesisModel
	if synthModel == nil {
		synthModel = m
	}
	summarizer := agent.NewAggregator(agent.AggregatorConfig{
		Model:  synthModel,
		Logger: opts.Logger.WithComponent("agent"),
	})

	nodes := map[string]engine.NodeSpec{
		agent.AgentStart:      {Node: agent.StartNode{}},
		agent.AgentSummarizer: {Node: summarizer},
	}
	for _, a := range analysts {
		nodes[a.Name()] = engine.NodeSpec{
			Node:       a,
			Concurrent: true,
			Writes:     []string{a.Name()},
		}
	}

	topo := engine.Topology{
		Entry:    agent.AgentStart,
		Terminal: agent.AgentSummarizer,
		Nodes:    nodes,
		Router: engine.StandardRouter{
			Entry:      agent.AgentStart,
			Analysts:   agent.AnalystNames,
			Summarizer: agent.AgentSummarizer,
		},
	}

	orch, err := engine.New(topo,
		engine.Config{MaxSteps: opts.MaxSteps, NodeTimeout: opts.NodeTimeout},
		engine.WithLogger(opts.Logger),
		engine.WithMetrics(opts.Metrics),
		engine.WithQueryMetadata(agent.QueryMetadata),
	)
	if err != nil {
		return nil, err
	}
	return &Workflow{orch: orch}, nil
}

// Analyze runs the pipeline for a query. The result carries the report and
// the execution trace even when an orchestration error aborted the run.
func (w *Workflow) Analyze(ctx context.Context, query string) (*engine.Result, error) {
	return w.orch.Run(ctx, query)
}

// Report is a convenience wrapper returning just the report.
func (w *Workflow) Report(ctx context.Context, query string) (*core.Report, error) {
	res, err := w.Analyze(ctx, query)
	if err != nil {
		return res.Report, err
	}
	return res.Report, nil
}
