package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/sorrymaker9331/finsight/core"
	"github.com/sorrymaker9331/finsight/logging"
	"github.com/sorrymaker9331/finsight/model"
	"github.com/sorrymaker9331/finsight/trace"
)

// StartNode is the workflow entry point. It performs no work; routing fans
// out from it to the analysts.
type StartNode struct{}

// Name implements core.Node.
func (StartNode) Name() string { return AgentStart }

// Execute implements core.Node.
func (StartNode) Execute(ctx context.Context, snap core.Snapshot, rec *trace.Recorder) (*core.Delta, error) {
	return core.NewDelta(), nil
}

// AggregatorConfig configures the terminal report node.
type AggregatorConfig struct {
	// Sections names the agents whose outputs the report consolidates,
	// in report order. Defaults to the four analysts.
	Sections []string

	// Model, when set, writes the synthesis section. A nil model or a failed
	// call falls back to a mechanical synthesis; synthesis never fails a run.
	Model model.Model

	Logger logging.Logger
}

// Aggregator consolidates merged agent outputs into the final report. It
// calls no tools and never returns an error: whatever the preceding steps
// produced becomes report content, with absent sections marked missing and
// the report flagged degraded.
type Aggregator struct {
	cfg AggregatorConfig
}

// NewAggregator builds the terminal node.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if len(cfg.Sections) == 0 {
		cfg.Sections = AnalystNames
	}
	cfg.Logger = logging.Ensure(cfg.Logger)
	return &Aggregator{cfg: cfg}
}

// Name implements core.Node.
func (a *Aggregator) Name() string { return AgentSummarizer }

// sectionView is the shared shape every analyst output decodes into.
type sectionView struct {
	Summary    string  `mapstructure:"summary"`
	Confidence float64 `mapstructure:"confidence"`
}

var sectionTitles = map[string]string{
	AgentNews:            "News & Sentiment",
	AgentMarket:          "Market Technicals",
	AgentFinancialReport: "Financial Statements",
	AgentMacro:           "Macro Backdrop",
}

// Execute implements core.Node. The returned delta always carries a report
// and the returned error is always nil.
func (a *Aggregator) Execute(ctx context.Context, snap core.Snapshot, rec *trace.Recorder) (*core.Delta, error) {
	report := &core.Report{
		RunID:       snap.RunID,
		Query:       snap.Query,
		GeneratedAt: time.Now().UTC(),
	}
	for _, agent := range a.cfg.Sections {
		report.Sections = append(report.Sections, a.section(snap, agent))
	}
	for _, s := range report.Sections {
		if s.Missing {
			report.Degraded = true
			report.Missing = append(report.Missing, s.Agent)
		}
	}
	report.Synthesis = a.synthesize(ctx, rec, report)

	delta := core.NewDelta()
	delta.Report = report
	return delta, nil
}

func (a *Aggregator) section(snap core.Snapshot, agent string) core.Section {
	title := sectionTitles[agent]
	if title == "" {
		title = agent
	}
	out, ok := snap.Output(agent)
	if !ok {
		return core.Section{
			Agent:   agent,
			Title:   title,
			Missing: true,
			Reason:  missingReason(snap, agent),
		}
	}
	var view sectionView
	if err := mapstructure.Decode(out.Fields, &view); err != nil {
		a.cfg.Logger.Warn("section decode failed", "agent", agent, "error", err)
	}
	return core.Section{
		Agent:      agent,
		Title:      title,
		Summary:    view.Summary,
		Confidence: view.Confidence,
		Fields:     out.Fields,
	}
}

// missingReason picks the last recorded error for the agent, if any.
func missingReason(snap core.Snapshot, agent string) string {
	reason := "agent produced no output"
	for _, e := range snap.Errors {
		if e.Origin == agent {
			reason = e.Message
		}
	}
	return reason
}

func (a *Aggregator) synthesize(ctx context.Context, rec *trace.Recorder, report *core.Report) string {
	if a.cfg.Model != nil {
		if text, err := a.modelSynthesis(ctx, rec, report); err == nil {
			return text
		} else {
			a.cfg.Logger.Warn("synthesis model call failed, using fallback", "error", err)
		}
	}
	return mechanicalSynthesis(report)
}

const synthesisInstructions = `You are the lead analyst consolidating a team's
findings into an investment summary. Weigh the sections against each other,
note where they disagree, and state the overall picture in a few paragraphs.
If sections are marked missing, say which views the report lacks. Reply with
plain prose, no JSON.`

func (a *Aggregator) modelSynthesis(ctx context.Context, rec *trace.Recorder, report *core.Report) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\n", report.Query)
	for _, s := range report.Sections {
		if s.Missing {
			fmt.Fprintf(&b, "## %s\nMISSING: %s\n\n", s.Title, s.Reason)
			continue
		}
		fmt.Fprintf(&b, "## %s (confidence %.2f)\n%s\n\n", s.Title, s.Confidence, s.Summary)
	}

	start := time.Now()
	resp, err := a.cfg.Model.Generate(ctx, model.Request{
		Instructions: synthesisInstructions,
		Messages:     []model.Message{{Role: model.RoleUser, Text: b.String()}},
	})
	entry := trace.Entry{
		Kind:     trace.KindModelCall,
		Node:     AgentSummarizer,
		Duration: time.Since(start),
	}
	if err != nil {
		entry.Err = err.Error()
	}
	rec.Record(entry)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Message.Text)
	if text == "" {
		return "", fmt.Errorf("synthesis: empty model response")
	}
	return text, nil
}

// mechanicalSynthesis concatenates the available section summaries. Used when
// no synthesis model is configured or its call fails.
func mechanicalSynthesis(report *core.Report) string {
	var parts []string
	for _, s := range report.Sections {
		if s.Missing || s.Summary == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", s.Title, s.Summary))
	}
	if len(parts) == 0 {
		return "No analyst produced findings for this query."
	}
	return strings.Join(parts, "\n\n")
}
