package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Section is one agent's contribution to the final report. Missing marks a
// section whose agent never produced a merged output; a missing section is
// valid report content, not an error.
type Section struct {
	Agent      string         `json:"agent"`
	Title      string         `json:"title"`
	Summary    string         `json:"summary,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	Missing    bool           `json:"missing,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// Report is the consolidated output of a run. Always present on a completed
// run, even when degraded; Degraded is set when any configured agent's
// section is missing.
type Report struct {
	RunID       string    `json:"run_id"`
	Query       string    `json:"query"`
	GeneratedAt time.Time `json:"generated_at"`
	Sections    []Section `json:"sections"`
	Synthesis   string    `json:"synthesis,omitempty"`
	Degraded    bool      `json:"degraded,omitempty"`
	Missing     []string  `json:"missing_sections,omitempty"`
}

// Clone returns a copy with independent section and missing slices.
func (r Report) Clone() Report {
	c := r
	c.Sections = make([]Section, len(r.Sections))
	copy(c.Sections, r.Sections)
	c.Missing = make([]string, len(r.Missing))
	copy(c.Missing, r.Missing)
	return c
}

// Section returns the section for an agent, if present.
func (r Report) Section(agent string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Agent == agent {
			return s, true
		}
	}
	return Section{}, false
}

// JSON renders the report as indented JSON.
func (r Report) JSON() (string, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	return string(b), nil
}

// Markdown renders the report as a markdown document with one heading per
// section, sorted report-order first then agent name for determinism.
func (r Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Analysis Report\n\n**Query:** %s\n\n", r.Query)
	if r.Degraded {
		fmt.Fprintf(&b, "> Degraded report: missing sections %s\n\n", strings.Join(r.Missing, ", "))
	}
	sections := make([]Section, len(r.Sections))
	copy(sections, r.Sections)
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Agent < sections[j].Agent })
	for _, s := range sections {
		fmt.Fprintf(&b, "## %s\n\n", s.Title)
		if s.Missing {
			reason := s.Reason
			if reason == "" {
				reason = "no output produced"
			}
			fmt.Fprintf(&b, "_Section missing: %s_\n\n", reason)
			continue
		}
		if s.Summary != "" {
			fmt.Fprintf(&b, "%s\n\n", s.Summary)
		}
		if s.Confidence > 0 {
			fmt.Fprintf(&b, "Confidence: %.2f\n\n", s.Confidence)
		}
	}
	if r.Synthesis != "" {
		fmt.Fprintf(&b, "## Synthesis\n\n%s\n", r.Synthesis)
	}
	return b.String()
}
