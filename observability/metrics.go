// Package observability exposes Prometheus metrics for workflow runs: tool
// call attempts and retries, node execution durations and superstep counts.
// Metrics are registered on a caller-provided registry so tests can use
// isolated registries.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors of one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	toolCalls     *prometheus.CounterVec
	toolRetries   *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	nodeDuration  *prometheus.HistogramVec
	supersteps    prometheus.Counter
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	runsCompleted *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsight_tool_calls_total",
				Help: "Total tool call attempts, including retries",
			},
			[]string{"tool", "outcome"},
		),
		toolRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsight_tool_retries_total",
				Help: "Total tool call retries scheduled",
			},
			[]string{"tool"},
		),
		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "finsight_tool_call_duration_seconds",
				Help: "Duration of individual tool call attempts",
			},
			[]string{"tool"},
		),
		nodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "finsight_node_duration_seconds",
				Help: "Duration of node executions",
			},
			[]string{"node"},
		),
		supersteps: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "finsight_supersteps_total",
				Help: "Total orchestrator supersteps executed",
			},
		),
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "finsight_tool_cache_hits_total",
				Help: "Total tool result cache hits",
			},
		),
		cacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "finsight_tool_cache_misses_total",
				Help: "Total tool result cache misses",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsight_runs_total",
				Help: "Total completed runs by outcome",
			},
			[]string{"outcome"},
		),
	}
	reg.MustRegister(
		m.toolCalls, m.toolRetries, m.toolDuration, m.nodeDuration,
		m.supersteps, m.cacheHits, m.cacheMisses, m.runsCompleted,
	)
	return m
}

// ToolCall records one tool call attempt.
func (m *Metrics) ToolCall(tool, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(dur.Seconds())
}

// ToolRetry records one scheduled retry.
func (m *Metrics) ToolRetry(tool string) {
	if m == nil {
		return
	}
	m.toolRetries.WithLabelValues(tool).Inc()
}

// NodeRun records one node execution.
func (m *Metrics) NodeRun(node string, dur time.Duration) {
	if m == nil {
		return
	}
	m.nodeDuration.WithLabelValues(node).Observe(dur.Seconds())
}

// Superstep records one orchestrator superstep.
func (m *Metrics) Superstep() {
	if m == nil {
		return
	}
	m.supersteps.Inc()
}

// CacheHit records a tool result cache hit.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// CacheMiss records a tool result cache miss.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// RunCompleted records the outcome of a run (report, degraded, aborted).
func (m *Metrics) RunCompleted(outcome string) {
	if m == nil {
		return
	}
	m.runsCompleted.WithLabelValues(outcome).Inc()
}
