// Package logging provides a small abstraction over slog so the rest of the
// module depends on a minimal Logger interface while callers can plug any
// structured logger. A richer RunLogger adds run/component context and domain
// helpers for tool calls and node executions.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger is the minimal logging interface used throughout the module.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement Logger.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NoOpLogger discards all log messages. Useful for tests.
type NoOpLogger struct{}

// Debug discards the message.
func (NoOpLogger) Debug(string, ...any) {}

// Info discards the message.
func (NoOpLogger) Info(string, ...any) {}

// Warn discards the message.
func (NoOpLogger) Warn(string, ...any) {}

// Error discards the message.
func (NoOpLogger) Error(string, ...any) {}

// Config configures construction of a RunLogger.
type Config struct {
	Level     slog.Level
	Format    string // json or text
	Output    io.Writer
	AddSource bool
}

// DefaultConfig returns a text handler at info level writing to stderr.
// Stderr keeps log output away from the report on stdout.
func DefaultConfig() *Config {
	return &Config{Level: slog.LevelInfo, Format: "text", Output: os.Stderr}
}

// RunLogger wraps slog.Logger with contextual cloning helpers and domain
// convenience methods. Cheap to copy via the With* methods.
type RunLogger struct {
	logger    *slog.Logger
	component string
	runID     string
}

// New builds a RunLogger from a config (or defaults if nil).
func New(cfg *Config) *RunLogger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}
	return &RunLogger{logger: slog.New(handler)}
}

// Nop returns a RunLogger that discards everything. Useful for tests and as
// the default when no logger is wired.
func Nop() *RunLogger {
	return New(&Config{Level: slog.LevelError + 4, Output: io.Discard})
}

// WithComponent returns a copy bound to a logical component (engine, agent,
// tool, cache).
func (l *RunLogger) WithComponent(c string) *RunLogger {
	nl := *l
	nl.component = c
	return &nl
}

// WithRun returns a copy bound to a run identifier.
func (l *RunLogger) WithRun(runID string) *RunLogger {
	nl := *l
	nl.runID = runID
	return &nl
}

func (l *RunLogger) attrs(extra []any) []any {
	out := make([]any, 0, len(extra)+4)
	if l.component != "" {
		out = append(out, slog.String("component", l.component))
	}
	if l.runID != "" {
		out = append(out, slog.String("run_id", l.runID))
	}
	return append(out, extra...)
}

// Debug logs at debug level.
func (l *RunLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, l.attrs(args)...)
}

// Info logs at info level.
func (l *RunLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.attrs(args)...)
}

// Warn logs at warn level.
func (l *RunLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, l.attrs(args)...)
}

// Error logs at error level.
func (l *RunLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, l.attrs(args)...)
}

// LogToolCall records one tool invocation attempt with its latency.
func (l *RunLogger) LogToolCall(tool string, attempt int, dur time.Duration, err error) {
	args := []any{
		slog.String("tool", tool),
		slog.Int("attempt", attempt),
		slog.Duration("duration", dur),
	}
	if err != nil {
		l.logger.LogAttrs(context.Background(), slog.LevelWarn, "tool call failed",
			toAttrs(l.attrs(append(args, slog.String("error", err.Error()))))...)
		return
	}
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, "tool call completed", toAttrs(l.attrs(args))...)
}

// LogNodeRun records the completion of one node execution.
func (l *RunLogger) LogNodeRun(node string, step int, dur time.Duration, err error) {
	args := []any{
		slog.String("node", node),
		slog.Int("step", step),
		slog.Duration("duration", dur),
	}
	if err != nil {
		l.logger.LogAttrs(context.Background(), slog.LevelWarn, "node execution failed",
			toAttrs(l.attrs(append(args, slog.String("error", err.Error()))))...)
		return
	}
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, "node execution completed", toAttrs(l.attrs(args))...)
}

func toAttrs(args []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(args))
	for _, a := range args {
		if attr, ok := a.(slog.Attr); ok {
			attrs = append(attrs, attr)
		}
	}
	return attrs
}

// Ensure ensures a non-nil Logger, substituting NoOpLogger for nil.
func Ensure(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}
