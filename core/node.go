package core

import (
	"context"

	"github.com/sorrymaker9331/finsight/trace"
)

// Node is the execution contract every graph node implements.
//
// Execute receives an immutable snapshot and returns an isolated delta; it
// must not retain or mutate shared state. Implementations record their own
// tool and reasoning events on the provided recorder. A returned error should
// be an *AgentError so the orchestrator can classify it; any other error is
// wrapped as a non-fatal agent failure.
type Node interface {
	Name() string
	Execute(ctx context.Context, snap Snapshot, rec *trace.Recorder) (*Delta, error)
}
