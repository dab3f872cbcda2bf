package tool

import (
	"context"
	"time"

	"github.com/sorrymaker9331/finsight/logging"
	"github.com/sorrymaker9331/finsight/observability"
	"github.com/sorrymaker9331/finsight/trace"
)

// RetryPolicy bounds the retry behavior of an Invoker. Backoff is strictly
// increasing: base doubled per retry, capped at Max.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// Base is the delay before the first retry.
	Base time.Duration
	// Max caps the delay between attempts.
	Max time.Duration
}

// DefaultRetryPolicy matches the protocol defaults: two retries with
// exponential backoff starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, Base: 500 * time.Millisecond, Max: 5 * time.Second}
}

// Backoff returns the delay before the given retry (1-based).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	d := p.Base
	for i := 1; i < retry; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Invoker wraps a Client with the per-agent retry policy, per-call timeout
// and trace recording. One Invoker is created per node execution; it carries
// no mutable state and is safe for the node's concurrent tool calls.
type Invoker struct {
	client  Client
	policy  RetryPolicy
	agent   string
	timeout time.Duration
	rec     *trace.Recorder
	logger  logging.Logger
	metrics *observability.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// InvokerOption customizes an Invoker.
type InvokerOption func(*Invoker)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) InvokerOption {
	return func(i *Invoker) { i.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) InvokerOption {
	return func(i *Invoker) { i.logger = l }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m *observability.Metrics) InvokerOption {
	return func(i *Invoker) { i.metrics = m }
}

// WithSleep replaces the backoff sleep, letting tests run without delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) InvokerOption {
	return func(i *Invoker) { i.sleep = fn }
}

// NewInvoker builds an Invoker for one agent's node execution. timeout is the
// per-call deadline; zero means the caller's context governs alone.
func NewInvoker(client Client, agent string, timeout time.Duration, rec *trace.Recorder, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		client:  client,
		policy:  DefaultRetryPolicy(),
		agent:   agent,
		timeout: timeout,
		rec:     rec,
		logger:  logging.NoOpLogger{},
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DiscoverTools forwards to the client.
func (inv *Invoker) DiscoverTools(ctx context.Context) ([]Descriptor, error) {
	return inv.client.DiscoverTools(ctx)
}

// Call invokes a tool, retrying transient failures per the policy. Every
// attempt, including retries, is recorded to the tracer with its attempt
// number and outcome; retry scheduling is recorded separately with the
// backoff applied.
func (inv *Invoker) Call(ctx context.Context, name string, args map[string]any) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= inv.policy.MaxRetries+1; attempt++ {
		res, err := inv.attempt(ctx, name, args, attempt)
		if err == nil {
			return res, nil
		}
		lastErr = err

		te, ok := AsError(err)
		if !ok || !te.Retryable() || attempt > inv.policy.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			break
		}
		backoff := inv.policy.Backoff(attempt)
		inv.rec.Record(trace.Entry{
			Kind:    trace.KindToolRetry,
			Node:    inv.agent,
			Tool:    name,
			Attempt: attempt,
			Detail:  map[string]any{"backoff": backoff.String()},
		})
		if inv.metrics != nil {
			inv.metrics.ToolRetry(name)
		}
		if err := inv.sleep(ctx, backoff); err != nil {
			break
		}
	}
	return Result{}, lastErr
}

func (inv *Invoker) attempt(ctx context.Context, name string, args map[string]any, attempt int) (Result, error) {
	callCtx := ctx
	if inv.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := inv.client.Call(callCtx, name, args)
	elapsed := time.Since(start)

	entry := trace.Entry{
		Kind:     trace.KindToolCall,
		Node:     inv.agent,
		Tool:     name,
		Attempt:  attempt,
		Duration: elapsed,
	}
	outcome := "ok"
	if err != nil {
		entry.Err = err.Error()
		outcome = "error"
		if te, ok := AsError(err); ok {
			outcome = string(te.Kind)
		}
	}
	inv.rec.Record(entry)
	inv.logger.Debug("tool call attempt", "tool", name, "attempt", attempt, "outcome", outcome, "duration", elapsed)
	if inv.metrics != nil {
		inv.metrics.ToolCall(name, outcome, elapsed)
	}
	return res, err
}
