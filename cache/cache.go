// Package cache provides a read-through Redis cache in front of a tool
// client. Financial data tools are dominated by repeated lookups (the same
// statement or quote series requested by several agents in one run), so
// caching sits at the tool boundary, keyed by tool name and arguments.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sorrymaker9331/finsight/logging"
	"github.com/sorrymaker9331/finsight/observability"
	"github.com/sorrymaker9331/finsight/tool"
)

// Config configures the caching layer.
type Config struct {
	// Addr is the Redis address, host:port.
	Addr string

	// Password is optional.
	Password string

	// DB selects the Redis database.
	DB int

	// TTL bounds entry freshness. Defaults to 15 minutes.
	TTL time.Duration

	// Prefix namespaces the keys. Defaults to "finsight:tool".
	Prefix string
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the cache logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics attaches hit/miss counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client wraps a tool client with a Redis read-through cache. Cache failures
// degrade to pass-through calls; a broken cache never fails a tool call.
type Client struct {
	next    tool.Client
	rdb     redis.UniversalClient
	ttl     time.Duration
	prefix  string
	logger  logging.Logger
	metrics *observability.Metrics
}

// New builds a caching client around next.
func New(next tool.Client, cfg Config, opts ...Option) *Client {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "finsight:tool"
	}
	c := &Client{
		next: next,
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		ttl:    cfg.TTL,
		prefix: cfg.Prefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.Ensure(c.logger)
	return c
}

// NewFromClient builds a caching client around an existing Redis client.
// Used by tests with a miniredis-backed client.
func NewFromClient(next tool.Client, rdb redis.UniversalClient, ttl time.Duration, opts ...Option) *Client {
	c := &Client{next: next, rdb: rdb, ttl: ttl, prefix: "finsight:tool"}
	if c.ttl <= 0 {
		c.ttl = 15 * time.Minute
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.Ensure(c.logger)
	return c
}

// DiscoverTools delegates to the wrapped client. Tool lists are small and
// session-scoped, so they are not cached.
func (c *Client) DiscoverTools(ctx context.Context) ([]tool.Descriptor, error) {
	return c.next.DiscoverTools(ctx)
}

// Call returns the cached result for (name, args) when fresh, otherwise
// calls through and stores the result. Tool errors are never cached.
func (c *Client) Call(ctx context.Context, name string, args map[string]any) (tool.Result, error) {
	key := c.key(name, args)
	if cached, err := c.rdb.Get(ctx, key).Result(); err == nil {
		c.metrics.CacheHit()
		c.logger.Debug("tool cache hit", "tool", name)
		return tool.Result{Content: cached}, nil
	} else if err != redis.Nil {
		c.logger.Warn("tool cache read failed", "tool", name, "error", err)
	}
	c.metrics.CacheMiss()

	res, err := c.next.Call(ctx, name, args)
	if err != nil {
		return tool.Result{}, err
	}
	if setErr := c.rdb.Set(ctx, key, res.Content, c.ttl).Err(); setErr != nil {
		c.logger.Warn("tool cache write failed", "tool", name, "error", setErr)
	}
	return res, nil
}

// Close closes the Redis connection and the wrapped client.
func (c *Client) Close() error {
	rerr := c.rdb.Close()
	nerr := c.next.Close()
	if nerr != nil {
		return nerr
	}
	return rerr
}

// key hashes the tool name and canonicalized arguments. Map iteration order
// must not leak into the key, so arguments are serialized in sorted key
// order.
func (c *Client) key(name string, args map[string]any) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b, _ := json.Marshal(args[k])
		fmt.Fprintf(h, "%s=%s;", k, b)
	}
	return c.prefix + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}
