package query

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// handle is the client's type-erased view of a Query[T].
type handle interface {
	meta() Meta
	refetch(ctx context.Context, force bool) error
	cacheTime() time.Duration
	refetchOnFocus() bool
	refetchOnReconnect() bool
	dispose()
}

// Client owns the cache-key → query mapping and the process-wide refetch
// triggers. It guarantees exactly one Query per canonical key: the first
// caller's fetcher and options win, later callers get the existing
// instance back untouched.
type Client struct {
	id string

	mu      sync.Mutex
	queries map[string]handle
	closed  bool

	logger *slog.Logger
	instr  fanout

	sweepDone chan struct{}
	sweepOnce sync.Once
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithInstrumentation registers lifecycle hooks (metrics, tracing,
// devtools). May be given multiple times; hooks fire in registration
// order.
func WithInstrumentation(instr ...Instrumentation) ClientOption {
	return func(c *Client) {
		c.instr = append(c.instr, instr...)
	}
}

// NewClient creates a query client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		id:        uuid.NewString(),
		queries:   make(map[string]handle),
		sweepDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// ID returns the client's unique identity, used to label devtools events.
func (c *Client) ID() string {
	return c.id
}

// New returns the query for key, creating it with fetcher and opts on
// first use. Subsequent calls with the same key return the existing
// instance — identity-equal — ignoring the new fetcher and options.
//
// New panics with ErrKeyType when the existing query for key holds a
// different value type, and with ErrClosed on a closed client; both are
// programmer errors.
func New[T any](c *Client, key any, fetcher Fetcher[T], opts ...Options[T]) *Query[T] {
	k := Canonicalize(key)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		panic(ErrClosed)
	}

	if existing, ok := c.queries[k.Canonical]; ok {
		c.mu.Unlock()
		q, ok := existing.(*Query[T])
		if !ok {
			panic(ErrKeyType)
		}
		return q
	}

	var o Options[T]
	if len(opts) > 0 {
		o = opts[0]
	}

	q := newQuery(c, k, key, fetcher, o)
	c.queries[k.Canonical] = q
	c.mu.Unlock()

	c.instr.QueryRegistered(q.metaSnapshot())
	c.logger.Debug("query: registered", "key", k.Canonical)
	return q
}

// Lookup returns the existing query for key, if any.
func Lookup[T any](c *Client, key any) (*Query[T], bool) {
	k := Canonicalize(key)

	c.mu.Lock()
	existing, ok := c.queries[k.Canonical]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}

	q, ok := existing.(*Query[T])
	return q, ok
}

// Snapshot returns metadata for every cached query.
func (c *Client) Snapshot() []Meta {
	handles := c.handles()
	metas := make([]Meta, 0, len(handles))
	for _, h := range handles {
		metas = append(metas, h.meta())
	}
	return metas
}

// Invalidate force-refetches the query whose canonical key equals key.
// Queries with other keys are untouched. Returns the refetch error, nil
// when no query matches.
func (c *Client) Invalidate(ctx context.Context, key any) error {
	k := Canonicalize(key)

	c.mu.Lock()
	h, ok := c.queries[k.Canonical]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	c.instr.Invalidated(h.meta())
	return h.refetch(ctx, true)
}

// InvalidateMatches force-refetches every query whose metadata satisfies
// pred. Refetches run concurrently; the first error is logged, not
// returned, since invalidation is fire-and-forget across many queries.
func (c *Client) InvalidateMatches(ctx context.Context, pred func(Meta) bool) {
	for _, h := range c.handles() {
		m := h.meta()
		if !pred(m) {
			continue
		}
		c.instr.Invalidated(m)
		go func(h handle, key string) {
			if err := h.refetch(ctx, true); err != nil {
				c.logger.Warn("query: invalidate refetch failed", "key", key, "error", err)
			}
		}(h, m.Key)
	}
}

// Focus refetches stale, subscribed, successful queries that opted into
// RefetchOnFocus. The embedder calls this on its window-focus analogue.
func (c *Client) Focus(ctx context.Context) {
	for _, h := range c.handles() {
		m := h.meta()
		if !h.refetchOnFocus() || m.Subscribers == 0 || m.Status != Success || !m.Stale {
			continue
		}
		go func(h handle, key string) {
			if err := h.refetch(ctx, false); err != nil {
				c.logger.Warn("query: focus refetch failed", "key", key, "error", err)
			}
		}(h, m.Key)
	}
}

// Reconnect force-refetches subscribed, errored queries that opted into
// RefetchOnReconnect. The embedder calls this when connectivity returns.
func (c *Client) Reconnect(ctx context.Context) {
	for _, h := range c.handles() {
		m := h.meta()
		if !h.refetchOnReconnect() || m.Subscribers == 0 || m.Status != Error {
			continue
		}
		go func(h handle, key string) {
			if err := h.refetch(ctx, true); err != nil {
				c.logger.Warn("query: reconnect refetch failed", "key", key, "error", err)
			}
		}(h, m.Key)
	}
}

// Sweep removes queries with zero subscribers whose data has outlived
// the configured cache lifetime, and returns how many were removed.
func (c *Client) Sweep() int {
	now := time.Now()

	c.mu.Lock()
	var removed []handle
	for key, h := range c.queries {
		m := h.meta()
		if m.Subscribers > 0 {
			continue
		}
		// Queries that never committed data age from their last fetch
		// attempt, so errored or aborted entries still expire. Idle
		// entries with no attempt at all are immediately sweepable.
		ref := m.LastUpdated
		if ref.IsZero() {
			ref = m.LastAttempt
		}
		if ref.IsZero() {
			if m.Status != Idle {
				continue
			}
		} else if now.Sub(ref) <= h.cacheTime() {
			continue
		}
		delete(c.queries, key)
		removed = append(removed, h)
	}
	c.mu.Unlock()

	for _, h := range removed {
		m := h.meta()
		h.dispose()
		c.instr.Swept(m)
		c.logger.Debug("query: swept", "key", m.Key)
	}
	return len(removed)
}

// StartSweeper runs Sweep on the given interval until Close.
func (c *Client) StartSweeper(interval time.Duration) {
	c.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-c.sweepDone:
					return
				case <-ticker.C:
					c.Sweep()
				}
			}
		}()
	})
}

// Close disposes every query and rejects further use.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	handles := make([]handle, 0, len(c.queries))
	for _, h := range c.queries {
		handles = append(handles, h)
	}
	c.queries = make(map[string]handle)
	c.mu.Unlock()

	close(c.sweepDone)
	for _, h := range handles {
		h.dispose()
	}
}

// handles returns a snapshot of the current query set.
func (c *Client) handles() []handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]handle, 0, len(c.queries))
	for _, h := range c.queries {
		out = append(out, h)
	}
	return out
}
