package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nquery-dev/nquery/pkg/reactive"
)

// Status is a query's lifecycle state.
type Status int

const (
	// Idle means no fetch has been attempted yet.
	Idle Status = iota

	// Loading means a fetch is in progress and no previous data is being
	// shown in its place.
	Loading

	// Success means the last attempt committed data.
	Success

	// Error means the last attempt failed. Previously committed data is
	// retained.
	Error
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Query manages one async fetch operation's lifecycle and latest result.
// Its state lives in signals, so effects and memos that read it re-run
// as the fetch progresses.
//
// Queries are created through a Client, which guarantees one Query per
// cache key. All methods are safe for concurrent use.
type Query[T any] struct {
	client  *Client
	key     Key
	rawKey  any
	fetcher Fetcher[T]
	opts    Options[T]

	data     *reactive.Signal[T]
	err      *reactive.Signal[error]
	status   *reactive.Signal[Status]
	inFlight *reactive.Signal[bool]

	// mu guards lastUpdated, lastAttempt, seq, and cancel.
	mu          sync.Mutex
	lastUpdated time.Time

	// lastAttempt is when the most recent fetch attempt started. The
	// sweep falls back to it for queries that never committed data.
	lastAttempt time.Time

	// seq numbers fetch attempts. Only the completion whose captured
	// sequence still equals seq may commit; everything else is dropped.
	seq uint64

	// cancel aborts the current in-flight attempt, if any.
	cancel context.CancelFunc

	// commitMu serializes completion commits. The sequence check and the
	// signal writes it guards happen under it, so a superseded response
	// can never land after the attempt that replaced it.
	commitMu sync.Mutex

	subs     atomic.Int64
	done     chan struct{}
	disposed atomic.Bool
}

func newQuery[T any](c *Client, key Key, rawKey any, fetcher Fetcher[T], opts Options[T]) *Query[T] {
	opts = opts.withDefaults()

	q := &Query[T]{
		client:   c,
		key:      key,
		rawKey:   rawKey,
		fetcher:  fetcher,
		opts:     opts,
		data:     reactive.NewSignal(opts.Initial),
		err:      reactive.NewSignal[error](nil),
		status:   reactive.NewSignal(Idle),
		inFlight: reactive.NewSignal(false),
		done:     make(chan struct{}),
	}

	if opts.RefetchInterval > 0 {
		go q.refetchLoop()
	}

	if !opts.Lazy {
		go func() {
			_, _ = q.Fetch(context.Background())
		}()
	}

	return q
}

// Key returns the canonical cache key.
func (q *Query[T]) Key() Key {
	return q.key
}

// Status returns the lifecycle state, tracking the current listener.
func (q *Query[T]) Status() Status {
	return q.status.Get()
}

// Data returns the latest committed value, tracking the current listener.
func (q *Query[T]) Data() T {
	return q.data.Get()
}

// DataOr returns the committed value when status is Success, otherwise
// fallback.
func (q *Query[T]) DataOr(fallback T) T {
	if q.status.Get() != Success {
		return fallback
	}
	return q.data.Get()
}

// Error returns the last fetch error, tracking the current listener.
func (q *Query[T]) Error() error {
	return q.err.Get()
}

// InFlight reports whether a fetch is in progress, tracking the current
// listener.
func (q *Query[T]) InFlight() bool {
	return q.inFlight.Get()
}

// IsLoading reports whether the query is idle or loading.
func (q *Query[T]) IsLoading() bool {
	s := q.status.Get()
	return s == Idle || s == Loading
}

// IsSuccess reports whether the last attempt committed data.
func (q *Query[T]) IsSuccess() bool {
	return q.status.Get() == Success
}

// IsError reports whether the last attempt failed.
func (q *Query[T]) IsError() bool {
	return q.status.Get() == Error
}

// DataSignal exposes the underlying data signal for direct subscription.
func (q *Query[T]) DataSignal() *reactive.Signal[T] {
	return q.data
}

// StatusSignal exposes the underlying status signal.
func (q *Query[T]) StatusSignal() *reactive.Signal[Status] {
	return q.status
}

// LastUpdated returns the time of the last successful commit, zero if
// none.
func (q *Query[T]) LastUpdated() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastUpdated
}

// Stale reports whether the data has outlived the configured freshness
// window. Idle queries are always stale.
func (q *Query[T]) Stale() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.staleLocked()
}

func (q *Query[T]) staleLocked() bool {
	if q.lastUpdated.IsZero() {
		return true
	}
	return time.Since(q.lastUpdated) >= q.opts.StaleTime
}

// Subscribe registers interest in this query. Subscribed queries are
// exempt from the sweep and participate in focus/reconnect refetches.
// The returned release function is idempotent.
func (q *Query[T]) Subscribe() func() {
	q.subs.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			q.subs.Add(-1)
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (q *Query[T]) Subscribers() int {
	return int(q.subs.Load())
}

// Fetch returns the cached value without fetching when the query is
// successful and its data is still fresh. Otherwise it behaves like
// Refetch. This is the dedup path: any number of Fetch calls inside the
// freshness window cost one underlying fetch.
func (q *Query[T]) Fetch(ctx context.Context) (T, error) {
	q.mu.Lock()
	fresh := q.status.Peek() == Success && !q.staleLocked()
	q.mu.Unlock()

	if fresh {
		q.client.instr.CacheHit(q.metaSnapshot())
		return q.data.Peek(), nil
	}

	return q.Refetch(ctx)
}

// Refetch forces a fetch attempt, cancelling any attempt already in
// flight. It blocks until this attempt settles and returns its result.
//
// A fetch error is returned to the caller and also transitions the query
// to Error, keeping previously committed data. If ctx is cancelled the
// attempt is aborted: no state transition, ctx's error returned. If a
// newer attempt supersedes this one, the response is discarded and the
// query's current data is returned.
func (q *Query[T]) Refetch(ctx context.Context) (T, error) {
	var zero T

	if q.disposed.Load() {
		return zero, ErrClosed
	}

	q.mu.Lock()
	q.seq++
	seq := q.seq
	q.lastAttempt = time.Now()
	if q.cancel != nil {
		q.cancel()
	}
	fctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.mu.Unlock()

	reactive.Batch(func() {
		q.inFlight.Set(true)
		// Background refetches keep showing previous data when asked to.
		if !(q.opts.KeepPreviousData && q.status.Peek() == Success) {
			q.status.Set(Loading)
		}
	})
	q.client.instr.FetchStarted(q.metaSnapshot())

	start := time.Now()
	value, err := q.fetcher(fctx)
	elapsed := time.Since(start)

	q.commitMu.Lock()
	q.mu.Lock()
	if q.seq != seq {
		// Superseded: a newer attempt owns the state now.
		q.mu.Unlock()
		q.commitMu.Unlock()
		q.client.instr.FetchFinished(q.metaSnapshot(), OutcomeSuperseded, elapsed, nil)
		return q.data.Peek(), nil
	}
	q.cancel = nil

	if err != nil && fctx.Err() != nil &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		// Aborted: neither success nor error.
		q.mu.Unlock()
		q.inFlight.Set(false)
		q.commitMu.Unlock()
		q.client.instr.FetchFinished(q.metaSnapshot(), OutcomeAborted, elapsed, err)
		return zero, err
	}

	if err != nil {
		q.mu.Unlock()
		reactive.Batch(func() {
			q.inFlight.Set(false)
			q.err.Set(err)
			q.status.Set(Error)
		})
		q.commitMu.Unlock()
		if q.opts.OnError != nil {
			q.opts.OnError(err)
		}
		if q.opts.OnSettled != nil {
			q.opts.OnSettled(zero, err)
		}
		q.client.instr.FetchFinished(q.metaSnapshot(), OutcomeError, elapsed, err)
		return zero, err
	}

	if q.opts.Select != nil {
		value = q.opts.Select(value)
	}
	q.lastUpdated = time.Now()
	q.mu.Unlock()

	reactive.Batch(func() {
		q.inFlight.Set(false)
		q.err.Set(nil)
		q.data.Set(value)
		q.status.Set(Success)
	})
	q.commitMu.Unlock()
	if q.opts.OnSuccess != nil {
		q.opts.OnSuccess(value)
	}
	if q.opts.OnSettled != nil {
		q.opts.OnSettled(value, nil)
	}
	q.client.instr.FetchFinished(q.metaSnapshot(), OutcomeSuccess, elapsed, nil)
	return value, nil
}

// Invalidate marks the data stale without fetching. The next Fetch will
// hit the network.
func (q *Query[T]) Invalidate() {
	q.mu.Lock()
	q.lastUpdated = time.Time{}
	q.mu.Unlock()
	q.client.instr.Invalidated(q.metaSnapshot())
}

// SetData commits a value locally without fetching — an optimistic
// update. Status becomes Success and the freshness clock restarts.
func (q *Query[T]) SetData(value T) {
	q.commitMu.Lock()
	q.mu.Lock()
	q.lastUpdated = time.Now()
	q.mu.Unlock()

	reactive.Batch(func() {
		q.err.Set(nil)
		q.data.Set(value)
		q.status.Set(Success)
	})
	q.commitMu.Unlock()
}

// refetchLoop refetches on the configured interval while the query has
// subscribers. It exits when the query is removed from its client.
func (q *Query[T]) refetchLoop() {
	ticker := time.NewTicker(q.opts.RefetchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.done:
			return
		case <-ticker.C:
			if q.subs.Load() > 0 {
				_, _ = q.Fetch(context.Background())
			}
		}
	}
}

// metaSnapshot builds a point-in-time Meta. Callers must not hold q.mu.
func (q *Query[T]) metaSnapshot() Meta {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Meta{
		Key:         q.key.Canonical,
		Hash:        q.key.Hash,
		RawKey:      q.rawKey,
		Status:      q.status.Peek(),
		LastUpdated: q.lastUpdated,
		LastAttempt: q.lastAttempt,
		Stale:       q.staleLocked(),
		Subscribers: int(q.subs.Load()),
	}
}

// handle methods — the Client's type-erased view of a query.

func (q *Query[T]) meta() Meta {
	return q.metaSnapshot()
}

func (q *Query[T]) refetch(ctx context.Context, force bool) error {
	var err error
	if force {
		_, err = q.Refetch(ctx)
	} else {
		_, err = q.Fetch(ctx)
	}
	return err
}

func (q *Query[T]) cacheTime() time.Duration {
	return q.opts.CacheTime
}

func (q *Query[T]) refetchOnFocus() bool {
	return q.opts.RefetchOnFocus
}

func (q *Query[T]) refetchOnReconnect() bool {
	return q.opts.RefetchOnReconnect
}

// dispose stops background work and cancels any in-flight attempt.
// Called by the client on sweep and on Close.
func (q *Query[T]) dispose() {
	if q.disposed.Swap(true) {
		return
	}

	close(q.done)

	q.mu.Lock()
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	q.mu.Unlock()
}
