package query

import (
	"context"
	"time"
)

// Fetcher loads the value for a query. The context is cancelled when a
// newer attempt supersedes this one; fetchers should honor it, but
// correctness does not depend on it — superseded responses are discarded
// by sequence number either way.
type Fetcher[T any] func(ctx context.Context) (T, error)

// defaultCacheTime is how long unused data survives the sweep when no
// CacheTime is configured.
const defaultCacheTime = 5 * time.Minute

// Options configures a Query at creation. The zero value is usable:
// always-stale data, default cache lifetime, eager initial fetch.
//
// Options bind on first creation of a key; later lookups of the same key
// ignore whatever options they pass.
type Options[T any] struct {
	// Initial seeds the data signal before the first successful fetch.
	Initial T

	// StaleTime is the freshness window. Within it, Fetch returns cached
	// data without refetching. Zero means data is immediately stale.
	StaleTime time.Duration

	// CacheTime is how long data with no subscribers survives the sweep.
	// Zero means defaultCacheTime.
	CacheTime time.Duration

	// Select transforms the fetched value before it is committed.
	Select func(T) T

	// OnSuccess runs after a successful commit.
	OnSuccess func(T)

	// OnError runs after a failed attempt (not on abort or supersede).
	OnError func(error)

	// OnSettled runs after success or error, with whichever applies.
	OnSettled func(T, error)

	// RefetchInterval refetches periodically while the query has
	// subscribers. Zero disables.
	RefetchInterval time.Duration

	// KeepPreviousData leaves status at Success during a background
	// refetch instead of dropping back to Loading.
	KeepPreviousData bool

	// Lazy suppresses the fetch normally performed at creation.
	Lazy bool

	// RefetchOnFocus opts the query into Client.Focus refetches.
	RefetchOnFocus bool

	// RefetchOnReconnect opts the query into Client.Reconnect refetches.
	RefetchOnReconnect bool
}

// withDefaults fills unset fields.
func (o Options[T]) withDefaults() Options[T] {
	if o.CacheTime == 0 {
		o.CacheTime = defaultCacheTime
	}
	return o
}
