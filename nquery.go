// Package nquery provides the public API for the nQuery reactive state
// and query cache library.
//
// This is the recommended import for most applications:
//
//	import "github.com/nquery-dev/nquery"
//
// Usage:
//
//	count := nquery.NewSignal(0)
//	doubled := nquery.NewMemo(func() int { return count.Get() * 2 })
//	nquery.NewEffect(func() nquery.Cleanup {
//	    fmt.Println(doubled.Get())
//	    return nil
//	})
//
//	client := nquery.NewClient()
//	todos := nquery.NewQuery(client, "todos", fetchTodos)
package nquery

import (
	"context"

	"github.com/nquery-dev/nquery/pkg/query"
	"github.com/nquery-dev/nquery/pkg/reactive"
)

// =============================================================================
// Reactive primitives (re-export from pkg/reactive)
// =============================================================================

// Signal is a reactive value cell.
type Signal[T any] = reactive.Signal[T]

// Memo is a lazily recomputed derived value.
type Memo[T any] = reactive.Memo[T]

// Effect is a tracked side effect.
type Effect = reactive.Effect

// Scope owns effects and cleanups for bulk disposal.
type Scope = reactive.Scope

// Runtime bundles a scheduler and a root scope.
type Runtime = reactive.Runtime

// Cleanup is returned by effect bodies to release resources before rerun.
type Cleanup = reactive.Cleanup

// NewSignal creates a reactive signal with the given initial value.
// Custom equality chains on: NewSignal(v).WithEquals(fn).
//
//	count := nquery.NewSignal(0)
//	count.Set(1)
//	value := count.Get() // 1
func NewSignal[T any](initial T) *Signal[T] {
	return reactive.NewSignal(initial)
}

// NewMemo creates a derived value that tracks its dependencies.
//
//	doubled := nquery.NewMemo(func() int {
//	    return count.Get() * 2
//	})
func NewMemo[T any](compute func() T) *Memo[T] {
	return reactive.NewMemo(compute)
}

// NewEffect registers a side effect that reruns when dependencies change.
var NewEffect = reactive.NewEffect

// OnUpdate runs callback whenever any of deps change, without tracking
// reads inside the callback.
var OnUpdate = reactive.OnUpdate

// Batch coalesces signal writes; effects run once after fn returns.
var Batch = reactive.Batch

// Untracked reads signals inside fn without registering dependencies.
var Untracked = reactive.Untracked

// Flush synchronously drains the default runtime's pending effects.
var Flush = reactive.Flush

// Wait blocks until the default runtime's scheduler is idle.
var Wait = reactive.Wait

// NewRuntime creates an isolated reactive runtime.
var NewRuntime = reactive.NewRuntime

// NewScope creates a disposal scope under parent.
var NewScope = reactive.NewScope

// =============================================================================
// Query cache (re-export from pkg/query)
// =============================================================================

// Client owns the cache-key → query mapping.
type Client = query.Client

// Query is a cached async value with reactive status and data.
type Query[T any] = query.Query[T]

// QueryOptions configures a query.
type QueryOptions[T any] = query.Options[T]

// Fetcher loads a query's value.
type Fetcher[T any] = query.Fetcher[T]

// Mutation is the write-side counterpart of Query.
type Mutation[A, R any] = query.Mutation[A, R]

// MutationOptions configures a mutation.
type MutationOptions[A, R any] = query.MutationOptions[A, R]

// NewClient creates a query client.
var NewClient = query.NewClient

// NewQuery returns the query for key on c, creating it on first use.
func NewQuery[T any](c *Client, key any, fetcher Fetcher[T], opts ...QueryOptions[T]) *Query[T] {
	return query.New(c, key, fetcher, opts...)
}

// LookupQuery returns the existing query for key, if any.
func LookupQuery[T any](c *Client, key any) (*Query[T], bool) {
	return query.Lookup[T](c, key)
}

// NewMutation creates a mutation around the given work function.
func NewMutation[A, R any](do func(ctx context.Context, arg A) (R, error), opts ...MutationOptions[A, R]) *Mutation[A, R] {
	return query.NewMutation(do, opts...)
}
