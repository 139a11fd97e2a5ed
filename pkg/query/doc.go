// Package query layers an async fetch cache on top of the reactive core.
//
// A Query wraps one fetch operation's lifecycle — idle, loading, success,
// error — in signals, with staleness tracking, deduplication of fresh
// reads, and a sequence-number guard that discards superseded in-flight
// responses. A Client owns one Query per canonical cache key and provides
// invalidation, an unused-entry sweep, and focus/reconnect refetch
// triggers.
//
//	c := query.NewClient()
//	todos := query.New(c, "todos", fetchTodos, query.Options[[]Todo]{
//	    StaleTime: time.Minute,
//	})
//	data, err := todos.Fetch(ctx) // cached while fresh
//
// Mutation is the write-side counterpart: the same lifecycle signals and
// cancellation semantics, but each call is independent — no cache key, no
// staleness.
package query
