package query

import "time"

// Outcome classifies how a fetch attempt ended.
type Outcome int

const (
	// OutcomeSuccess committed data to the query.
	OutcomeSuccess Outcome = iota

	// OutcomeError transitioned the query to the error state.
	OutcomeError

	// OutcomeAborted means the attempt's context was cancelled; no state
	// transition occurred.
	OutcomeAborted

	// OutcomeSuperseded means a newer attempt started before this one
	// finished; the response was discarded.
	OutcomeSuperseded
)

// String returns the metric/trace label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	case OutcomeAborted:
		return "aborted"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Meta is a point-in-time description of a query, handed to
// instrumentation hooks and invalidation predicates.
type Meta struct {
	// Key is the canonical cache key.
	Key string

	// Hash is the stable digest of Key.
	Hash uint64

	// RawKey is the value the query was created with.
	RawKey any

	// Status is the query's lifecycle state.
	Status Status

	// LastUpdated is the time of the last successful commit.
	LastUpdated time.Time

	// LastAttempt is when the most recent fetch attempt started, zero if
	// none.
	LastAttempt time.Time

	// Stale reports whether the data has outlived its freshness window.
	Stale bool

	// Subscribers is the number of active subscriptions.
	Subscribers int
}

// Instrumentation observes query lifecycle events. Implementations must
// be safe for concurrent use and should return quickly; hooks run on the
// fetching goroutine. Embed NopInstrumentation to implement a subset.
type Instrumentation interface {
	// QueryRegistered fires once when a query is created in a client.
	QueryRegistered(m Meta)

	// FetchStarted fires when a fetch attempt begins.
	FetchStarted(m Meta)

	// FetchFinished fires when an attempt ends, however it ends.
	// err is non-nil only for OutcomeError and OutcomeAborted.
	FetchFinished(m Meta, outcome Outcome, elapsed time.Duration, err error)

	// CacheHit fires when a Fetch is satisfied from fresh cached data.
	CacheHit(m Meta)

	// Invalidated fires when a query is force-refetched or marked stale.
	Invalidated(m Meta)

	// Swept fires when the sweep removes an unused query.
	Swept(m Meta)
}

// NopInstrumentation implements Instrumentation with no-ops, for
// embedding in partial implementations.
type NopInstrumentation struct{}

func (NopInstrumentation) QueryRegistered(Meta)                               {}
func (NopInstrumentation) FetchStarted(Meta)                                  {}
func (NopInstrumentation) FetchFinished(Meta, Outcome, time.Duration, error)  {}
func (NopInstrumentation) CacheHit(Meta)                                      {}
func (NopInstrumentation) Invalidated(Meta)                                   {}
func (NopInstrumentation) Swept(Meta)                                         {}

var _ Instrumentation = NopInstrumentation{}

// fanout delivers each event to every registered hook.
type fanout []Instrumentation

func (f fanout) QueryRegistered(m Meta) {
	for _, i := range f {
		i.QueryRegistered(m)
	}
}

func (f fanout) FetchStarted(m Meta) {
	for _, i := range f {
		i.FetchStarted(m)
	}
}

func (f fanout) FetchFinished(m Meta, outcome Outcome, elapsed time.Duration, err error) {
	for _, i := range f {
		i.FetchFinished(m, outcome, elapsed, err)
	}
}

func (f fanout) CacheHit(m Meta) {
	for _, i := range f {
		i.CacheHit(m)
	}
}

func (f fanout) Invalidated(m Meta) {
	for _, i := range f {
		i.Invalidated(m)
	}
}

func (f fanout) Swept(m Meta) {
	for _, i := range f {
		i.Swept(m)
	}
}
