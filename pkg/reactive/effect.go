package reactive

import (
	"sync"
	"sync/atomic"
)

// Effect is a reactive computation that re-runs when any signal or memo
// it read during its last run changes.
//
// Effects run once synchronously at creation. Subsequent runs are
// scheduled on the owning runtime's Scheduler, batched and deduplicated.
// The effect function may return a Cleanup that runs before the next
// re-run and on disposal.
type Effect struct {
	id uint64

	// fn is the effect body.
	fn func() Cleanup

	// cleanup is the Cleanup from the last run, if any.
	cleanup Cleanup

	// sources are the signals/memos read during the most recent run.
	sources   []*source
	sourcesMu sync.Mutex

	// sched receives re-run requests.
	sched *Scheduler

	// scope owns this effect, nil for unowned effects.
	scope *Scope

	// pending is set while a re-run is scheduled.
	pending atomic.Bool

	// disposed makes the effect inert.
	disposed atomic.Bool
}

// EffectOption configures an Effect at creation.
type EffectOption func(*Effect)

// InScope attaches the effect to a specific scope instead of the
// goroutine's current one. The scope's runtime schedules the effect and
// disposal of the scope disposes the effect.
func InScope(s *Scope) EffectOption {
	return func(e *Effect) {
		e.scope = s
	}
}

// NewEffect creates an effect and runs fn once synchronously. Signal
// reads during the run register the effect as a dependent; when any of
// them changes, the effect is scheduled for a re-run.
//
// The effect belongs to the goroutine's current scope (see WithScope),
// or to the default runtime's root scope when none is set.
func NewEffect(fn func() Cleanup, opts ...EffectOption) *Effect {
	e := &Effect{
		id: nextID(),
		fn: fn,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.scope == nil {
		e.scope = getCurrentScope()
	}
	if e.scope == nil {
		e.scope = Default().Scope()
	}
	e.sched = e.scope.runtime.scheduler

	e.scope.registerEffect(e)

	// Initial synchronous run establishes dependencies.
	e.run()

	return e
}

// MarkDirty schedules the effect for a re-run.
// Implements the Listener interface.
func (e *Effect) MarkDirty() {
	if e.disposed.Load() {
		return
	}

	// CAS so a flurry of notifications schedules exactly one run.
	if e.pending.CompareAndSwap(false, true) {
		e.sched.schedule(e)
	}
}

// ID returns the unique identifier for this effect.
// Implements the Listener interface.
func (e *Effect) ID() uint64 {
	return e.id
}

// run executes the effect body with dependency tracking.
//
// Every run starts from a clean slate: the previous cleanup runs and all
// prior source subscriptions are dropped before fn executes. The recorded
// dependency set therefore always equals exactly the signals read during
// the most recent run, so conditional reads shed stale subscriptions.
func (e *Effect) run() {
	if e.disposed.Load() {
		return
	}

	e.pending.Store(false)

	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}

	e.sourcesMu.Lock()
	for _, src := range e.sources {
		src.unsubscribe(e)
	}
	e.sources = e.sources[:0]
	e.sourcesMu.Unlock()

	// Install this effect as the tracking listener; restoring the
	// previous listener afterwards supports nested effect creation.
	// The restore is deferred so a panicking body cannot leave the
	// goroutine tracking a dead effect.
	old := setCurrentListener(e)
	defer setCurrentListener(old)
	e.cleanup = e.fn()
}

// addSource records a source read during the current run.
// Implements the dependent interface.
func (e *Effect) addSource(src *source) {
	e.sourcesMu.Lock()
	defer e.sourcesMu.Unlock()

	for _, s := range e.sources {
		if s == src {
			return
		}
	}
	e.sources = append(e.sources, src)
}

// Dispose runs the last cleanup, drops all dependency links, and makes
// the effect inert to future notifications. Disposing twice, or from
// inside the effect's own run, is safe.
func (e *Effect) Dispose() {
	if e.disposed.Swap(true) {
		return
	}

	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}

	e.sourcesMu.Lock()
	for _, src := range e.sources {
		src.unsubscribe(e)
	}
	e.sources = nil
	e.sourcesMu.Unlock()
}

// OnUpdate creates an effect that skips its callback on the first run.
// deps reads the signals to track; callback runs only on changes.
func OnUpdate(deps func(), callback func(), opts ...EffectOption) *Effect {
	first := true
	return NewEffect(func() Cleanup {
		deps()
		if first {
			first = false
			return nil
		}
		callback()
		return nil
	}, opts...)
}
