package reactive

import (
	"sync"
	"sync/atomic"
)

// Memo is a derived value with automatic dependency tracking — the
// library's computed primitive. When any dependency changes the memo is
// invalidated and recomputes on the next read, so reads never observe a
// value derived from stale dependencies.
//
// A memo is itself subscribable: effects and other memos that read it are
// notified when it invalidates, which makes chains of derived values
// compose.
type Memo[T any] struct {
	base source

	// compute derives the memo's value.
	compute func() T

	// value is the cached result.
	value   T
	valueMu sync.RWMutex

	// valid reports whether value reflects current dependencies.
	valid atomic.Bool

	// sources are the signals/memos read by the last computation.
	sources   []*source
	sourcesMu sync.Mutex

	// equal decides value changes; nil means defaultEquals.
	equal func(T, T) bool

	// computing guards against recursive recomputation.
	computing atomic.Bool

	// disposed stops future recomputation and propagation.
	disposed atomic.Bool
}

// NewMemo creates a memo. The computation runs lazily on first Get.
func NewMemo[T any](compute func() T) *Memo[T] {
	return &Memo[T]{
		base:    source{id: nextID()},
		compute: compute,
	}
}

// Get returns the memo's value, recomputing if a dependency changed, and
// subscribes the current listener.
func (m *Memo[T]) Get() T {
	m.base.track()

	if !m.valid.Load() {
		m.recompute()
	}

	m.valueMu.RLock()
	value := m.value
	m.valueMu.RUnlock()
	return value
}

// Peek returns the value without subscribing.
// Still recomputes if the cached value is invalid.
func (m *Memo[T]) Peek() T {
	if !m.valid.Load() {
		m.recompute()
	}
	m.valueMu.RLock()
	value := m.value
	m.valueMu.RUnlock()
	return value
}

// MarkDirty invalidates the cached value and propagates downstream.
// Implements the Listener interface.
func (m *Memo[T]) MarkDirty() {
	if m.disposed.Load() {
		return
	}

	// CAS keeps repeated invalidations idempotent.
	if m.valid.CompareAndSwap(true, false) {
		m.base.notify()
	}
}

// ID returns the unique identifier for this memo.
// Implements the Listener interface.
func (m *Memo[T]) ID() uint64 {
	return m.base.id
}

// addSource records a dependency read during computation.
// Implements the dependent interface.
func (m *Memo[T]) addSource(src *source) {
	m.sourcesMu.Lock()
	defer m.sourcesMu.Unlock()

	for _, s := range m.sources {
		if s == src {
			return
		}
	}
	m.sources = append(m.sources, src)
}

// WithEquals configures a custom equality function and returns the memo.
func (m *Memo[T]) WithEquals(fn func(T, T) bool) *Memo[T] {
	m.equal = fn
	return m
}

// Dispose detaches the memo from its dependencies and stops future
// recomputation. Reads after disposal return the last cached value.
func (m *Memo[T]) Dispose() {
	if m.disposed.Swap(true) {
		return
	}

	m.sourcesMu.Lock()
	for _, src := range m.sources {
		src.unsubscribe(m)
	}
	m.sources = nil
	m.sourcesMu.Unlock()
}

// recompute re-runs the computation with fresh dependency tracking.
func (m *Memo[T]) recompute() {
	if m.disposed.Load() {
		return
	}

	// A memo reading itself (directly or through a cycle) would recurse
	// forever; the guard turns that into a stale read.
	if m.computing.Swap(true) {
		return
	}
	defer m.computing.Store(false)

	m.sourcesMu.Lock()
	for _, src := range m.sources {
		src.unsubscribe(m)
	}
	m.sources = m.sources[:0]
	m.sourcesMu.Unlock()

	old := setCurrentListener(m)
	defer setCurrentListener(old)
	newValue := m.compute()

	m.valueMu.Lock()
	m.value = newValue
	m.valueMu.Unlock()

	m.valid.Store(true)
}

var _ dependent = (*Memo[int])(nil)
