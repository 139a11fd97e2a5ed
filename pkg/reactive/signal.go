package reactive

import (
	"reflect"
	"sync"
)

// source provides type-erased subscriber management.
// It is embedded in Signal[T] and Memo[T] to share subscription logic.
type source struct {
	id uint64

	// subs are the listeners subscribed to this source.
	subs []Listener

	// subMu protects subs.
	subMu sync.RWMutex
}

// subscribe adds a listener, deduplicating by listener ID.
func (s *source) subscribe(l Listener) {
	if l == nil {
		return
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()

	lid := l.ID()
	for _, existing := range s.subs {
		if existing.ID() == lid {
			return
		}
	}

	s.subs = append(s.subs, l)
}

// unsubscribe removes a listener. Order is not preserved.
func (s *source) unsubscribe(l Listener) {
	if l == nil {
		return
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()

	lid := l.ID()
	for i, existing := range s.subs {
		if existing.ID() == lid {
			s.subs[i] = s.subs[len(s.subs)-1]
			s.subs = s.subs[:len(s.subs)-1]
			return
		}
	}
}

// notify marks every subscriber dirty, or queues them when the current
// goroutine is inside a Batch. Subscribers are copied before notification
// so no lock is held while listener code runs.
func (s *source) notify() {
	s.subMu.RLock()
	subs := make([]Listener, len(s.subs))
	copy(subs, s.subs)
	s.subMu.RUnlock()

	if getBatchDepth() > 0 {
		for _, sub := range subs {
			queuePendingNotify(sub)
		}
		return
	}

	for _, sub := range subs {
		sub.MarkDirty()
	}
}

// track registers the goroutine's current listener, if any, as a
// dependent of this source.
func (s *source) track() {
	listener := getCurrentListener()
	if listener == nil {
		return
	}

	s.subscribe(listener)

	// Effects and memos record the source so they can unsubscribe on
	// their next run.
	if d, ok := listener.(dependent); ok {
		d.addSource(s)
	}
}

// dependent is a listener that tracks which sources it subscribed to,
// so stale subscriptions can be cleared before a re-run.
type dependent interface {
	Listener
	addSource(*source)
}

// Signal is a reactive value container. Reading a Signal during a tracked
// context (effect run or memo computation) automatically subscribes the
// current listener to changes.
type Signal[T any] struct {
	base source

	// value is the current signal value.
	value T

	// mu protects value.
	mu sync.RWMutex

	// equal decides whether a write changed the value.
	// nil means defaultEquals.
	equal func(T, T) bool

	// watchers are plain callbacks registered via Subscribe, keyed by a
	// token so unsubscribe is O(1) and idempotent.
	watchers   map[uint64]func(T)
	watchersMu sync.Mutex
}

// NewSignal creates a signal with the given initial value.
func NewSignal[T any](initial T) *Signal[T] {
	return &Signal[T]{
		base:  source{id: nextID()},
		value: initial,
	}
}

// Get returns the current value and subscribes the current listener.
func (s *Signal[T]) Get() T {
	s.mu.RLock()
	value := s.value
	s.mu.RUnlock()

	// Track after releasing the value lock to prevent deadlock with
	// listeners that read other signals while being subscribed.
	s.base.track()

	return value
}

// Peek returns the current value without subscribing.
func (s *Signal[T]) Peek() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set stores value and notifies dependents if it differs from the current
// value under the signal's equality function. Writes that compare equal
// perform no notification.
func (s *Signal[T]) Set(value T) {
	s.mu.Lock()
	changed := !s.equals(s.value, value)
	if changed {
		s.value = value
	}
	s.mu.Unlock()

	if changed {
		s.committed(value)
	}
}

// Update atomically reads and updates the signal's value.
func (s *Signal[T]) Update(fn func(T) T) {
	s.mu.Lock()
	newValue := fn(s.value)
	changed := !s.equals(s.value, newValue)
	if changed {
		s.value = newValue
	}
	s.mu.Unlock()

	if changed {
		s.committed(newValue)
	}
}

// committed runs the post-write notification path for a changed value.
func (s *Signal[T]) committed(value T) {
	s.base.notify()

	s.watchersMu.Lock()
	var cbs []func(T)
	if len(s.watchers) > 0 {
		cbs = make([]func(T), 0, len(s.watchers))
		for _, cb := range s.watchers {
			cbs = append(cbs, cb)
		}
	}
	s.watchersMu.Unlock()

	for _, cb := range cbs {
		cb(value)
	}
}

// Subscribe registers a plain callback invoked with the new value on
// every committed write. Unlike effect tracking, the subscription is
// unconditional and survives until the returned unsubscribe function is
// called. Unsubscribing twice is harmless.
func (s *Signal[T]) Subscribe(cb func(T)) func() {
	if cb == nil {
		return func() {}
	}

	token := nextID()

	s.watchersMu.Lock()
	if s.watchers == nil {
		s.watchers = make(map[uint64]func(T))
	}
	s.watchers[token] = cb
	s.watchersMu.Unlock()

	return func() {
		s.watchersMu.Lock()
		delete(s.watchers, token)
		s.watchersMu.Unlock()
	}
}

// WithEquals configures a custom equality function and returns the signal.
// Useful when reflect.DeepEqual is too expensive or semantically wrong.
func (s *Signal[T]) WithEquals(fn func(T, T) bool) *Signal[T] {
	s.equal = fn
	return s
}

// ID returns the unique identifier for this signal.
func (s *Signal[T]) ID() uint64 {
	return s.base.id
}

func (s *Signal[T]) equals(a, b T) bool {
	if s.equal != nil {
		return s.equal(a, b)
	}
	return defaultEquals(a, b)
}

// defaultEquals uses == for common scalar types and reflect.DeepEqual
// for everything else.
func defaultEquals[T any](a, b T) bool {
	switch av := any(a).(type) {
	case int:
		return av == any(b).(int)
	case int8:
		return av == any(b).(int8)
	case int16:
		return av == any(b).(int16)
	case int32:
		return av == any(b).(int32)
	case int64:
		return av == any(b).(int64)
	case uint:
		return av == any(b).(uint)
	case uint8:
		return av == any(b).(uint8)
	case uint16:
		return av == any(b).(uint16)
	case uint32:
		return av == any(b).(uint32)
	case uint64:
		return av == any(b).(uint64)
	case float32:
		return av == any(b).(float32)
	case float64:
		return av == any(b).(float64)
	case string:
		return av == any(b).(string)
	case bool:
		return av == any(b).(bool)
	default:
		return reflect.DeepEqual(a, b)
	}
}
