package reactive

import (
	"sync"
	"sync/atomic"
)

// Scope owns reactive primitives. Disposing a scope disposes every
// effect and child scope it contains and runs registered cleanups, in
// reverse creation order. Scopes form a tree under a Runtime's root.
type Scope struct {
	id      uint64
	runtime *Runtime

	// parent is nil for a runtime's root scope.
	parent *Scope

	children   []*Scope
	childrenMu sync.Mutex

	effects   []*Effect
	effectsMu sync.Mutex

	cleanups   []func()
	cleanupsMu sync.Mutex

	disposed atomic.Bool
}

// NewScope creates a child of parent. The child is disposed with its
// parent, or earlier via its own Dispose.
func NewScope(parent *Scope) *Scope {
	s := &Scope{
		id:      nextID(),
		runtime: parent.runtime,
		parent:  parent,
	}
	parent.addChild(s)
	return s
}

// ID returns the unique identifier for this scope.
func (s *Scope) ID() uint64 {
	return s.id
}

// Runtime returns the runtime this scope belongs to.
func (s *Scope) Runtime() *Runtime {
	return s.runtime
}

// IsDisposed reports whether the scope has been disposed.
func (s *Scope) IsDisposed() bool {
	return s.disposed.Load()
}

func (s *Scope) addChild(child *Scope) {
	s.childrenMu.Lock()
	defer s.childrenMu.Unlock()
	s.children = append(s.children, child)
}

func (s *Scope) removeChild(child *Scope) {
	s.childrenMu.Lock()
	defer s.childrenMu.Unlock()

	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

// registerEffect records an effect for disposal with this scope.
func (s *Scope) registerEffect(e *Effect) {
	if s.disposed.Load() {
		return
	}

	s.effectsMu.Lock()
	defer s.effectsMu.Unlock()
	s.effects = append(s.effects, e)
}

// OnCleanup registers fn to run when the scope is disposed.
// On an already-disposed scope, fn runs immediately.
func (s *Scope) OnCleanup(fn func()) {
	if s.disposed.Load() {
		fn()
		return
	}

	s.cleanupsMu.Lock()
	defer s.cleanupsMu.Unlock()
	s.cleanups = append(s.cleanups, fn)
}

// Run executes fn with this scope as the goroutine's current scope.
func (s *Scope) Run(fn func()) {
	WithScope(s, fn)
}

// Dispose releases the scope: children first (newest to oldest), then
// effects, then cleanups in reverse registration order. Safe to call
// more than once.
func (s *Scope) Dispose() {
	if s.disposed.Swap(true) {
		return
	}

	if s.parent != nil {
		s.parent.removeChild(s)
	}

	s.childrenMu.Lock()
	children := make([]*Scope, len(s.children))
	copy(children, s.children)
	s.children = nil
	s.childrenMu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Dispose()
	}

	s.effectsMu.Lock()
	effects := s.effects
	s.effects = nil
	s.effectsMu.Unlock()

	for _, e := range effects {
		e.Dispose()
	}

	s.cleanupsMu.Lock()
	cleanups := s.cleanups
	s.cleanups = nil
	s.cleanupsMu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}
