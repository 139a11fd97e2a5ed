package reactive

import (
	"log/slog"
	"sync"
)

// Runtime is an explicit, self-contained reactive context. It owns the
// effect scheduler, the root scope, and the logger used to report effect
// panics. Independent runtimes share no state, so tests and embedded
// subsystems can each run their own reactive graph.
type Runtime struct {
	scheduler *Scheduler
	root      *Scope
	logger    *slog.Logger

	closeOnce sync.Once
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithLogger sets the structured logger for the runtime.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// NewRuntime creates a runtime and starts its flush loop.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	r := &Runtime{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	r.scheduler = newScheduler(r.logger)
	r.root = &Scope{id: nextID(), runtime: r}

	go r.scheduler.loop()

	return r
}

// Scope returns the runtime's root scope.
func (r *Runtime) Scope() *Scope {
	return r.root
}

// Scheduler returns the runtime's effect scheduler.
func (r *Runtime) Scheduler() *Scheduler {
	return r.scheduler
}

// Logger returns the runtime's logger.
func (r *Runtime) Logger() *slog.Logger {
	return r.logger
}

// Flush synchronously runs all currently pending effects.
func (r *Runtime) Flush() {
	r.scheduler.Flush()
}

// Wait blocks until the scheduler has no pending effects and no flush in
// progress. Useful in tests after signal writes.
func (r *Runtime) Wait() {
	r.scheduler.Wait()
}

// Close flushes outstanding effects, disposes the root scope, and stops
// the flush loop. The runtime must not be used afterwards.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		r.scheduler.Flush()
		r.root.Dispose()
		r.scheduler.close()
	})
}

// defaultRuntime backs the package-level constructors.
var (
	defaultRuntime     *Runtime
	defaultRuntimeOnce sync.Once
)

// Default returns the process-wide default runtime, creating it on first
// use. Effects created outside any scope belong to its root scope.
func Default() *Runtime {
	defaultRuntimeOnce.Do(func() {
		defaultRuntime = NewRuntime()
	})
	return defaultRuntime
}

// Flush runs all pending effects on the default runtime.
func Flush() {
	Default().Flush()
}

// Wait blocks until the default runtime's scheduler is idle.
func Wait() {
	Default().Wait()
}
