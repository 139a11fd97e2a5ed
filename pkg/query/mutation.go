package query

import (
	"context"
	"errors"
	"sync"

	"github.com/nquery-dev/nquery/pkg/reactive"
)

// MutationState is a mutation's lifecycle state.
type MutationState int

const (
	// MutationIdle is the state before any Run call.
	MutationIdle MutationState = iota

	// MutationRunning means work is in progress.
	MutationRunning

	// MutationSuccess means the last run committed a result.
	MutationSuccess

	// MutationError means the last run failed.
	MutationError
)

// String returns a human-readable name for the state.
func (s MutationState) String() string {
	switch s {
	case MutationIdle:
		return "idle"
	case MutationRunning:
		return "running"
	case MutationSuccess:
		return "success"
	case MutationError:
		return "error"
	default:
		return "unknown"
	}
}

// Policy defines how a Mutation handles concurrent Run calls.
type Policy int

const (
	// CancelLatest cancels prior in-flight work when Run is called again.
	// This is the default.
	CancelLatest Policy = iota

	// DropWhileRunning rejects Run calls with ErrMutationRunning while
	// work is in progress.
	DropWhileRunning

	// Queue buffers Run arguments and executes them sequentially.
	// Queued runs surface their results through signals and callbacks,
	// not through Run's return values.
	Queue
)

// MutationOptions configures a Mutation.
type MutationOptions[A, R any] struct {
	// Policy selects the concurrency behavior. Default CancelLatest.
	Policy Policy

	// QueueSize caps the Queue policy's buffer. Default 16.
	QueueSize int

	// OnSuccess runs after a committed result.
	OnSuccess func(R)

	// OnError runs after a failed run (not after cancellation).
	OnError func(error)

	// OnSettled runs after success or error.
	OnSettled func(R, error)
}

// Mutation is the write-side counterpart of Query: the same lifecycle
// signals and sequence-guarded commits, but each Run is independent —
// there is no cache key, no staleness, and no dedup of fresh results.
type Mutation[A, R any] struct {
	do   func(ctx context.Context, arg A) (R, error)
	opts MutationOptions[A, R]

	state  *reactive.Signal[MutationState]
	result *reactive.Signal[R]
	err    *reactive.Signal[error]

	// mu guards seq, cancel, and lastTerminal.
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc

	// lastTerminal is the most recent settled state (idle, success, or
	// error). Cancelled runs fall back to it rather than to whatever
	// state they happened to observe when they started.
	lastTerminal MutationState

	queue chan A
}

// NewMutation creates a mutation around the given work function.
func NewMutation[A, R any](do func(ctx context.Context, arg A) (R, error), opts ...MutationOptions[A, R]) *Mutation[A, R] {
	m := &Mutation[A, R]{
		do:     do,
		state:  reactive.NewSignal(MutationIdle),
		result: reactive.NewSignal(*new(R)),
		err:    reactive.NewSignal[error](nil),
	}
	if len(opts) > 0 {
		m.opts = opts[0]
	}
	if m.opts.QueueSize == 0 {
		m.opts.QueueSize = 16
	}
	if m.opts.Policy == Queue {
		m.queue = make(chan A, m.opts.QueueSize)
		go m.drainQueue()
	}
	return m
}

// State returns the lifecycle state, tracking the current listener.
func (m *Mutation[A, R]) State() MutationState {
	return m.state.Get()
}

// Result returns the last committed result, tracking the current listener.
func (m *Mutation[A, R]) Result() R {
	return m.result.Get()
}

// Error returns the last run's error, tracking the current listener.
func (m *Mutation[A, R]) Error() error {
	return m.err.Get()
}

// IsRunning reports whether work is in progress.
func (m *Mutation[A, R]) IsRunning() bool {
	return m.state.Get() == MutationRunning
}

// Run executes the mutation with arg according to the configured policy.
//
// CancelLatest: cancels any prior in-flight run, blocks until this run
// settles, and returns its result. DropWhileRunning: returns
// ErrMutationRunning if work is in progress. Queue: enqueues and returns
// immediately; ErrQueueFull when the buffer is exhausted.
func (m *Mutation[A, R]) Run(ctx context.Context, arg A) (R, error) {
	var zero R

	switch m.opts.Policy {
	case DropWhileRunning:
		if m.state.Peek() == MutationRunning {
			return zero, ErrMutationRunning
		}
	case Queue:
		m.mu.Lock()
		q := m.queue
		m.mu.Unlock()
		if q == nil {
			return zero, ErrClosed
		}
		select {
		case q <- arg:
			return zero, nil
		default:
			return zero, ErrQueueFull
		}
	}

	return m.execute(ctx, arg)
}

// drainQueue executes queued arguments sequentially.
func (m *Mutation[A, R]) drainQueue() {
	for arg := range m.queue {
		_, _ = m.execute(context.Background(), arg)
	}
}

// execute runs one attempt with the sequence-guarded commit used by
// Query: only the newest attempt may transition state.
func (m *Mutation[A, R]) execute(ctx context.Context, arg A) (R, error) {
	var zero R

	m.mu.Lock()
	m.seq++
	seq := m.seq
	if m.opts.Policy == CancelLatest && m.cancel != nil {
		m.cancel()
	}
	mctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.state.Set(MutationRunning)

	value, err := m.do(mctx, arg)

	m.mu.Lock()
	if m.seq != seq {
		m.mu.Unlock()
		return zero, err
	}
	m.cancel = nil

	if err != nil && mctx.Err() != nil &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		// Cancelled: no terminal transition, fall back to the last
		// settled state.
		prev := m.lastTerminal
		m.mu.Unlock()
		m.state.Set(prev)
		return zero, err
	}
	m.mu.Unlock()

	if err != nil {
		m.setTerminal(MutationError)
		reactive.Batch(func() {
			m.err.Set(err)
			m.state.Set(MutationError)
		})
		if m.opts.OnError != nil {
			m.opts.OnError(err)
		}
		if m.opts.OnSettled != nil {
			m.opts.OnSettled(zero, err)
		}
		return zero, err
	}

	m.setTerminal(MutationSuccess)
	reactive.Batch(func() {
		m.err.Set(nil)
		m.result.Set(value)
		m.state.Set(MutationSuccess)
	})
	if m.opts.OnSuccess != nil {
		m.opts.OnSuccess(value)
	}
	if m.opts.OnSettled != nil {
		m.opts.OnSettled(value, nil)
	}
	return value, nil
}

func (m *Mutation[A, R]) setTerminal(s MutationState) {
	m.mu.Lock()
	m.lastTerminal = s
	m.mu.Unlock()
}

// Close cancels in-flight work and stops the Queue policy's worker.
// Do not call Run concurrently with Close.
func (m *Mutation[A, R]) Close() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	q := m.queue
	m.queue = nil
	m.mu.Unlock()

	if q != nil {
		close(q)
	}
}
