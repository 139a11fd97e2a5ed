package reactive

import (
	"log/slog"
	"sync"
)

// Scheduler collects dirty effects and re-runs them in batches.
//
// Re-run requests are deduplicated by effect ID, so a flush runs each
// dirty effect at most once no matter how many of its dependencies
// changed. Flush order is the order effects entered the pending set.
//
// The pending set is snapshotted when a flush begins: effects that become
// dirty while the flush is draining are deferred to the next flush. A
// panic inside one effect is recovered and logged, and does not prevent
// the remaining effects in the same flush from running.
type Scheduler struct {
	mu      sync.Mutex
	pending []*Effect
	queued  map[uint64]struct{}

	// active counts flushes currently draining, for Wait.
	active int
	idle   *sync.Cond

	wake   chan struct{}
	done   chan struct{}
	closed bool

	logger *slog.Logger
}

func newScheduler(logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		queued: make(map[uint64]struct{}),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// schedule queues an effect for the next flush, deduplicating by ID,
// and wakes the flush loop.
func (s *Scheduler) schedule(e *Effect) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, ok := s.queued[e.id]; ok {
		s.mu.Unlock()
		return
	}
	s.queued[e.id] = struct{}{}
	s.pending = append(s.pending, e)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Flush synchronously runs every effect pending at the time of the call.
// Effects scheduled during the drain run in a later flush.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	for _, e := range batch {
		delete(s.queued, e.id)
	}
	s.active++
	s.mu.Unlock()

	for _, e := range batch {
		s.runOne(e)
	}

	s.mu.Lock()
	s.active--
	s.idle.Broadcast()
	s.mu.Unlock()
}

// runOne executes a single effect, containing panics so the rest of the
// batch still runs.
func (s *Scheduler) runOne(e *Effect) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("reactive: effect panicked during flush",
				"effect", e.id, "panic", r)
		}
	}()

	if e.pending.Load() {
		e.run()
	}
}

// Wait blocks until no effects are pending and no flush is draining.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.pending) > 0 || s.active > 0 {
		s.idle.Wait()
	}
}

// loop drains the pending set whenever schedule signals new work.
// It exits when the scheduler closes.
func (s *Scheduler) loop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
			s.Flush()
		}
	}
}

// close stops the flush loop and rejects further scheduling.
// Pending effects are dropped; the owning Runtime flushes before closing.
func (s *Scheduler) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = nil
	s.queued = make(map[uint64]struct{})
	s.idle.Broadcast()
	s.mu.Unlock()

	close(s.done)
}
