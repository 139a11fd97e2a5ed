package reactive

import (
	"sync"
	"testing"
)

// testListener counts MarkDirty calls for subscription assertions.
type testListener struct {
	id         uint64
	mu         sync.Mutex
	dirtyCount int
}

func newTestListener() *testListener {
	return &testListener{id: nextID()}
}

func (l *testListener) MarkDirty() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dirtyCount++
}

func (l *testListener) ID() uint64 {
	return l.id
}

func (l *testListener) getDirtyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dirtyCount
}

func TestSignalBasic(t *testing.T) {
	count := NewSignal(0)

	if count.Get() != 0 {
		t.Errorf("expected initial value 0, got %d", count.Get())
	}

	count.Set(5)
	if count.Get() != 5 {
		t.Errorf("expected value 5, got %d", count.Get())
	}

	count.Update(func(n int) int { return n * 2 })
	if count.Get() != 10 {
		t.Errorf("expected value 10, got %d", count.Get())
	}
}

func TestSignalPeek(t *testing.T) {
	count := NewSignal(42)

	listener := newTestListener()
	WithListener(listener, func() {
		if value := count.Peek(); value != 42 {
			t.Errorf("expected 42, got %d", value)
		}
	})

	count.Set(100)
	if listener.getDirtyCount() != 0 {
		t.Errorf("Peek should not subscribe listener, got %d notifications", listener.getDirtyCount())
	}
}

func TestSignalSubscription(t *testing.T) {
	count := NewSignal(0)
	listener := newTestListener()

	WithListener(listener, func() {
		_ = count.Get()
	})

	count.Set(1)
	if listener.getDirtyCount() != 1 {
		t.Errorf("expected 1 notification, got %d", listener.getDirtyCount())
	}

	// Equal write is a no-op.
	count.Set(1)
	if listener.getDirtyCount() != 1 {
		t.Errorf("same value should not notify, got %d", listener.getDirtyCount())
	}

	count.Set(2)
	if listener.getDirtyCount() != 2 {
		t.Errorf("expected 2 notifications, got %d", listener.getDirtyCount())
	}
}

func TestSignalNoTrackingOutsideContext(t *testing.T) {
	count := NewSignal(0)
	listener := newTestListener()

	_ = count.Get()

	WithListener(listener, func() {
		// No read here.
	})

	count.Set(1)
	if listener.getDirtyCount() != 0 {
		t.Errorf("expected 0 notifications when not tracking, got %d", listener.getDirtyCount())
	}
}

func TestSignalMultipleSubscribers(t *testing.T) {
	count := NewSignal(0)
	listeners := []*testListener{newTestListener(), newTestListener(), newTestListener()}

	for _, l := range listeners {
		WithListener(l, func() {
			_ = count.Get()
		})
	}

	count.Set(1)
	for i, l := range listeners {
		if l.getDirtyCount() != 1 {
			t.Errorf("listener %d expected 1 notification, got %d", i, l.getDirtyCount())
		}
	}
}

func TestSignalDeduplicateSubscription(t *testing.T) {
	count := NewSignal(0)
	listener := newTestListener()

	WithListener(listener, func() {
		_ = count.Get()
		_ = count.Get()
		_ = count.Get()
	})

	count.Set(1)
	if listener.getDirtyCount() != 1 {
		t.Errorf("expected 1 notification (deduplicated), got %d", listener.getDirtyCount())
	}
}

func TestSignalCustomEquals(t *testing.T) {
	type user struct {
		ID   int
		Name string
	}

	userSignal := NewSignal(user{ID: 1, Name: "Alice"}).WithEquals(func(a, b user) bool {
		return a.ID == b.ID
	})

	listener := newTestListener()
	WithListener(listener, func() {
		_ = userSignal.Get()
	})

	// Same ID under custom equality, no notification.
	userSignal.Set(user{ID: 1, Name: "Alice Smith"})
	if listener.getDirtyCount() != 0 {
		t.Errorf("custom equals should suppress notification, got %d", listener.getDirtyCount())
	}

	userSignal.Set(user{ID: 2, Name: "Bob"})
	if listener.getDirtyCount() != 1 {
		t.Errorf("expected 1 notification, got %d", listener.getDirtyCount())
	}
}

func TestSignalDefaultEqualsDeep(t *testing.T) {
	s := NewSignal([]int{1, 2, 3})
	listener := newTestListener()
	WithListener(listener, func() {
		_ = s.Get()
	})

	// Equal slice contents compare equal under DeepEqual.
	s.Set([]int{1, 2, 3})
	if listener.getDirtyCount() != 0 {
		t.Errorf("deep-equal write should not notify, got %d", listener.getDirtyCount())
	}

	s.Set([]int{1, 2, 3, 4})
	if listener.getDirtyCount() != 1 {
		t.Errorf("expected 1 notification, got %d", listener.getDirtyCount())
	}
}

func TestSignalSubscribeCallback(t *testing.T) {
	count := NewSignal(0)

	var got []int
	unsubscribe := count.Subscribe(func(v int) {
		got = append(got, v)
	})

	count.Set(1)
	count.Set(1) // equal, suppressed
	count.Set(2)

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("expected callback values [1 2], got %v", got)
	}

	unsubscribe()
	count.Set(3)
	if len(got) != 2 {
		t.Errorf("callback ran after unsubscribe, got %v", got)
	}

	// Idempotent.
	unsubscribe()
}

func TestSignalConcurrentWrites(t *testing.T) {
	count := NewSignal(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			count.Update(func(n int) int { return n + 1 })
		}()
	}
	wg.Wait()

	if count.Get() != 50 {
		t.Errorf("expected 50 after concurrent updates, got %d", count.Get())
	}
}
