package query

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientSameKeyReturnsSameQuery(t *testing.T) {
	c := NewClient()
	defer c.Close()

	var calls atomic.Int32
	first := New(c, "todos", func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 1, nil
	}, Options[int]{Lazy: true, StaleTime: time.Hour})

	// Second caller's fetcher and options are ignored.
	second := New(c, "todos", func(ctx context.Context) (int, error) {
		calls.Add(100)
		return 2, nil
	}, Options[int]{Lazy: true})

	if first != second {
		t.Fatal("expected identity-equal query for the same key")
	}

	if _, err := second.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected first caller's fetcher to win, counter = %d", calls.Load())
	}
}

func TestClientStructuredKeysCanonicalized(t *testing.T) {
	c := NewClient()
	defer c.Close()

	fetcher := func(ctx context.Context) (int, error) { return 0, nil }
	a := New(c, map[string]any{"page": 1, "sort": "asc"}, fetcher, Options[int]{Lazy: true})
	b := New(c, map[string]any{"sort": "asc", "page": 1}, fetcher, Options[int]{Lazy: true})

	if a != b {
		t.Error("semantically equal keys should map to one query")
	}
}

func TestClientKeyTypeMismatchPanics(t *testing.T) {
	c := NewClient()
	defer c.Close()

	New(c, "typed", func(ctx context.Context) (int, error) { return 0, nil }, Options[int]{Lazy: true})

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on key type mismatch")
		}
		if err, ok := r.(error); !ok || !errors.Is(err, ErrKeyType) {
			t.Errorf("expected ErrKeyType panic, got %v", r)
		}
	}()
	New(c, "typed", func(ctx context.Context) (string, error) { return "", nil }, Options[string]{Lazy: true})
}

func TestClientLookup(t *testing.T) {
	c := NewClient()
	defer c.Close()

	if _, ok := Lookup[int](c, "missing"); ok {
		t.Error("expected lookup miss")
	}

	q := New(c, "present", func(ctx context.Context) (int, error) { return 0, nil }, Options[int]{Lazy: true})

	got, ok := Lookup[int](c, "present")
	if !ok || got != q {
		t.Error("expected lookup to return the registered query")
	}

	if _, ok := Lookup[string](c, "present"); ok {
		t.Error("expected type-mismatched lookup to miss")
	}
}

func TestClientInvalidateRefetches(t *testing.T) {
	c := NewClient()
	defer c.Close()

	var calls atomic.Int32
	q := New(c, "inv", func(ctx context.Context) (int, error) {
		calls.Add(1)
		return int(calls.Load()), nil
	}, Options[int]{Lazy: true, StaleTime: time.Hour})

	if _, err := q.Fetch(context.Background()); err != nil {
		t.Fatalf("seed fetch: %v", err)
	}

	if err := c.Invalidate(context.Background(), "inv"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected forced refetch, got %d calls", calls.Load())
	}

	// Unknown key is a no-op.
	if err := c.Invalidate(context.Background(), "unknown"); err != nil {
		t.Errorf("unknown key should be a no-op, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("unknown key refetched something, got %d calls", calls.Load())
	}
}

func TestClientInvalidateMatches(t *testing.T) {
	c := NewClient()
	defer c.Close()

	fetched := make(chan string, 4)
	fetcher := func(key string) Fetcher[int] {
		return func(ctx context.Context) (int, error) {
			fetched <- key
			return 0, nil
		}
	}

	a := New(c, "todos/open", fetcher("todos/open"), Options[int]{Lazy: true, StaleTime: time.Hour})
	b := New(c, "todos/done", fetcher("todos/done"), Options[int]{Lazy: true, StaleTime: time.Hour})
	other := New(c, "users", fetcher("users"), Options[int]{Lazy: true, StaleTime: time.Hour})

	for _, q := range []*Query[int]{a, b, other} {
		if _, err := q.Fetch(context.Background()); err != nil {
			t.Fatalf("seed fetch: %v", err)
		}
	}
	drain(fetched)

	c.InvalidateMatches(context.Background(), func(m Meta) bool {
		return len(m.Key) >= 5 && m.Key[:5] == "todos"
	})

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case key := <-fetched:
			got[key] = true
		case <-time.After(time.Second):
			t.Fatalf("expected 2 matched refetches, got %v", got)
		}
	}
	if !got["todos/open"] || !got["todos/done"] {
		t.Errorf("wrong queries refetched: %v", got)
	}

	select {
	case key := <-fetched:
		t.Errorf("unmatched query %q refetched", key)
	case <-time.After(50 * time.Millisecond):
	}
}

func drain(ch chan string) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func TestClientFocusRefetchesStaleOptedInQueries(t *testing.T) {
	c := NewClient()
	defer c.Close()

	fetched := make(chan string, 4)
	fetcher := func(key string) Fetcher[int] {
		return func(ctx context.Context) (int, error) {
			fetched <- key
			return 0, nil
		}
	}

	optedIn := New(c, "focus/in", fetcher("focus/in"), Options[int]{Lazy: true, RefetchOnFocus: true})
	optedOut := New(c, "focus/out", fetcher("focus/out"), Options[int]{Lazy: true})

	for _, q := range []*Query[int]{optedIn, optedOut} {
		if _, err := q.Fetch(context.Background()); err != nil {
			t.Fatalf("seed fetch: %v", err)
		}
		release := q.Subscribe()
		defer release()
	}
	drain(fetched)

	// Zero StaleTime, so both are stale; only the opted-in one refetches.
	c.Focus(context.Background())

	select {
	case key := <-fetched:
		if key != "focus/in" {
			t.Errorf("expected focus/in refetch, got %q", key)
		}
	case <-time.After(time.Second):
		t.Fatal("focus refetch never fired")
	}

	select {
	case key := <-fetched:
		t.Errorf("unexpected focus refetch of %q", key)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientFocusSkipsUnsubscribed(t *testing.T) {
	c := NewClient()
	defer c.Close()

	fetched := make(chan string, 1)
	q := New(c, "focus/nosub", func(ctx context.Context) (int, error) {
		fetched <- "fetch"
		return 0, nil
	}, Options[int]{Lazy: true, RefetchOnFocus: true})

	if _, err := q.Fetch(context.Background()); err != nil {
		t.Fatalf("seed fetch: %v", err)
	}
	drain(fetched)

	c.Focus(context.Background())
	select {
	case <-fetched:
		t.Error("focus refetched an unsubscribed query")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientReconnectRefetchesErroredQueries(t *testing.T) {
	c := NewClient()
	defer c.Close()

	var healthy atomic.Bool
	fetched := make(chan struct{}, 2)
	q := New(c, "reconnect", func(ctx context.Context) (int, error) {
		fetched <- struct{}{}
		if !healthy.Load() {
			return 0, errors.New("offline")
		}
		return 1, nil
	}, Options[int]{Lazy: true, RefetchOnReconnect: true})

	release := q.Subscribe()
	defer release()

	if _, err := q.Fetch(context.Background()); err == nil {
		t.Fatal("expected seed fetch to fail")
	}
	drain2(fetched)

	healthy.Store(true)
	c.Reconnect(context.Background())

	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatal("reconnect refetch never fired")
	}

	// Wait for the commit, then confirm recovery.
	deadline := time.After(time.Second)
	for q.StatusSignal().Peek() != Success {
		select {
		case <-deadline:
			t.Fatal("query never recovered after reconnect")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func drain2(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func TestClientSweepRemovesExpiredUnsubscribed(t *testing.T) {
	c := NewClient()
	defer c.Close()

	fetcher := func(ctx context.Context) (int, error) { return 0, nil }

	expired := New(c, "sweep/expired", fetcher, Options[int]{Lazy: true, CacheTime: time.Millisecond})
	kept := New(c, "sweep/kept", fetcher, Options[int]{Lazy: true, CacheTime: time.Hour})
	subscribed := New(c, "sweep/subscribed", fetcher, Options[int]{Lazy: true, CacheTime: time.Millisecond})

	for _, q := range []*Query[int]{expired, kept, subscribed} {
		if _, err := q.Fetch(context.Background()); err != nil {
			t.Fatalf("seed fetch: %v", err)
		}
	}
	release := subscribed.Subscribe()
	defer release()

	time.Sleep(10 * time.Millisecond)

	if removed := c.Sweep(); removed != 1 {
		t.Errorf("expected 1 swept query, got %d", removed)
	}

	if _, ok := Lookup[int](c, "sweep/expired"); ok {
		t.Error("expired query still cached")
	}
	if _, ok := Lookup[int](c, "sweep/kept"); !ok {
		t.Error("unexpired query swept")
	}
	if _, ok := Lookup[int](c, "sweep/subscribed"); !ok {
		t.Error("subscribed query swept")
	}
}

func TestClientSweepRemovesNeverFetchedIdle(t *testing.T) {
	c := NewClient()
	defer c.Close()

	New(c, "sweep/idle", func(ctx context.Context) (int, error) { return 0, nil },
		Options[int]{Lazy: true})

	if removed := c.Sweep(); removed != 1 {
		t.Errorf("expected idle never-fetched query swept, got %d", removed)
	}
}

func TestClientSweepRemovesErroredUnused(t *testing.T) {
	c := NewClient()
	defer c.Close()

	q := New(c, "sweep/errored", func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	}, Options[int]{Lazy: true, CacheTime: time.Millisecond})

	if _, err := q.Refetch(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	if q.Status() != Error {
		t.Fatalf("expected Error status, got %v", q.Status())
	}

	time.Sleep(10 * time.Millisecond)

	// Errored with no subscribers and no committed data: ages from the
	// failed attempt, not kept forever.
	if removed := c.Sweep(); removed != 1 {
		t.Errorf("expected errored unused query swept, got %d", removed)
	}
	if _, ok := Lookup[int](c, "sweep/errored"); ok {
		t.Error("errored query still cached")
	}
}

func TestClientSnapshot(t *testing.T) {
	c := NewClient()
	defer c.Close()

	q := New(c, "snap", func(ctx context.Context) (int, error) { return 0, nil },
		Options[int]{Lazy: true, StaleTime: time.Hour})
	if _, err := q.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	snapshot := c.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(snapshot))
	}

	m := snapshot[0]
	if m.Key != "snap" {
		t.Errorf("expected key %q, got %q", "snap", m.Key)
	}
	if m.Status != Success {
		t.Errorf("expected Success, got %v", m.Status)
	}
	if m.Stale {
		t.Error("expected fresh entry")
	}
	if m.LastUpdated.IsZero() {
		t.Error("expected LastUpdated set")
	}
}

func TestClientCloseRejectsNew(t *testing.T) {
	c := NewClient()
	c.Close()
	c.Close() // idempotent

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on closed client")
		}
		if err, ok := r.(error); !ok || !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed panic, got %v", r)
		}
	}()
	New(c, "late", func(ctx context.Context) (int, error) { return 0, nil }, Options[int]{Lazy: true})
}

func TestClientStartSweeper(t *testing.T) {
	c := NewClient()
	defer c.Close()

	New(c, "sweeper/idle", func(ctx context.Context) (int, error) { return 0, nil },
		Options[int]{Lazy: true})

	c.StartSweeper(5 * time.Millisecond)

	deadline := time.After(time.Second)
	for {
		if _, ok := Lookup[int](c, "sweeper/idle"); !ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("background sweeper never removed the idle query")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
