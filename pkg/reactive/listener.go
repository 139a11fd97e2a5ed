package reactive

// Listener is anything that can be notified when a dependency changes.
// Effects and memos implement it; the test suite implements it directly.
type Listener interface {
	// MarkDirty notifies the listener that one of its dependencies changed.
	// For effects this schedules a re-run; for memos it invalidates the
	// cached value and propagates downstream.
	MarkDirty()

	// ID returns a unique identifier for this listener.
	// Used to deduplicate subscriptions and batched notifications.
	ID() uint64
}

// Cleanup is returned by effect functions to release resources.
// It runs before the effect re-runs and when the effect is disposed.
type Cleanup func()
