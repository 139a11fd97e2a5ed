package reactive

import (
	"runtime"
	"sync"
)

// trackingContext holds the reactive state for one goroutine: which
// listener is currently recording dependencies, which scope owns newly
// created effects, and the batch bookkeeping.
type trackingContext struct {
	// currentListener is what signal reads subscribe.
	// nil means reads do not create subscriptions.
	currentListener Listener

	// currentScope owns effects created on this goroutine.
	currentScope *Scope

	// batchDepth tracks nested Batch calls. While > 0, notifications
	// queue instead of firing.
	batchDepth int

	// pendingNotify accumulates listeners to notify when the outermost
	// batch completes. Deduplicated by ID before notification.
	pendingNotify []Listener
}

// trackingContexts stores per-goroutine tracking state.
var trackingContexts sync.Map

// goroutineID extracts the current goroutine's ID from the runtime stack.
// Implementation detail; never exposed.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	// The stack header is "goroutine <id> ".
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] == ' ' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

func getTrackingContext() *trackingContext {
	gid := goroutineID()

	if ctx, ok := trackingContexts.Load(gid); ok {
		return ctx.(*trackingContext)
	}

	ctx := &trackingContext{}
	trackingContexts.Store(gid, ctx)
	return ctx
}

// getCurrentListener returns the listener recording dependencies on this
// goroutine, or nil when no tracking is active.
func getCurrentListener() Listener {
	return getTrackingContext().currentListener
}

// setCurrentListener installs a listener and returns the previous one so
// it can be restored. This single-slot save/restore forms the listener
// stack that supports nested effect creation.
func setCurrentListener(l Listener) Listener {
	ctx := getTrackingContext()
	old := ctx.currentListener
	ctx.currentListener = l
	return old
}

func getCurrentScope() *Scope {
	return getTrackingContext().currentScope
}

func setCurrentScope(s *Scope) *Scope {
	ctx := getTrackingContext()
	old := ctx.currentScope
	ctx.currentScope = s
	return old
}

func getBatchDepth() int {
	return getTrackingContext().batchDepth
}

func incrementBatchDepth() {
	getTrackingContext().batchDepth++
}

// decrementBatchDepth returns true when the outermost batch completed.
func decrementBatchDepth() bool {
	ctx := getTrackingContext()
	ctx.batchDepth--
	return ctx.batchDepth == 0
}

func queuePendingNotify(l Listener) {
	ctx := getTrackingContext()
	ctx.pendingNotify = append(ctx.pendingNotify, l)
}

func drainPendingNotify() []Listener {
	ctx := getTrackingContext()
	pending := ctx.pendingNotify
	ctx.pendingNotify = nil
	return pending
}

// WithListener runs fn with l installed as the tracking listener.
// Used by memos internally and by tests to observe subscriptions.
func WithListener(l Listener, fn func()) {
	old := setCurrentListener(l)
	defer setCurrentListener(old)
	fn()
}

// WithScope runs fn with the given scope owning any effects it creates.
// Use this when spawning goroutines that create reactive primitives on
// behalf of an existing scope:
//
//	go func() {
//	    reactive.WithScope(scope, func() {
//	        reactive.NewEffect(...)
//	    })
//	}()
func WithScope(s *Scope, fn func()) {
	old := setCurrentScope(s)
	defer setCurrentScope(old)
	fn()
}
