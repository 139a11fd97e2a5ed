// Package reactive provides the nQuery reactive core: signals, effects,
// memos, and the batching scheduler that drives them.
//
// # Core Types
//
// Signal[T] is a reactive value container:
//
//	count := reactive.NewSignal(0)
//	value := count.Get()  // Read (subscribes the current listener)
//	count.Set(5)          // Write (notifies dependents if changed)
//	count.Update(func(n int) int { return n + 1 })
//
// Memo[T] is a cached derived computation:
//
//	doubled := reactive.NewMemo(func() int { return count.Get() * 2 })
//
// Effect runs side effects when dependencies change:
//
//	e := reactive.NewEffect(func() reactive.Cleanup {
//	    fmt.Println("count is", count.Get())
//	    return nil
//	})
//	defer e.Dispose()
//
// # Scheduling
//
// Effects do not re-run inline on every write. A dirty effect is queued on
// its Runtime's Scheduler, deduplicated, and executed during the next
// flush. Multiple synchronous writes therefore trigger each dependent
// effect at most once, and effects observe only final values:
//
//	reactive.Batch(func() {
//	    first.Set("Ada")
//	    last.Set("Lovelace")
//	})
//	rt.Wait() // effects ran once, seeing both new values
//
// # Runtimes
//
// A Runtime is an explicit, self-contained reactive context: it owns the
// scheduler, the root Scope, and the logger. Independent runtimes do not
// share state, which keeps tests isolated. Package-level constructors use
// a process-wide default Runtime.
//
// # Thread Safety
//
// All primitives are safe for concurrent use. Dependency tracking is
// per-goroutine; use WithScope when spawning goroutines that create
// effects belonging to an existing scope.
package reactive
