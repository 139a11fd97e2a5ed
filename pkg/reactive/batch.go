package reactive

// Batch groups multiple signal writes into a single notification phase.
// All notifications triggered inside fn are collected, deduplicated by
// listener ID, and delivered once when the outermost batch completes.
// Dependent effects therefore run at most once and observe only the
// final values, never intermediates.
//
// Batches nest; notifications fire when the outermost batch returns.
//
//	reactive.Batch(func() {
//	    firstName.Set("Grace")
//	    lastName.Set("Hopper")
//	    age.Set(85)
//	})
func Batch(fn func()) {
	incrementBatchDepth()

	defer func() {
		if decrementBatchDepth() {
			deliverPendingNotify()
		}
	}()

	fn()
}

// deliverPendingNotify deduplicates queued listeners and marks them dirty.
func deliverPendingNotify() {
	pending := drainPendingNotify()
	if len(pending) == 0 {
		return
	}

	seen := make(map[uint64]bool, len(pending))
	for _, listener := range pending {
		id := listener.ID()
		if seen[id] {
			continue
		}
		seen[id] = true
		listener.MarkDirty()
	}
}

// Untracked runs fn without recording signal reads as dependencies.
// For a single read, prefer signal.Peek().
func Untracked(fn func()) {
	old := setCurrentListener(nil)
	defer setCurrentListener(old)
	fn()
}
