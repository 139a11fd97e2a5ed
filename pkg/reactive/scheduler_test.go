package reactive

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
)

// quietRuntime suppresses the panic-recovery log line in tests that
// deliberately panic.
func quietRuntime() *Runtime {
	return NewRuntime(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestSchedulerPanicIsolation(t *testing.T) {
	rt := quietRuntime()
	defer rt.Close()

	trigger := NewSignal(0)
	var healthyRuns atomic.Int32

	NewEffect(func() Cleanup {
		if trigger.Get() > 0 {
			panic("boom")
		}
		return nil
	}, InScope(rt.Scope()))

	NewEffect(func() Cleanup {
		_ = trigger.Get()
		healthyRuns.Add(1)
		return nil
	}, InScope(rt.Scope()))

	trigger.Set(1)
	rt.Wait()

	if healthyRuns.Load() != 2 {
		t.Errorf("panic in one effect starved another, got %d runs", healthyRuns.Load())
	}

	// The scheduler keeps working after a panic.
	trigger.Set(0)
	rt.Wait()
	if healthyRuns.Load() != 3 {
		t.Errorf("scheduler dead after panic, got %d runs", healthyRuns.Load())
	}
}

func TestSchedulerCascadeSettlesBeforeWait(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	input := NewSignal(0)
	derived := NewSignal(0)
	var final atomic.Int32

	// First effect writes a second signal; the downstream effect is
	// scheduled into a later flush. Wait must cover the whole cascade.
	NewEffect(func() Cleanup {
		derived.Set(input.Get() * 2)
		return nil
	}, InScope(rt.Scope()))

	NewEffect(func() Cleanup {
		final.Store(int32(derived.Get()))
		return nil
	}, InScope(rt.Scope()))

	input.Set(21)
	rt.Wait()

	if final.Load() != 42 {
		t.Errorf("expected cascade to settle at 42, got %d", final.Load())
	}
}

func TestSchedulerDeduplicatesPendingEffect(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	a := NewSignal(0)
	b := NewSignal(0)
	var runs atomic.Int32

	NewEffect(func() Cleanup {
		runs.Add(1)
		_ = a.Get()
		_ = b.Get()
		return nil
	}, InScope(rt.Scope()))

	// Both writes land in one batch, so the effect enters the pending
	// set exactly once.
	Batch(func() {
		a.Set(1)
		b.Set(1)
	})
	rt.Wait()

	if runs.Load() != 2 {
		t.Errorf("expected exactly one rerun, got %d total runs", runs.Load())
	}
}

func TestManualFlushRunsPendingEffects(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	count := NewSignal(0)
	var last atomic.Int32

	NewEffect(func() Cleanup {
		last.Store(int32(count.Get()))
		return nil
	}, InScope(rt.Scope()))

	count.Set(9)
	rt.Flush()
	rt.Wait()

	if last.Load() != 9 {
		t.Errorf("expected 9 after flush, got %d", last.Load())
	}
}

func TestRuntimeCloseIsIdempotentAndStopsEffects(t *testing.T) {
	rt := NewRuntime()

	count := NewSignal(0)
	var runs atomic.Int32

	NewEffect(func() Cleanup {
		runs.Add(1)
		_ = count.Get()
		return nil
	}, InScope(rt.Scope()))

	rt.Close()
	rt.Close()

	count.Set(1)
	if runs.Load() != 1 {
		t.Errorf("effect ran after runtime close, got %d runs", runs.Load())
	}
}

func TestIndependentRuntimesAreIsolated(t *testing.T) {
	rt1 := NewRuntime()
	defer rt1.Close()
	rt2 := NewRuntime()
	defer rt2.Close()

	count := NewSignal(0)
	var runs1, runs2 atomic.Int32

	NewEffect(func() Cleanup {
		runs1.Add(1)
		_ = count.Get()
		return nil
	}, InScope(rt1.Scope()))

	NewEffect(func() Cleanup {
		runs2.Add(1)
		_ = count.Get()
		return nil
	}, InScope(rt2.Scope()))

	rt1.Close()

	count.Set(1)
	rt2.Wait()

	if runs1.Load() != 1 {
		t.Errorf("effect on closed runtime reran, got %d runs", runs1.Load())
	}
	if runs2.Load() != 2 {
		t.Errorf("surviving runtime's effect should rerun, got %d runs", runs2.Load())
	}
}
