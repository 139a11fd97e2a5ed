package reactive

import (
	"sync/atomic"
	"testing"
)

func TestEffectRunsOnceAtCreation(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	var runs atomic.Int32
	NewEffect(func() Cleanup {
		runs.Add(1)
		return nil
	}, InScope(rt.Scope()))

	if runs.Load() != 1 {
		t.Errorf("expected 1 initial run, got %d", runs.Load())
	}
}

func TestEffectRerunsOnDependencyChange(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	count := NewSignal(0)
	var runs atomic.Int32
	var last atomic.Int32

	NewEffect(func() Cleanup {
		runs.Add(1)
		last.Store(int32(count.Get()))
		return nil
	}, InScope(rt.Scope()))

	count.Set(7)
	rt.Wait()

	if runs.Load() != 2 {
		t.Errorf("expected 2 runs, got %d", runs.Load())
	}
	if last.Load() != 7 {
		t.Errorf("expected effect to observe 7, got %d", last.Load())
	}
}

func TestEffectEqualWriteDoesNotRerun(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	count := NewSignal(3)
	var runs atomic.Int32

	NewEffect(func() Cleanup {
		runs.Add(1)
		_ = count.Get()
		return nil
	}, InScope(rt.Scope()))

	count.Set(3)
	rt.Wait()

	if runs.Load() != 1 {
		t.Errorf("equal write should not rerun effect, got %d runs", runs.Load())
	}
}

func TestEffectConditionalDependencies(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	gate := NewSignal(true)
	a := NewSignal(1)
	b := NewSignal(2)
	var runs atomic.Int32

	NewEffect(func() Cleanup {
		runs.Add(1)
		if gate.Get() {
			_ = a.Get()
		} else {
			_ = b.Get()
		}
		return nil
	}, InScope(rt.Scope()))

	// Branch on a: b changes are invisible.
	b.Set(20)
	rt.Wait()
	if runs.Load() != 1 {
		t.Fatalf("untracked branch change reran effect, got %d runs", runs.Load())
	}

	gate.Set(false)
	rt.Wait()
	if runs.Load() != 2 {
		t.Fatalf("expected rerun on gate change, got %d runs", runs.Load())
	}

	// Now the roles flip: a is stale, b is live.
	a.Set(10)
	rt.Wait()
	if runs.Load() != 2 {
		t.Errorf("stale dependency reran effect, got %d runs", runs.Load())
	}

	b.Set(30)
	rt.Wait()
	if runs.Load() != 3 {
		t.Errorf("expected rerun on live dependency, got %d runs", runs.Load())
	}
}

func TestEffectCleanupBeforeRerunAndOnDispose(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	count := NewSignal(0)
	var cleanups atomic.Int32

	e := NewEffect(func() Cleanup {
		_ = count.Get()
		return func() {
			cleanups.Add(1)
		}
	}, InScope(rt.Scope()))

	count.Set(1)
	rt.Wait()
	if cleanups.Load() != 1 {
		t.Errorf("expected cleanup before rerun, got %d", cleanups.Load())
	}

	e.Dispose()
	if cleanups.Load() != 2 {
		t.Errorf("expected cleanup on dispose, got %d", cleanups.Load())
	}
}

func TestEffectDisposeStopsReruns(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	count := NewSignal(0)
	var runs atomic.Int32

	e := NewEffect(func() Cleanup {
		runs.Add(1)
		_ = count.Get()
		return nil
	}, InScope(rt.Scope()))

	e.Dispose()
	count.Set(1)
	rt.Wait()

	if runs.Load() != 1 {
		t.Errorf("disposed effect reran, got %d runs", runs.Load())
	}

	// Second dispose is harmless.
	e.Dispose()
}

func TestOnUpdateSkipsFirstRun(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	count := NewSignal(0)
	var calls atomic.Int32

	OnUpdate(func() {
		_ = count.Get()
	}, func() {
		calls.Add(1)
	}, InScope(rt.Scope()))

	if calls.Load() != 0 {
		t.Fatalf("callback ran on first run, got %d calls", calls.Load())
	}

	count.Set(1)
	rt.Wait()
	if calls.Load() != 1 {
		t.Errorf("expected 1 callback after change, got %d", calls.Load())
	}
}

func TestScopeDisposeDisposesEffects(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	scope := NewScope(rt.Scope())
	count := NewSignal(0)
	var runs atomic.Int32

	NewEffect(func() Cleanup {
		runs.Add(1)
		_ = count.Get()
		return nil
	}, InScope(scope))

	var cleaned atomic.Bool
	scope.OnCleanup(func() { cleaned.Store(true) })

	scope.Dispose()
	count.Set(1)
	rt.Wait()

	if runs.Load() != 1 {
		t.Errorf("effect survived scope disposal, got %d runs", runs.Load())
	}
	if !cleaned.Load() {
		t.Error("scope cleanup did not run")
	}
	if !scope.IsDisposed() {
		t.Error("scope should report disposed")
	}
}

func TestScopeOnCleanupAfterDisposeRunsImmediately(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	scope := NewScope(rt.Scope())
	scope.Dispose()

	var ran atomic.Bool
	scope.OnCleanup(func() { ran.Store(true) })
	if !ran.Load() {
		t.Error("cleanup on disposed scope should run immediately")
	}
}
