package reactive

// Typed signal wrappers with convenience methods for common value kinds.

// IntSignal wraps Signal[int] with arithmetic helpers.
type IntSignal struct {
	*Signal[int]
}

// NewIntSignal creates an IntSignal with the given initial value.
func NewIntSignal(initial int) *IntSignal {
	return &IntSignal{NewSignal(initial)}
}

// Inc increments the value by 1.
func (s *IntSignal) Inc() {
	s.Update(func(n int) int { return n + 1 })
}

// Dec decrements the value by 1.
func (s *IntSignal) Dec() {
	s.Update(func(n int) int { return n - 1 })
}

// Add adds n to the value.
func (s *IntSignal) Add(n int) {
	s.Update(func(v int) int { return v + n })
}

// BoolSignal wraps Signal[bool] with toggle helpers.
type BoolSignal struct {
	*Signal[bool]
}

// NewBoolSignal creates a BoolSignal with the given initial value.
func NewBoolSignal(initial bool) *BoolSignal {
	return &BoolSignal{NewSignal(initial)}
}

// Toggle flips the value.
func (s *BoolSignal) Toggle() {
	s.Update(func(v bool) bool { return !v })
}

// SliceSignal wraps Signal[[]T] with slice helpers.
// Mutating methods copy-on-write so previous reads stay valid.
type SliceSignal[T any] struct {
	*Signal[[]T]
}

// NewSliceSignal creates a SliceSignal with the given initial elements.
func NewSliceSignal[T any](initial []T) *SliceSignal[T] {
	return &SliceSignal[T]{NewSignal(initial)}
}

// Append appends items to the slice.
func (s *SliceSignal[T]) Append(items ...T) {
	s.Update(func(v []T) []T {
		next := make([]T, len(v), len(v)+len(items))
		copy(next, v)
		return append(next, items...)
	})
}

// RemoveAt removes the element at index i. Out-of-range indexes no-op.
func (s *SliceSignal[T]) RemoveAt(i int) {
	s.Update(func(v []T) []T {
		if i < 0 || i >= len(v) {
			return v
		}
		next := make([]T, 0, len(v)-1)
		next = append(next, v[:i]...)
		return append(next, v[i+1:]...)
	})
}

// Len returns the current length without tracking.
func (s *SliceSignal[T]) Len() int {
	return len(s.Peek())
}

// MapSignal wraps Signal[map[K]V] with map helpers.
// Mutating methods copy-on-write so previous reads stay valid.
type MapSignal[K comparable, V any] struct {
	*Signal[map[K]V]
}

// NewMapSignal creates a MapSignal with the given initial entries.
func NewMapSignal[K comparable, V any](initial map[K]V) *MapSignal[K, V] {
	return &MapSignal[K, V]{NewSignal(initial)}
}

// SetKey sets key to value.
func (s *MapSignal[K, V]) SetKey(key K, value V) {
	s.Update(func(v map[K]V) map[K]V {
		next := make(map[K]V, len(v)+1)
		for k, val := range v {
			next[k] = val
		}
		next[key] = value
		return next
	})
}

// DeleteKey removes key. A missing key still produces a fresh map value.
func (s *MapSignal[K, V]) DeleteKey(key K) {
	s.Update(func(v map[K]V) map[K]V {
		next := make(map[K]V, len(v))
		for k, val := range v {
			if k != key {
				next[k] = val
			}
		}
		return next
	})
}

// Len returns the current size without tracking.
func (s *MapSignal[K, V]) Len() int {
	return len(s.Peek())
}
