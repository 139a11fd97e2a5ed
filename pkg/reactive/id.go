package reactive

import "sync/atomic"

// idCounter is the source of unique IDs for all reactive primitives.
var idCounter atomic.Uint64

// nextID returns the next unique ID. IDs are monotonic and never reused.
func nextID() uint64 {
	return idCounter.Add(1)
}
