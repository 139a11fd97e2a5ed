package query

import "errors"

// ErrClosed is returned when an operation is attempted on a closed Client.
var ErrClosed = errors.New("query: client closed")

// ErrKeyType is raised when a query is requested for an existing key with
// a different value type than the stored query. Keys identify queries, so
// the type must agree everywhere the key is used.
var ErrKeyType = errors.New("query: existing query for key has a different type")

// ErrMutationRunning is returned by Run on a Mutation with the
// DropWhileRunning policy while work is in progress. Callers can ignore
// it; dropping rapid repeats is the policy's purpose.
var ErrMutationRunning = errors.New("query: mutation already running")

// ErrQueueFull is returned by Run on a Mutation with the Queue policy
// when the queue cannot accept more work.
var ErrQueueFull = errors.New("query: mutation queue full")
