package nquery

import (
	"log/slog"
	"time"

	"github.com/nquery-dev/nquery/pkg/query"
)

// Config is the application-level configuration consumed by New. The
// zero value is usable.
type Config struct {
	// Logger is the structured logger shared by the runtime and client.
	// If nil, slog.Default() is used.
	Logger *slog.Logger

	// SweepInterval is how often unused queries are evicted from the
	// cache. Zero disables the background sweeper; Sweep can still be
	// called manually.
	SweepInterval time.Duration

	// Instrumentation hooks receive query lifecycle events (metrics,
	// tracing, devtools). Hooks fire in order.
	Instrumentation []query.Instrumentation
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
