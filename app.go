package nquery

import (
	"github.com/nquery-dev/nquery/pkg/query"
	"github.com/nquery-dev/nquery/pkg/reactive"
)

// App bundles an isolated reactive runtime with a query client so an
// application (or test) gets a self-contained reactive world with one
// constructor and one Close.
type App struct {
	runtime *reactive.Runtime
	client  *query.Client
}

// New creates an App from cfg.
//
//	app := nquery.New(nquery.Config{
//	    Instrumentation: []query.Instrumentation{middleware.NewMetrics()},
//	})
//	defer app.Close()
func New(cfg Config) *App {
	logger := cfg.logger()

	a := &App{
		runtime: reactive.NewRuntime(reactive.WithLogger(logger)),
		client: query.NewClient(
			query.WithLogger(logger),
			query.WithInstrumentation(cfg.Instrumentation...),
		),
	}

	if cfg.SweepInterval > 0 {
		a.client.StartSweeper(cfg.SweepInterval)
	}

	return a
}

// Runtime returns the app's reactive runtime.
func (a *App) Runtime() *reactive.Runtime {
	return a.runtime
}

// Client returns the app's query client.
func (a *App) Client() *query.Client {
	return a.client
}

// Scope returns the runtime's root scope. Effects created with
// reactive.InScope(app.Scope()) are disposed by Close.
func (a *App) Scope() *reactive.Scope {
	return a.runtime.Scope()
}

// Wait blocks until the app's scheduler has settled. Useful in tests
// after signal writes.
func (a *App) Wait() {
	a.runtime.Wait()
}

// Close disposes the client's queries and shuts down the runtime.
func (a *App) Close() {
	a.client.Close()
	a.runtime.Close()
}
