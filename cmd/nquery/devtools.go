package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nquery-dev/nquery/pkg/devtools"
	"github.com/nquery-dev/nquery/pkg/middleware"
	"github.com/nquery-dev/nquery/pkg/query"
)

func devtoolsCmd() *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "devtools",
		Short: "Run a demo query client with the inspection server",
		Long: `Start a query client backed by synthetic fetchers and serve the
devtools surface: /queries (cache snapshot), /events (websocket event
stream), and /metrics (Prometheus).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevtools(addr, interval)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9630", "listen address")
	cmd.Flags().DurationVar(&interval, "interval", 3*time.Second, "demo refetch interval")

	return cmd
}

func runDevtools(addr string, interval time.Duration) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	srv := devtools.NewServer(devtools.WithServerLogger(logger))

	client := query.NewClient(
		query.WithLogger(logger),
		query.WithInstrumentation(middleware.NewMetrics(), middleware.NewTracing(), srv),
	)
	defer client.Close()
	srv.Bind(client)

	registerDemoQueries(client, interval)
	client.StartSweeper(30 * time.Second)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	logger.Info("devtools: listening", "addr", addr)
	fmt.Fprintf(os.Stderr, "  snapshot:  http://%s/queries\n", addr)
	fmt.Fprintf(os.Stderr, "  events:    ws://%s/events\n", addr)
	fmt.Fprintf(os.Stderr, "  metrics:   http://%s/metrics\n", addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

// registerDemoQueries seeds the client with synthetic fetchers so the
// devtools surface has something to show.
func registerDemoQueries(client *query.Client, interval time.Duration) {
	slowFetch := func(min, max time.Duration, fail float64) query.Fetcher[string] {
		return func(ctx context.Context) (string, error) {
			delay := min + time.Duration(rand.Int63n(int64(max-min)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			if rand.Float64() < fail {
				return "", fmt.Errorf("synthetic fetch failure")
			}
			return fmt.Sprintf("payload-%d", rand.Intn(1000)), nil
		}
	}

	fast := query.New(client, "demo/fast", slowFetch(5*time.Millisecond, 40*time.Millisecond, 0),
		query.Options[string]{StaleTime: interval / 2, RefetchInterval: interval})
	flaky := query.New(client, "demo/flaky", slowFetch(20*time.Millisecond, 200*time.Millisecond, 0.3),
		query.Options[string]{StaleTime: interval, RefetchInterval: interval, RefetchOnReconnect: true})
	slow := query.New(client, "demo/slow", slowFetch(200*time.Millisecond, 900*time.Millisecond, 0.05),
		query.Options[string]{StaleTime: 2 * interval, RefetchInterval: 2 * interval, RefetchOnFocus: true})

	// Interval refetches only run while subscribed.
	fast.Subscribe()
	flaky.Subscribe()
	slow.Subscribe()
}
