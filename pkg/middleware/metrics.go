package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nquery-dev/nquery/pkg/query"
)

// MetricsConfig configures the Prometheus instrumentation.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "nquery").
	Namespace string

	// Subsystem is the metrics subsystem (default: "query").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for fetch duration.
	// Default: prometheus.DefBuckets.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus instrumentation.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the fetch-duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "nquery",
		Subsystem: "query",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics records query lifecycle events as Prometheus metrics.
// It implements query.Instrumentation.
type Metrics struct {
	query.NopInstrumentation

	fetches   *prometheus.CounterVec
	durations prometheus.Histogram
	cacheHits prometheus.Counter
	live      prometheus.Gauge
}

// NewMetrics creates Prometheus instrumentation for a query client.
//
//	c := query.NewClient(
//	    query.WithInstrumentation(middleware.NewMetrics()),
//	)
func NewMetrics(opts ...MetricsOption) *Metrics {
	cfg := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	factory := promauto.With(cfg.Registry)

	return &Metrics{
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "fetches_total",
			Help:        "Fetch attempts by outcome.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"outcome"}),
		durations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "fetch_duration_seconds",
			Help:        "Fetch attempt duration.",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "cache_hits_total",
			Help:        "Fetch calls satisfied from fresh cached data.",
			ConstLabels: cfg.ConstLabels,
		}),
		live: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "live_queries",
			Help:        "Queries currently held in the cache.",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

// QueryRegistered implements query.Instrumentation.
func (m *Metrics) QueryRegistered(query.Meta) {
	m.live.Inc()
}

// FetchFinished implements query.Instrumentation.
func (m *Metrics) FetchFinished(_ query.Meta, outcome query.Outcome, elapsed time.Duration, _ error) {
	m.fetches.WithLabelValues(outcome.String()).Inc()
	m.durations.Observe(elapsed.Seconds())
}

// CacheHit implements query.Instrumentation.
func (m *Metrics) CacheHit(query.Meta) {
	m.cacheHits.Inc()
}

// Swept implements query.Instrumentation.
func (m *Metrics) Swept(query.Meta) {
	m.live.Dec()
}
