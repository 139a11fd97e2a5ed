package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nquery-dev/nquery/pkg/query"
)

// Default tracer name for nQuery clients.
const defaultTracerName = "nquery"

// TracingConfig configures the OpenTelemetry instrumentation.
type TracingConfig struct {
	// TracerName is the name of the tracer (default: "nquery").
	TracerName string

	// IncludeKey includes the canonical cache key in span attributes.
	// Keys can carry user data; enabled by default, disable if yours do.
	IncludeKey bool

	// AttributeExtractor adds custom attributes from query metadata.
	AttributeExtractor func(m query.Meta) []attribute.KeyValue

	// tracer is the resolved tracer instance.
	tracer trace.Tracer
}

// TracingOption configures the OpenTelemetry instrumentation.
type TracingOption func(*TracingConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TracingOption {
	return func(c *TracingConfig) {
		c.TracerName = name
	}
}

// WithIncludeKey enables or disables the cache-key span attribute.
func WithIncludeKey(include bool) TracingOption {
	return func(c *TracingConfig) {
		c.IncludeKey = include
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(m query.Meta) []attribute.KeyValue) TracingOption {
	return func(c *TracingConfig) {
		c.AttributeExtractor = extractor
	}
}

// Tracing emits one span per settled fetch attempt.
// It implements query.Instrumentation.
type Tracing struct {
	query.NopInstrumentation

	cfg TracingConfig
}

// NewTracing creates OpenTelemetry instrumentation for a query client.
func NewTracing(opts ...TracingOption) *Tracing {
	cfg := TracingConfig{
		TracerName: defaultTracerName,
		IncludeKey: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.tracer = otel.Tracer(cfg.TracerName)

	return &Tracing{cfg: cfg}
}

// FetchFinished implements query.Instrumentation. The span covers the
// attempt's duration; it is created retroactively from the elapsed time
// since fetch hooks carry no cross-call context.
func (t *Tracing) FetchFinished(m query.Meta, outcome query.Outcome, elapsed time.Duration, err error) {
	end := time.Now()
	start := end.Add(-elapsed)

	attrs := []attribute.KeyValue{
		attribute.String("nquery.outcome", outcome.String()),
		attribute.String("nquery.status", m.Status.String()),
		attribute.Int("nquery.subscribers", m.Subscribers),
	}
	if t.cfg.IncludeKey {
		attrs = append(attrs, attribute.String("nquery.key", m.Key))
	}
	if t.cfg.AttributeExtractor != nil {
		attrs = append(attrs, t.cfg.AttributeExtractor(m)...)
	}

	_, span := t.cfg.tracer.Start(context.Background(), "nquery.fetch",
		trace.WithTimestamp(start),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	switch outcome {
	case query.OutcomeError:
		span.SetStatus(codes.Error, "fetch failed")
		if err != nil {
			span.RecordError(err)
		}
	default:
		span.SetStatus(codes.Ok, "")
	}

	span.End(trace.WithTimestamp(end))
}
