// Package middleware provides drop-in instrumentation for a query Client.
//
// This package includes:
//   - Prometheus metrics instrumentation
//   - OpenTelemetry tracing instrumentation
//
// Both implement query.Instrumentation and attach at client construction:
//
//	c := query.NewClient(
//	    query.WithInstrumentation(
//	        middleware.NewMetrics(),
//	        middleware.NewTracing(),
//	    ),
//	)
//
// # Prometheus Metrics
//
// Metrics recorded per client:
//   - nquery_query_fetches_total: fetch attempts by outcome
//   - nquery_query_fetch_duration_seconds: fetch attempt duration histogram
//   - nquery_query_cache_hits_total: fetches served from fresh cache
//   - nquery_query_live_queries: queries currently held in the cache
//
// Expose them with promhttp:
//
//	http.Handle("/metrics", promhttp.Handler())
//	go http.ListenAndServe(":9090", nil)
//
// # OpenTelemetry Tracing
//
// The tracing instrumentation emits one span per settled fetch attempt,
// named "nquery.fetch", carrying the outcome, status, and cache key.
// Spans are created retroactively when the attempt settles, timestamped
// to cover the attempt's duration.
package middleware
