// Package observability provides the operational surface of the registry:
// structured JSON logging, Prometheus metrics, OpenTelemetry tracing, health
// probes, and graceful shutdown coordination.
//
// The Logger wraps log/slog with a small fluent API (WithField, WithError)
// and can be carried through a context.Context so request-scoped fields such
// as the request ID survive package boundaries.
//
// Metrics are registered against an explicit *prometheus.Registry rather
// than the global default so tests can construct isolated instances.
package observability
