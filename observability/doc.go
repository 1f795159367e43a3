// Package observability wires OpenTelemetry tracing and metrics export and
// the Prometheus collectors served on /metrics.
//
// Metrics records each event once and fans it out to both backends: the
// OTLP meter (when enabled) and a Prometheus registry.
package observability
