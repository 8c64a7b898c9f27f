// Package telemetry groups the gateway's observability packages.
//
//   - logging: slog handler with credential redaction and request context
//     fields
//   - metrics: Prometheus collector fed by the dispatcher and the registry
//   - tracing: OpenTelemetry setup, attributes and HTTP propagation
//   - health: liveness, readiness and version endpoints
//
// The server wires all four from the telemetry section of the config.
package telemetry
