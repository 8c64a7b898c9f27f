// Package tracing configures OpenTelemetry tracing for the gateway.
//
// New installs an OTLP/gRPC tracer provider and the W3C trace context
// propagator as otel globals. Packages create spans through
// otel.Tracer(tracing.InstrumentationName), so they trace into whatever
// provider is installed and into a noop one when tracing is disabled.
//
// The proxy wraps its router in HTTPMiddleware, which continues a client's
// traceparent and opens the server span. The dispatcher nests a "dispatch"
// span and one "dispatch.attempt" span per provider call beneath it.
//
// Gateway attributes use the prism namespace: prism.provider, prism.model,
// prism.dialect, prism.request_id, prism.stream, prism.routing.attempt and
// prism.tokens.*.
package tracing
