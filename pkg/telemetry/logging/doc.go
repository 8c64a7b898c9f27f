// Package logging builds the process logger.
//
// Logging goes through log/slog everywhere. New returns a *slog.Logger
// whose Handler does two things on top of the JSON or text handler:
//
//   - appends request fields carried in the context (request_id, dialect,
//     model, provider, and the trace and span ids of an active span), so
//     slog.InfoContext(ctx, ...) calls are correlated without passing ids
//     around;
//   - redacts credentials when RedactPII is set. Values under keys such as
//     api_key or authorization are masked; every string value and the
//     message are scanned for provider keys (sk-, sk-ant-, AIza), bearer
//     tokens and custom patterns from telemetry.logging.redact_patterns.
//
// Usage:
//
//	logger, err := logging.Setup(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil { ... }
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	slog.InfoContext(ctx, "request dispatched", "api_key", key) // request_id added, key masked
package logging
