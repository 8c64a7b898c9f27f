package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	providerKey  contextKey = "provider"
	modelKey     contextKey = "model"
	dialectKey   contextKey = "dialect"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithProvider adds the serving provider to the context.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, providerKey, provider)
}

// GetProvider retrieves the provider from the context.
func GetProvider(ctx context.Context) string {
	p, _ := ctx.Value(providerKey).(string)
	return p
}

// WithModel adds the requested model to the context.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, modelKey, model)
}

// GetModel retrieves the model from the context.
func GetModel(ctx context.Context) string {
	m, _ := ctx.Value(modelKey).(string)
	return m
}

// WithDialect adds the inbound dialect to the context.
func WithDialect(ctx context.Context, dialect string) context.Context {
	return context.WithValue(ctx, dialectKey, dialect)
}

// GetDialect retrieves the dialect from the context.
func GetDialect(ctx context.Context) string {
	d, _ := ctx.Value(dialectKey).(string)
	return d
}

// contextAttrs returns the request fields stored in ctx, plus the trace and
// span ids of a recording span.
func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var attrs []slog.Attr
	add := func(key, value string) {
		if value != "" {
			attrs = append(attrs, slog.String(key, value))
		}
	}
	add("request_id", GetRequestID(ctx))
	add("dialect", GetDialect(ctx))
	add("model", GetModel(ctx))
	add("provider", GetProvider(ctx))

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		add("trace_id", sc.TraceID().String())
		add("span_id", sc.SpanID().String())
	}
	return attrs
}
