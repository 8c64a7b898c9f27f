package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. Gateway-specific keys live under "prism.".
const (
	AttrProvider  = "prism.provider"
	AttrModel     = "prism.model"
	AttrDialect   = "prism.dialect"
	AttrRequestID = "prism.request_id"
	AttrStream    = "prism.stream"
	AttrStrategy  = "prism.routing.strategy"
	AttrAttempt   = "prism.routing.attempt"
	AttrAttempts  = "prism.routing.attempts"

	AttrTokensPrompt     = "prism.tokens.prompt"
	AttrTokensCompletion = "prism.tokens.completion"
	AttrTokensTotal      = "prism.tokens.total"

	AttrErrorType    = "prism.error.type"
	AttrErrorMessage = "error.message"
)

// SetProviderAttributes sets the provider and model of an attempt span.
func SetProviderAttributes(span trace.Span, provider, model string) {
	span.SetAttributes(
		attribute.String(AttrProvider, provider),
		attribute.String(AttrModel, model),
	)
}

// SetRequestAttributes sets the client-facing request attributes.
func SetRequestAttributes(span trace.Span, requestID, dialect, model string, stream bool) {
	span.SetAttributes(
		attribute.String(AttrRequestID, requestID),
		attribute.String(AttrDialect, dialect),
		attribute.String(AttrModel, model),
		attribute.Bool(AttrStream, stream),
	)
}

// SetTokenAttributes sets token counts on a span.
func SetTokenAttributes(span trace.Span, promptTokens, completionTokens int) {
	span.SetAttributes(
		attribute.Int(AttrTokensPrompt, promptTokens),
		attribute.Int(AttrTokensCompletion, completionTokens),
		attribute.Int(AttrTokensTotal, promptTokens+completionTokens),
	)
}

// SetRetryAttribute sets the zero-based position of an attempt in the
// fallback chain.
func SetRetryAttribute(span trace.Span, attempt int) {
	span.SetAttributes(attribute.Int(AttrAttempt, attempt))
}

// SetErrorAttributes records err with a classification and marks the
// span failed.
func SetErrorAttributes(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}
	span.SetAttributes(attribute.String(AttrErrorType, errorType))
	SetError(span, err)
	SetStatus(span, err)
}
