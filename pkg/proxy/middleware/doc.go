// Package middleware provides the HTTP middleware of the gateway.
//
// The server chains them outermost first:
//
//	tracing -> RequestID -> Logging -> Recovery -> CORS -> RateLimit -> mux
//
// RequestIDMiddleware assigns X-Request-ID and stores it in the context so
// every log line written for the request carries it. LoggingMiddleware
// wraps the response writer without hiding http.Flusher, so streamed
// responses still flush per chunk. RecoveryMiddleware and
// RateLimitMiddleware answer in the native error envelope of the dialect
// the request path belongs to.
//
// No middleware bounds request duration. Non-streaming attempts and
// per-chunk stream reads are bounded by the dispatcher instead, so a long
// healthy stream is never cut off.
package middleware
