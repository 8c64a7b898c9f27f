// Package proxy holds the HTTP plumbing shared by the gateway handlers and
// middleware: body reading with a size limit, client identification for
// rate limiting, routing response headers, and the mapping from gateway
// failures to dialect error envelopes.
//
// ErrorInfo is the single place a Go error becomes a client-visible error.
// Validation failures keep their field and message; routing and dispatch
// failures get a stable code such as "provider_unavailable"; anything else
// is reported as an internal error without details.
package proxy
