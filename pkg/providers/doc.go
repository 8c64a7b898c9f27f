// Package providers defines the upstream adapter contract and the pieces
// shared by every adapter variant.
//
// # Overview
//
// A Provider turns a canonical.Request into a canonical.Response (Call) or a
// channel of canonical.Chunk values (Stream). The set of variants is closed
// and chosen when a provider is registered:
//
//   - rest: HTTP JSON to an upstream speaking OpenAI, Anthropic or Gemini
//     (package rest)
//   - web:  a WebSocket bridge to a web-chat pseudo-endpoint (package web)
//   - sdk:  an in-process Go client registered by name (package sdk)
//
// Adapters never retry. Failover across providers is the dispatcher's job,
// so an adapter reports every failure once, classified as either a
// TransportError (network, timeout, non-2xx status) or a ProtocolError
// (an upstream payload that could not be understood).
//
// # Streaming contract
//
// Stream returns only after the upstream accepted the request; connection
// and status failures are returned as errors so the caller can try another
// provider. The returned channel then yields content chunks followed by
// exactly one terminal chunk (FinishReason set, or Err set) and is closed.
// Cancelling the context stops the producer and releases the upstream
// connection.
//
// # HTTP base
//
// HTTPProvider holds the pooled http.Client and performs single requests:
//
//	base := providers.NewHTTPProvider(cfg)
//	resp, err := base.DoRequest(ctx, http.MethodPost, url, body, headers)
//	if err != nil {
//	    var te *providers.TransportError
//	    if errors.As(err, &te) && te.Timeout { ... }
//	}
//	defer resp.Body.Close()
package providers
