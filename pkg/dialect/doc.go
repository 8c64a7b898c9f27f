// Package dialect defines the contract shared by the wire-protocol codecs.
//
// A dialect is one vendor chat API (OpenAI, Anthropic or Gemini). Each dialect
// package implements Codec in both directions:
//
//   - client side: DecodeRequest, EncodeResponse, NewStreamEncoder, EncodeError
//   - provider side: EncodeRequest, DecodeResponse, NewStreamDecoder
//
// The client side converts what gateway clients send and expect; the provider
// side is the mirror image used by the REST adapter to talk to an upstream
// that natively speaks the dialect.
//
// This package also owns inbound dialect detection, the shared SSE reader and
// the error vocabulary (ValidationError, ErrorInfo) that codecs render into
// their native envelopes.
package dialect
