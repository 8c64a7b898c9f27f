// Package handlers provides the HTTP handlers of the gateway.
//
// Gateway serves every dialect endpoint:
//
//	POST /v1/chat/completions                 OpenAI chat
//	POST /v1/completions                      OpenAI legacy completions
//	POST /v1/messages                         Anthropic messages
//	POST /v1/models/{model}:generateContent   Gemini (also /v1beta)
//	POST /v1/models/{model}:streamGenerateContent
//
// A request is decoded in the dialect of its path, dispatched through the
// failover chain and answered in the same dialect. Non-streaming responses
// and pre-stream failures carry X-Prism-Provider and X-Prism-Attempts.
// Streams are committed to the first provider that yields a chunk; a later
// failure ends the stream with the dialect's error frame.
//
// Management serves the provider registry:
//
//	GET    /providers
//	GET    /providers/{id}
//	POST   /providers
//	DELETE /providers/{id}
//
// Management responses are plain JSON, not dialect envelopes, and never
// include API keys or header values.
package handlers
