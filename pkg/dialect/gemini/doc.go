// Package gemini implements the Google Gemini generateContent dialect.
//
// The model name and the streaming flag travel in the URL path
// (models/{model}:generateContent or :streamGenerateContent), so the client
// side relies on dialect.Hints and the provider side leaves them out of the
// body. Streams use the alt=sse framing: one "data:" event per
// GenerateContentResponse.
package gemini
