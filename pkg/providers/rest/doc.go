// Package rest implements the HTTP JSON adapter variant. One Client talks to
// one upstream in its native dialect, using that dialect's codec for request
// bodies, responses and streams, and the dialect's auth header:
//
//   - openai:    Authorization: Bearer <key>
//   - anthropic: x-api-key: <key> plus anthropic-version
//   - gemini:    x-goog-api-key: <key>
package rest
