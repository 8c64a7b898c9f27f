package dialect

import (
	"io"

	"mercator-hq/prism/pkg/canonical"
)

// Hints carry request attributes that a dialect encodes outside the body,
// such as the Gemini model and stream flag in the URL path or the OpenAI
// completions endpoint.
type Hints struct {
	Model  string
	Stream bool
	Kind   canonical.Kind
}

// Codec converts between one wire dialect and the canonical model.
type Codec interface {
	// Dialect returns the dialect this codec speaks.
	Dialect() canonical.Dialect

	// DecodeRequest parses an inbound client body. Failures are *ValidationError.
	DecodeRequest(body []byte, hints Hints) (*canonical.Request, error)

	// EncodeResponse renders a complete response for the client.
	EncodeResponse(req *canonical.Request, resp *canonical.Response) ([]byte, error)

	// NewStreamEncoder returns the framer for one client stream.
	NewStreamEncoder(req *canonical.Request, id string) StreamEncoder

	// EncodeError renders the native error envelope.
	EncodeError(info ErrorInfo) []byte

	// EncodeRequest renders a canonical request as an upstream body.
	EncodeRequest(req *canonical.Request) ([]byte, error)

	// DecodeResponse parses an upstream non-streaming body.
	DecodeResponse(body []byte) (*canonical.Response, error)

	// NewStreamDecoder reads an upstream stream body.
	NewStreamDecoder(r io.Reader) StreamDecoder
}

// StreamEncoder frames canonical chunks for a client. Each call returns the
// exact bytes to write; the caller flushes after every call.
type StreamEncoder interface {
	// Chunk returns the frames for one chunk. A content chunk yields exactly
	// one content-bearing event plus any protocol bookkeeping the dialect
	// requires around it.
	Chunk(c *canonical.Chunk) ([]byte, error)

	// Error returns the frames that end the stream with a failure.
	Error(info ErrorInfo) []byte

	// Done returns the trailer written after a successful terminal chunk.
	Done() []byte
}

// StreamDecoder yields canonical chunks from an upstream stream. Next returns
// io.EOF once the stream has ended and no further chunks remain. Keep-alive
// and bookkeeping events are consumed silently.
type StreamDecoder interface {
	Next() (*canonical.Chunk, error)
}

// ContentTypeSSE is the content type of every dialect's streaming response.
const ContentTypeSSE = "text/event-stream"
