package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
	"mercator-hq/prism/pkg/processing/tokens"
)

// ErrTruncated is reported when the chunk channel closes without a
// terminal chunk.
var ErrTruncated = errors.New("stream ended without a terminal chunk")

// Summary describes a finished stream.
type Summary struct {
	// Chunks is the number of canonical chunks written.
	Chunks int

	// Text is the concatenated content.
	Text string

	FinishReason canonical.FinishReason
	Usage        *canonical.Usage

	// Err is the failure delivered to the client as an error frame, if any.
	Err error

	// FirstChunk is the time from Pipe to the first chunk.
	FirstChunk time.Duration
}

// ErrorMapper renders a stream failure for the client.
type ErrorMapper func(err error) dialect.ErrorInfo

// DefaultErrorInfo reports any stream failure as an upstream error without
// exposing its details.
func DefaultErrorInfo(error) dialect.ErrorInfo {
	return dialect.ErrorInfo{
		Kind:    dialect.KindUpstream,
		Message: "the upstream provider stream was interrupted",
		Code:    "stream_interrupted",
	}
}

// Translator writes one client stream.
type Translator struct {
	w         io.Writer
	flusher   http.Flusher
	enc       dialect.StreamEncoder
	req       *canonical.Request
	estimator *tokens.SimpleEstimator
	errorInfo ErrorMapper
}

// NewTranslator creates a translator writing to w. When w is an
// http.Flusher it is flushed after every write. A nil estimator uses the
// default ratio.
func NewTranslator(w io.Writer, enc dialect.StreamEncoder, req *canonical.Request, estimator *tokens.SimpleEstimator) *Translator {
	if estimator == nil {
		estimator = tokens.NewSimpleEstimator(nil)
	}
	t := &Translator{
		w:         w,
		enc:       enc,
		req:       req,
		estimator: estimator,
		errorInfo: DefaultErrorInfo,
	}
	t.flusher, _ = w.(http.Flusher)
	return t
}

// WithErrorMapper replaces the failure rendering.
func (t *Translator) WithErrorMapper(m ErrorMapper) *Translator {
	if m != nil {
		t.errorInfo = m
	}
	return t
}

// Pipe consumes chunks until the terminal chunk, the channel closes or ctx
// is done. The returned error is a write failure or ctx's error; upstream
// failures are written as error frames and reported in Summary.Err.
func (t *Translator) Pipe(ctx context.Context, chunks <-chan *canonical.Chunk) (Summary, error) {
	var sum Summary
	var text strings.Builder
	start := time.Now()

	for {
		var c *canonical.Chunk
		var ok bool
		select {
		case c, ok = <-chunks:
		case <-ctx.Done():
			sum.Text = text.String()
			return sum, ctx.Err()
		}

		if !ok {
			sum.Text = text.String()
			sum.Err = ErrTruncated
			return sum, t.write(t.enc.Error(t.errorInfo(ErrTruncated)))
		}
		if sum.Chunks == 0 && sum.FirstChunk == 0 {
			sum.FirstChunk = time.Since(start)
		}

		if c.Err != nil {
			sum.Text = text.String()
			sum.Err = c.Err
			return sum, t.write(t.enc.Error(t.errorInfo(c.Err)))
		}

		text.WriteString(c.Delta)
		if c.FinishReason != "" {
			out := *c
			out.Usage = t.estimator.Fill(c.Usage, t.req, text.String())
			c = &out
			sum.FinishReason = c.FinishReason
			sum.Usage = c.Usage
		}

		frame, err := t.enc.Chunk(c)
		if err != nil {
			return sum, fmt.Errorf("failed to encode chunk: %w", err)
		}
		if err := t.write(frame); err != nil {
			sum.Text = text.String()
			return sum, err
		}
		sum.Chunks++

		if c.FinishReason != "" {
			sum.Text = text.String()
			return sum, t.write(t.enc.Done())
		}
	}
}

func (t *Translator) write(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if _, err := t.w.Write(b); err != nil {
		return fmt.Errorf("failed to write stream frame: %w", err)
	}
	if t.flusher != nil {
		t.flusher.Flush()
	}
	return nil
}

// SetHeaders sets the headers of an event-stream response.
func SetHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", dialect.ContentTypeSSE)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}
