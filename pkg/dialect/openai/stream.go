package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
)

// streamEncoder frames canonical chunks as chat.completion.chunk (or
// text_completion) data events.
type streamEncoder struct {
	id      string
	object  string
	model   string
	created int64
	started bool
}

func (e *streamEncoder) Chunk(c *canonical.Chunk) ([]byte, error) {
	model := c.Model
	if model == "" {
		model = e.model
	}
	out := ChatResponse{
		ID:      e.id,
		Object:  e.object,
		Created: e.created,
		Model:   model,
	}

	choice := Choice{Index: 0}
	if c.FinishReason != "" {
		finish := FinishReasonFor(c.FinishReason)
		choice.FinishReason = &finish
		out.Usage = usageFor(c.Usage)
	}

	if e.object == ObjectTextCompletion {
		text := c.Delta
		choice.Text = &text
	} else {
		delta := &Delta{Content: c.Delta}
		if !e.started {
			delta.Role = string(canonical.RoleAssistant)
		}
		choice.Delta = delta
	}
	e.started = true
	out.Choices = []Choice{choice}

	return dialect.DataFrame(out)
}

func (e *streamEncoder) Error(info dialect.ErrorInfo) []byte {
	frame, err := dialect.DataFrame(errorResponse(info))
	if err != nil {
		return []byte("data: {\"error\":{\"message\":\"stream failed\",\"type\":\"server_error\"}}\n\n")
	}
	return frame
}

func (e *streamEncoder) Done() []byte {
	return []byte("data: [DONE]\n\n")
}

// streamDecoder reads an upstream OpenAI SSE stream. The finish chunk is held
// back until [DONE] so a trailing usage-only chunk can be folded into it.
type streamDecoder struct {
	sse     *dialect.SSEReader
	pending *canonical.Chunk
	done    bool
}

func (d *streamDecoder) Next() (*canonical.Chunk, error) {
	for {
		if d.done {
			return nil, io.EOF
		}

		ev, err := d.sse.Next()
		if errors.Is(err, io.EOF) {
			d.done = true
			if d.pending != nil {
				return d.pending, nil
			}
			return nil, io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, err
		}

		if ev.Data == "" {
			continue
		}
		if ev.Data == "[DONE]" {
			d.done = true
			if d.pending != nil {
				return d.pending, nil
			}
			return &canonical.Chunk{FinishReason: canonical.FinishStop}, nil
		}

		var in ChatResponse
		if err := json.Unmarshal([]byte(ev.Data), &in); err != nil {
			return nil, fmt.Errorf("failed to decode stream chunk: %w", err)
		}
		if in.Error != nil {
			return nil, &dialect.UpstreamError{Type: in.Error.Type, Message: in.Error.Message}
		}

		if d.pending != nil {
			if in.Usage != nil {
				d.pending.Usage = canonicalUsage(in.Usage)
			}
			continue
		}

		chunk := &canonical.Chunk{ID: in.ID, Model: in.Model, Usage: canonicalUsage(in.Usage)}
		if len(in.Choices) > 0 {
			choice := in.Choices[0]
			switch {
			case choice.Delta != nil:
				chunk.Delta = choice.Delta.Content
			case choice.Text != nil:
				chunk.Delta = *choice.Text
			}
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				chunk.FinishReason = ParseFinishReason(*choice.FinishReason)
			}
		}

		if chunk.FinishReason != "" {
			d.pending = chunk
			continue
		}
		if chunk.Delta == "" {
			// role-only opener or keep-alive
			continue
		}
		chunk.Usage = nil
		return chunk, nil
	}
}
