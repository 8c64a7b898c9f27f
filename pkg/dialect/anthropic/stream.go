package anthropic

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
)

type messageStart struct {
	Type    string           `json:"type"`
	Message MessagesResponse `json:"message"`
}

type contentBlockStart struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

type contentBlockDelta struct {
	Type  string     `json:"type"`
	Index int        `json:"index"`
	Delta EventDelta `json:"delta"`
}

type contentBlockStop struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type messageDelta struct {
	Type  string     `json:"type"`
	Delta EventDelta `json:"delta"`
	Usage Usage      `json:"usage"`
}

type messageStop struct {
	Type string `json:"type"`
}

// streamEncoder frames canonical chunks as Anthropic message events. The
// message_start/content_block_start preamble is emitted lazily before the
// first chunk; each chunk with text yields exactly one content_block_delta.
type streamEncoder struct {
	id      string
	model   string
	started bool
}

func (e *streamEncoder) Chunk(c *canonical.Chunk) ([]byte, error) {
	var buf bytes.Buffer

	if !e.started {
		if err := e.writePreamble(&buf, c); err != nil {
			return nil, err
		}
		e.started = true
	}

	if c.Delta != "" || c.FinishReason == "" {
		frame, err := dialect.NamedFrame(EventContentBlockDelta, contentBlockDelta{
			Type:  EventContentBlockDelta,
			Index: 0,
			Delta: EventDelta{Type: "text_delta", Text: c.Delta},
		})
		if err != nil {
			return nil, err
		}
		buf.Write(frame)
	}

	if c.FinishReason != "" {
		stop, err := dialect.NamedFrame(EventContentBlockStop, contentBlockStop{Type: EventContentBlockStop, Index: 0})
		if err != nil {
			return nil, err
		}
		buf.Write(stop)

		delta, err := dialect.NamedFrame(EventMessageDelta, messageDelta{
			Type:  EventMessageDelta,
			Delta: EventDelta{StopReason: StopReasonFor(c.FinishReason)},
			Usage: usageFor(c.Usage),
		})
		if err != nil {
			return nil, err
		}
		buf.Write(delta)
	}

	return buf.Bytes(), nil
}

func (e *streamEncoder) writePreamble(buf *bytes.Buffer, c *canonical.Chunk) error {
	model := c.Model
	if model == "" {
		model = e.model
	}
	start, err := dialect.NamedFrame(EventMessageStart, messageStart{
		Type: EventMessageStart,
		Message: MessagesResponse{
			ID:      e.id,
			Type:    "message",
			Role:    string(canonical.RoleAssistant),
			Model:   model,
			Content: []ContentBlock{},
		},
	})
	if err != nil {
		return err
	}
	buf.Write(start)

	block, err := dialect.NamedFrame(EventContentBlockStart, contentBlockStart{
		Type:         EventContentBlockStart,
		Index:        0,
		ContentBlock: ContentBlock{Type: "text", Text: ""},
	})
	if err != nil {
		return err
	}
	buf.Write(block)
	return nil
}

func (e *streamEncoder) Error(info dialect.ErrorInfo) []byte {
	frame, err := dialect.NamedFrame(EventError, errorResponse(info))
	if err != nil {
		return []byte("event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"api_error\",\"message\":\"stream failed\"}}\n\n")
	}
	return frame
}

func (e *streamEncoder) Done() []byte {
	frame, _ := dialect.NamedFrame(EventMessageStop, messageStop{Type: EventMessageStop})
	return frame
}

// streamDecoder reads an upstream Anthropic event stream. Only text deltas
// become chunks; message_delta is held until message_stop so the terminal
// chunk carries the final stop reason and usage.
type streamDecoder struct {
	sse     *dialect.SSEReader
	id      string
	model   string
	input   int
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

		var event StreamEvent
		if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
			return nil, fmt.Errorf("failed to decode stream event: %w", err)
		}
		if event.Type == "" {
			event.Type = ev.Name
		}

		switch event.Type {
		case EventMessageStart:
			if event.Message != nil {
				d.id = event.Message.ID
				d.model = event.Message.Model
				d.input = event.Message.Usage.InputTokens
			}

		case EventContentBlockStart:
			if event.ContentBlock != nil && event.ContentBlock.Type == "text" && event.ContentBlock.Text != "" {
				return d.chunk(event.ContentBlock.Text), nil
			}

		case EventContentBlockDelta:
			if event.Delta != nil && event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				return d.chunk(event.Delta.Text), nil
			}

		case EventMessageDelta:
			terminal := d.chunk("")
			terminal.FinishReason = canonical.FinishStop
			if event.Delta != nil && event.Delta.StopReason != "" {
				terminal.FinishReason = ParseStopReason(event.Delta.StopReason)
			}
			if event.Usage != nil {
				input := event.Usage.InputTokens
				if input == 0 {
					input = d.input
				}
				terminal.Usage = canonicalUsage(Usage{InputTokens: input, OutputTokens: event.Usage.OutputTokens})
			}
			d.pending = terminal

		case EventMessageStop:
			d.done = true
			if d.pending != nil {
				return d.pending, nil
			}
			terminal := d.chunk("")
			terminal.FinishReason = canonical.FinishStop
			return terminal, nil

		case EventError:
			if event.Error != nil {
				return nil, &dialect.UpstreamError{Type: event.Error.Type, Message: event.Error.Message}
			}
			return nil, &dialect.UpstreamError{Message: ev.Data}

		default:
			// ping, content_block_stop and unknown events
		}
	}
}

func (d *streamDecoder) chunk(text string) *canonical.Chunk {
	return &canonical.Chunk{ID: d.id, Model: d.model, Delta: text}
}
