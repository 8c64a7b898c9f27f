package anthropic

import (
	"errors"
	"io"
	"strings"
	"testing"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
)

const upstreamStream = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-3","content":[],"stop_reason":null,"usage":{"input_tokens":12,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: ping
data: {"type":"ping"}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}

event: message_stop
data: {"type":"message_stop"}

`

func TestStreamDecoder(t *testing.T) {
	dec := New().NewStreamDecoder(strings.NewReader(upstreamStream))

	var chunks []*canonical.Chunk
	for {
		c, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		chunks = append(chunks, c)
	}

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if chunks[0].Delta != "Hello" || chunks[1].Delta != " world" {
		t.Errorf("deltas = %q, %q", chunks[0].Delta, chunks[1].Delta)
	}
	last := chunks[2]
	if last.FinishReason != canonical.FinishStop || last.Delta != "" {
		t.Errorf("terminal = %+v", last)
	}
	if last.Usage == nil || last.Usage.PromptTokens != 12 || last.Usage.CompletionTokens != 2 {
		t.Errorf("Usage = %+v", last.Usage)
	}
}

func TestStreamDecoder_ErrorEvent(t *testing.T) {
	stream := "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n"
	_, err := New().NewStreamDecoder(strings.NewReader(stream)).Next()

	var upstream *dialect.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("Next() error = %v, want *UpstreamError", err)
	}
	if upstream.Type != "overloaded_error" {
		t.Errorf("Type = %q", upstream.Type)
	}
}

func TestStreamDecoder_Truncated(t *testing.T) {
	stream := "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi\"}}\n\n"
	dec := New().NewStreamDecoder(strings.NewReader(stream))

	if _, err := dec.Next(); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if _, err := dec.Next(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Next() error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestStreamEncoder(t *testing.T) {
	enc := New().NewStreamEncoder(&canonical.Request{Model: "claude-3"}, "")

	var out strings.Builder
	for _, c := range []*canonical.Chunk{
		{Delta: "Hello"},
		{Delta: " world"},
		{FinishReason: canonical.FinishStop, Usage: &canonical.Usage{PromptTokens: 3, CompletionTokens: 2}},
	} {
		frame, err := enc.Chunk(c)
		if err != nil {
			t.Fatalf("Chunk() error = %v", err)
		}
		out.Write(frame)
	}
	out.Write(enc.Done())
	s := out.String()

	order := []string{
		"event: message_start",
		"event: content_block_start",
		"event: content_block_delta",
		`"text":"Hello"`,
		"event: content_block_delta",
		`"text":" world"`,
		"event: content_block_stop",
		"event: message_delta",
		`"stop_reason":"end_turn"`,
		"event: message_stop",
	}
	pos := 0
	for _, marker := range order {
		i := strings.Index(s[pos:], marker)
		if i < 0 {
			t.Fatalf("missing %q after offset %d in:\n%s", marker, pos, s)
		}
		pos += i + len(marker)
	}

	if n := strings.Count(s, "event: content_block_delta"); n != 2 {
		t.Errorf("content_block_delta count = %d, want 2", n)
	}
	if n := strings.Count(s, "event: message_start"); n != 1 {
		t.Errorf("message_start count = %d, want 1", n)
	}
	if !strings.Contains(s, `"output_tokens":2`) {
		t.Errorf("message_delta usage missing:\n%s", s)
	}
}

func TestStreamEncoder_Error(t *testing.T) {
	enc := New().NewStreamEncoder(nil, "")
	frame := string(enc.Error(dialect.ErrorInfo{Kind: dialect.KindUpstream, Message: "connection reset"}))
	if !strings.HasPrefix(frame, "event: error\n") || !strings.Contains(frame, "connection reset") {
		t.Errorf("Error() = %q", frame)
	}
}
