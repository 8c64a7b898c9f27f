package anthropic

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
)

func TestCodec_DecodeRequest(t *testing.T) {
	body := `{
		"model": "claude-3-opus",
		"system": [{"type":"text","text":"Be "},{"type":"text","text":"kind."}],
		"messages": [
			{"role":"user","content":"Hi"},
			{"role":"assistant","content":[{"type":"text","text":"Hello"}]},
			{"role":"user","content":"Bye"}
		],
		"max_tokens": 100,
		"temperature": 0.5,
		"top_k": 40,
		"stop_sequences": ["\n\nHuman:"],
		"metadata": {"user_id": "u-1"}
	}`

	req, err := New().DecodeRequest([]byte(body), dialect.Hints{})
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}

	want := []canonical.Message{
		{Role: canonical.RoleSystem, Content: "Be kind."},
		{Role: canonical.RoleUser, Content: "Hi"},
		{Role: canonical.RoleAssistant, Content: "Hello"},
		{Role: canonical.RoleUser, Content: "Bye"},
	}
	if !reflect.DeepEqual(req.Messages, want) {
		t.Errorf("Messages = %+v, want %+v", req.Messages, want)
	}
	if *req.Sampling.MaxTokens != 100 || *req.Sampling.TopK != 40 || *req.Sampling.Temperature != 0.5 {
		t.Errorf("Sampling = %+v", req.Sampling)
	}
	if req.User != "u-1" {
		t.Errorf("User = %q, want u-1", req.User)
	}
}

func TestCodec_DecodeRequest_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{name: "missing max_tokens", body: `{"model":"c","messages":[{"role":"user","content":"x"}]}`, wantField: "max_tokens"},
		{name: "system role in messages", body: `{"model":"c","max_tokens":1,"messages":[{"role":"system","content":"x"}]}`, wantField: "messages[0].role"},
		{name: "empty messages", body: `{"model":"c","max_tokens":1,"messages":[]}`, wantField: "messages"},
		{name: "temperature above one", body: `{"model":"c","max_tokens":1,"temperature":1.5,"messages":[{"role":"user","content":"x"}]}`, wantField: "temperature"},
		{name: "missing model", body: `{"max_tokens":1,"messages":[{"role":"user","content":"x"}]}`, wantField: "model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().DecodeRequest([]byte(tt.body), dialect.Hints{})
			var verr *dialect.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("DecodeRequest() error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestCodec_EncodeResponse(t *testing.T) {
	resp := &canonical.Response{
		Model:        "claude-3-opus",
		Content:      "Hello!",
		FinishReason: canonical.FinishStop,
		Usage:        &canonical.Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6},
	}

	body, err := New().EncodeResponse(&canonical.Request{Model: "claude-3-opus"}, resp)
	if err != nil {
		t.Fatalf("EncodeResponse() error = %v", err)
	}

	var got MessagesResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.HasPrefix(got.ID, "msg_") || got.Type != "message" || got.Role != "assistant" {
		t.Errorf("header = %+v", got)
	}
	if len(got.Content) != 1 || got.Content[0].Type != "text" || got.Content[0].Text != "Hello!" {
		t.Errorf("Content = %+v", got.Content)
	}
	if got.StopReason == nil || *got.StopReason != "end_turn" {
		t.Errorf("StopReason = %v, want end_turn", got.StopReason)
	}
	if got.Usage.InputTokens != 4 || got.Usage.OutputTokens != 2 {
		t.Errorf("Usage = %+v", got.Usage)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := New()
	body := `{"model":"claude-3-haiku","system":"S","messages":[{"role":"user","content":"U1"},{"role":"assistant","content":"A1"},{"role":"user","content":"U2"}],"max_tokens":20,"temperature":0.3,"top_p":0.8,"top_k":5,"stop_sequences":["END"],"stream":true}`

	first, err := codec.DecodeRequest([]byte(body), dialect.Hints{})
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	encoded, err := codec.EncodeRequest(first)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}
	second, err := codec.DecodeRequest(encoded, dialect.Hints{})
	if err != nil {
		t.Fatalf("DecodeRequest(encoded) error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("round trip mismatch:\n first  %+v\n second %+v", first, second)
	}
}

func TestCodec_EncodeRequest_DefaultMaxTokens(t *testing.T) {
	req := &canonical.Request{
		Model:    "claude-3-haiku",
		Messages: []canonical.Message{{Role: canonical.RoleUser, Content: "hi"}},
	}
	body, err := New().EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}
	if !strings.Contains(string(body), `"max_tokens":4096`) {
		t.Errorf("body = %s, want default max_tokens", body)
	}
	if strings.Contains(string(body), `"system"`) {
		t.Errorf("body = %s, want no system field", body)
	}
}

func TestCodec_EncodeRequest_SystemOnly(t *testing.T) {
	req := &canonical.Request{
		Model:    "claude-3-haiku",
		Messages: []canonical.Message{{Role: canonical.RoleSystem, Content: "Be brief."}},
	}
	body, err := New().EncodeRequest(req)
	var verr *dialect.ValidationError
	if !errors.As(err, &verr) || verr.Field != "messages" {
		t.Fatalf("EncodeRequest() = %s, %v, want ValidationError on messages", body, err)
	}
}

func TestCodec_DecodeResponse(t *testing.T) {
	body := `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3","content":[{"type":"text","text":"Hi"},{"type":"tool_use","text":""},{"type":"text","text":"!"}],"stop_reason":"max_tokens","usage":{"input_tokens":3,"output_tokens":2}}`

	resp, err := New().DecodeResponse([]byte(body))
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if resp.Content != "Hi!" || resp.FinishReason != canonical.FinishLength {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 5 {
		t.Errorf("Usage = %+v", resp.Usage)
	}

	_, err = New().DecodeResponse([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	var upstream *dialect.UpstreamError
	if !errors.As(err, &upstream) || upstream.Type != "overloaded_error" {
		t.Errorf("DecodeResponse(error) = %v", err)
	}
}

func TestCodec_EncodeError(t *testing.T) {
	body := New().EncodeError(dialect.ErrorInfo{Kind: dialect.KindInvalidRequest, Message: "max_tokens: is required"})

	var got ErrorResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "error" || got.Error.Type != "invalid_request_error" {
		t.Errorf("envelope = %+v", got)
	}

	body = New().EncodeError(dialect.ErrorInfo{Kind: dialect.KindUnavailable, Message: "no providers"})
	if !strings.Contains(string(body), `"overloaded_error"`) {
		t.Errorf("503 envelope = %s", body)
	}
}

func TestStopReasonMapping(t *testing.T) {
	tests := []struct {
		in   string
		want canonical.FinishReason
	}{
		{"end_turn", canonical.FinishStop},
		{"stop_sequence", canonical.FinishStop},
		{"tool_use", canonical.FinishStop},
		{"max_tokens", canonical.FinishLength},
		{"refusal", canonical.FinishContentFilter},
	}
	for _, tt := range tests {
		if got := ParseStopReason(tt.in); got != tt.want {
			t.Errorf("ParseStopReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := StopReasonFor(canonical.FinishError); got != "end_turn" {
		t.Errorf("StopReasonFor(error) = %q, want end_turn", got)
	}
}
