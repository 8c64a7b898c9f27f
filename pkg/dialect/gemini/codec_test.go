package gemini

import (
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
)

func TestCodec_DecodeRequest(t *testing.T) {
	body := `{
		"systemInstruction": {"parts":[{"text":"Be terse."}]},
		"contents": [
			{"role":"user","parts":[{"text":"Hi "},{"text":"there"}]},
			{"role":"model","parts":[{"text":"Hello"}]},
			{"role":"user","parts":[{"text":"Bye"}]}
		],
		"generationConfig": {"temperature":0.4,"topK":3,"maxOutputTokens":50,"stopSequences":["."]}
	}`

	req, err := New().DecodeRequest([]byte(body), dialect.Hints{Model: "gemini-pro", Stream: true})
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}

	want := []canonical.Message{
		{Role: canonical.RoleSystem, Content: "Be terse."},
		{Role: canonical.RoleUser, Content: "Hi there"},
		{Role: canonical.RoleAssistant, Content: "Hello"},
		{Role: canonical.RoleUser, Content: "Bye"},
	}
	if !reflect.DeepEqual(req.Messages, want) {
		t.Errorf("Messages = %+v, want %+v", req.Messages, want)
	}
	if req.Model != "gemini-pro" || !req.Stream {
		t.Errorf("Model/Stream = %q/%v", req.Model, req.Stream)
	}
	if *req.Sampling.MaxTokens != 50 || *req.Sampling.TopK != 3 {
		t.Errorf("Sampling = %+v", req.Sampling)
	}
}

func TestCodec_DecodeRequest_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		hints     dialect.Hints
		wantField string
	}{
		{name: "missing model", body: `{"contents":[{"parts":[{"text":"x"}]}]}`, wantField: "model"},
		{name: "empty contents", body: `{"contents":[]}`, hints: dialect.Hints{Model: "g"}, wantField: "contents"},
		{name: "unknown role", body: `{"contents":[{"role":"function","parts":[{"text":"x"}]}]}`, hints: dialect.Hints{Model: "g"}, wantField: "contents[0].role"},
		{name: "non-text part", body: `{"contents":[{"parts":[{"inlineData":{"mimeType":"image/png","data":""}}]}]}`, hints: dialect.Hints{Model: "g"}, wantField: "contents[0].parts[0]"},
		{name: "top_p out of range", body: `{"contents":[{"parts":[{"text":"x"}]}],"generationConfig":{"topP":1.5}}`, hints: dialect.Hints{Model: "g"}, wantField: "generationConfig.topP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().DecodeRequest([]byte(tt.body), tt.hints)
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

func TestCodec_RoundTrip(t *testing.T) {
	codec := New()
	hints := dialect.Hints{Model: "gemini-1.5-pro"}
	body := `{"systemInstruction":{"parts":[{"text":"S"}]},"contents":[{"role":"user","parts":[{"text":"U1"}]},{"role":"model","parts":[{"text":"A1"}]},{"role":"user","parts":[{"text":"U2"}]}],"generationConfig":{"temperature":1.2,"topP":0.9,"topK":8,"maxOutputTokens":30,"stopSequences":["x"],"presencePenalty":0.1,"frequencyPenalty":0.2}}`

	first, err := codec.DecodeRequest([]byte(body), hints)
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	encoded, err := codec.EncodeRequest(first)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &top); err != nil {
		t.Fatalf("encoded body is not a JSON object: %v", err)
	}
	if _, ok := top["model"]; ok {
		t.Errorf("upstream body should not carry the model: %s", encoded)
	}
	second, err := codec.DecodeRequest(encoded, hints)
	if err != nil {
		t.Fatalf("DecodeRequest(encoded) error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("round trip mismatch:\n first  %+v\n second %+v", first, second)
	}
}

func TestCodec_EncodeRequest_SystemOnly(t *testing.T) {
	req := &canonical.Request{
		Model:    "gemini-pro",
		Messages: []canonical.Message{{Role: canonical.RoleSystem, Content: "Be brief."}},
	}
	body, err := New().EncodeRequest(req)
	var verr *dialect.ValidationError
	if !errors.As(err, &verr) || verr.Field != "contents" {
		t.Fatalf("EncodeRequest() = %s, %v, want ValidationError on contents", body, err)
	}
}

func TestCodec_EncodeResponse(t *testing.T) {
	resp := &canonical.Response{
		Model:        "gemini-pro",
		Content:      "Hello!",
		FinishReason: canonical.FinishLength,
		Usage:        &canonical.Usage{PromptTokens: 2, CompletionTokens: 2, TotalTokens: 4},
	}
	body, err := New().EncodeResponse(nil, resp)
	if err != nil {
		t.Fatalf("EncodeResponse() error = %v", err)
	}

	var got GenerateContentResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Candidates) != 1 {
		t.Fatalf("len(Candidates) = %d", len(got.Candidates))
	}
	cand := got.Candidates[0]
	if cand.Content.Role != "model" || candidateText(cand) != "Hello!" || cand.FinishReason != "MAX_TOKENS" {
		t.Errorf("candidate = %+v", cand)
	}
	if got.UsageMetadata == nil || got.UsageMetadata.TotalTokenCount != 4 {
		t.Errorf("UsageMetadata = %+v", got.UsageMetadata)
	}
}

func TestCodec_DecodeResponse_Blocked(t *testing.T) {
	resp, err := New().DecodeResponse([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if resp.FinishReason != canonical.FinishContentFilter {
		t.Errorf("FinishReason = %q, want content_filter", resp.FinishReason)
	}
}

func TestCodec_EncodeError(t *testing.T) {
	var got ErrorResponse
	body := New().EncodeError(dialect.ErrorInfo{Kind: dialect.KindTimeout, Message: "all attempts timed out"})
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Error.Code != 504 || got.Error.Status != "DEADLINE_EXCEEDED" {
		t.Errorf("envelope = %+v", got)
	}
}

func TestStreamDecoder(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"candidates":[{"content":{"role":"model","parts":[{"text":"Hello"}]},"index":0}],"modelVersion":"gemini-pro"}`,
		``,
		`data: {"candidates":[{"content":{"role":"model","parts":[{"text":" world"}]},"index":0}]}`,
		``,
		`data: {"candidates":[{"content":{"role":"model","parts":[{"text":""}]},"finishReason":"STOP","index":0}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2,"totalTokenCount":5}}`,
		``,
	}, "\n")

	dec := New().NewStreamDecoder(strings.NewReader(stream))
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
	if chunks[2].FinishReason != canonical.FinishStop || chunks[2].Usage.TotalTokens != 5 {
		t.Errorf("terminal = %+v", chunks[2])
	}
}

func TestStreamEncoder(t *testing.T) {
	enc := New().NewStreamEncoder(&canonical.Request{Model: "gemini-pro"}, "resp-1")

	frame, err := enc.Chunk(&canonical.Chunk{Delta: "Hi"})
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	s := string(frame)
	if !strings.HasPrefix(s, "data: ") || !strings.HasSuffix(s, "\n\n") || strings.Count(s, "data: ") != 1 {
		t.Errorf("frame = %q", s)
	}
	if strings.Contains(s, "finishReason") {
		t.Errorf("non-terminal frame has finishReason: %s", s)
	}

	last, _ := enc.Chunk(&canonical.Chunk{FinishReason: canonical.FinishContentFilter})
	if !strings.Contains(string(last), `"finishReason":"SAFETY"`) {
		t.Errorf("terminal frame = %s", last)
	}
	if enc.Done() != nil {
		t.Errorf("Done() = %q, want nil", enc.Done())
	}
}

func TestFinishReasonMapping(t *testing.T) {
	tests := []struct {
		in   string
		want canonical.FinishReason
	}{
		{"STOP", canonical.FinishStop},
		{"MAX_TOKENS", canonical.FinishLength},
		{"SAFETY", canonical.FinishContentFilter},
		{"RECITATION", canonical.FinishContentFilter},
		{"PROHIBITED_CONTENT", canonical.FinishContentFilter},
		{"OTHER", canonical.FinishError},
	}
	for _, tt := range tests {
		if got := ParseFinishReason(tt.in); got != tt.want {
			t.Errorf("ParseFinishReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
