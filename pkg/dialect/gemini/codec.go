package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
)

var fieldNames = dialect.FieldNames{
	Model:       "model",
	Messages:    "contents",
	Temperature: "generationConfig.temperature",
	TopP:        "generationConfig.topP",
	TopK:        "generationConfig.topK",
	MaxTokens:   "generationConfig.maxOutputTokens",
}

var limits = dialect.Limits{MaxTemperature: 2}

// Codec implements dialect.Codec for the Gemini generateContent API.
type Codec struct{}

// New returns the Gemini codec.
func New() *Codec {
	return &Codec{}
}

// Dialect implements dialect.Codec.
func (c *Codec) Dialect() canonical.Dialect {
	return canonical.DialectGemini
}

// DecodeRequest implements dialect.Codec. The model and stream flag come from
// hints when the request arrived on a models/{model}:method path.
func (c *Codec) DecodeRequest(body []byte, hints dialect.Hints) (*canonical.Request, error) {
	var in GenerateContentRequest
	if err := dialect.DecodeJSON(body, &in); err != nil {
		return nil, err
	}

	req := &canonical.Request{
		Model:  hints.Model,
		Stream: hints.Stream || in.Stream,
		Kind:   canonical.KindChat,
	}
	if req.Model == "" {
		req.Model = strings.TrimPrefix(in.Model, "models/")
	}

	req.Messages = make([]canonical.Message, 0, len(in.Contents)+1)
	if in.SystemInstruction != nil {
		text, err := joinParts(in.SystemInstruction.Parts, "systemInstruction")
		if err != nil {
			return nil, err
		}
		if text != "" {
			req.Messages = append(req.Messages, canonical.Message{Role: canonical.RoleSystem, Content: text})
		}
	}
	for i, content := range in.Contents {
		var role canonical.Role
		switch content.Role {
		case RoleUser, "":
			role = canonical.RoleUser
		case RoleModel:
			role = canonical.RoleAssistant
		default:
			return nil, dialect.Invalid(fmt.Sprintf("contents[%d].role", i), "unknown role %q", content.Role)
		}
		text, err := joinParts(content.Parts, fmt.Sprintf("contents[%d]", i))
		if err != nil {
			return nil, err
		}
		req.Messages = append(req.Messages, canonical.Message{Role: role, Content: text})
	}
	if len(in.Contents) == 0 {
		return nil, dialect.Invalid("contents", "must contain at least one message")
	}

	if gc := in.GenerationConfig; gc != nil {
		if gc.CandidateCount != nil && *gc.CandidateCount != 1 {
			return nil, dialect.Invalid("generationConfig.candidateCount", "only 1 candidate is supported")
		}
		req.Sampling = canonical.Sampling{
			Temperature:      gc.Temperature,
			TopP:             gc.TopP,
			TopK:             gc.TopK,
			MaxTokens:        gc.MaxOutputTokens,
			Stop:             gc.StopSequences,
			PresencePenalty:  gc.PresencePenalty,
			FrequencyPenalty: gc.FrequencyPenalty,
		}
	}

	if err := dialect.ValidateRequest(req, limits, fieldNames); err != nil {
		return nil, err
	}
	return req, nil
}

func joinParts(parts []Part, field string) (string, error) {
	var b strings.Builder
	for i, p := range parts {
		if p.Text == nil {
			return "", dialect.Invalid(fmt.Sprintf("%s.parts[%d]", field, i), "only text parts are supported")
		}
		b.WriteString(*p.Text)
	}
	return b.String(), nil
}

// EncodeResponse implements dialect.Codec.
func (c *Codec) EncodeResponse(req *canonical.Request, resp *canonical.Response) ([]byte, error) {
	return json.Marshal(GenerateContentResponse{
		Candidates: []Candidate{{
			Content:      modelContent(resp.Content),
			FinishReason: FinishReasonFor(resp.FinishReason),
			Index:        0,
		}},
		UsageMetadata: usageFor(resp.Usage),
		ModelVersion:  resp.Model,
		ResponseID:    resp.ID,
	})
}

func modelContent(text string) Content {
	return Content{Role: RoleModel, Parts: []Part{{Text: &text}}}
}

// EncodeError implements dialect.Codec.
func (c *Codec) EncodeError(info dialect.ErrorInfo) []byte {
	body, _ := json.Marshal(errorResponse(info))
	return body
}

func errorResponse(info dialect.ErrorInfo) ErrorResponse {
	status := info.HTTPStatus()
	return ErrorResponse{Error: ErrorDetail{
		Code:    status,
		Message: info.Message,
		Status:  statusName(status),
	}}
}

func statusName(status int) string {
	switch status {
	case 400:
		return "INVALID_ARGUMENT"
	case 401:
		return "UNAUTHENTICATED"
	case 403:
		return "PERMISSION_DENIED"
	case 404:
		return "NOT_FOUND"
	case 429:
		return "RESOURCE_EXHAUSTED"
	case 502, 503:
		return "UNAVAILABLE"
	case 504:
		return "DEADLINE_EXCEEDED"
	default:
		return "INTERNAL"
	}
}

// EncodeRequest implements dialect.Codec. The model is omitted; the caller
// puts it in the URL path.
func (c *Codec) EncodeRequest(req *canonical.Request) ([]byte, error) {
	system, turns := req.System()
	if len(turns) == 0 {
		return nil, dialect.Invalid("contents", "gemini requires at least one user or model turn")
	}

	out := GenerateContentRequest{Contents: make([]Content, 0, len(turns))}
	if system != "" {
		out.SystemInstruction = &Content{Parts: []Part{{Text: &system}}}
	}
	for _, m := range turns {
		text := m.Content
		role := RoleUser
		if m.Role == canonical.RoleAssistant {
			role = RoleModel
		}
		out.Contents = append(out.Contents, Content{Role: role, Parts: []Part{{Text: &text}}})
	}

	s := req.Sampling
	if s.Temperature != nil || s.TopP != nil || s.TopK != nil || s.MaxTokens != nil ||
		len(s.Stop) > 0 || s.PresencePenalty != nil || s.FrequencyPenalty != nil {
		out.GenerationConfig = &GenerationConfig{
			Temperature:      s.Temperature,
			TopP:             s.TopP,
			TopK:             s.TopK,
			MaxOutputTokens:  s.MaxTokens,
			StopSequences:    s.Stop,
			PresencePenalty:  s.PresencePenalty,
			FrequencyPenalty: s.FrequencyPenalty,
		}
	}
	return json.Marshal(out)
}

// DecodeResponse implements dialect.Codec.
func (c *Codec) DecodeResponse(body []byte) (*canonical.Response, error) {
	var in GenerateContentResponse
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("failed to decode generateContent response: %w", err)
	}
	if in.Error != nil {
		return nil, &dialect.UpstreamError{Type: in.Error.Status, Message: in.Error.Message}
	}

	resp := &canonical.Response{
		ID:           in.ResponseID,
		Model:        in.ModelVersion,
		FinishReason: canonical.FinishStop,
		Usage:        canonicalUsage(in.UsageMetadata),
	}
	if len(in.Candidates) == 0 {
		if in.PromptFeedback != nil && in.PromptFeedback.BlockReason != "" {
			resp.FinishReason = canonical.FinishContentFilter
			return resp, nil
		}
		return nil, errors.New("generateContent response has no candidates")
	}

	cand := in.Candidates[0]
	resp.Content = candidateText(cand)
	if cand.FinishReason != "" {
		resp.FinishReason = ParseFinishReason(cand.FinishReason)
	}
	return resp, nil
}

func candidateText(c Candidate) string {
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if p.Text != nil {
			b.WriteString(*p.Text)
		}
	}
	return b.String()
}

// NewStreamEncoder implements dialect.Codec.
func (c *Codec) NewStreamEncoder(req *canonical.Request, id string) dialect.StreamEncoder {
	enc := &streamEncoder{id: id}
	if req != nil {
		enc.model = req.Model
	}
	return enc
}

// NewStreamDecoder implements dialect.Codec.
func (c *Codec) NewStreamDecoder(r io.Reader) dialect.StreamDecoder {
	return &streamDecoder{sse: dialect.NewSSEReader(r)}
}

// ParseFinishReason maps a Gemini finishReason to the canonical value.
func ParseFinishReason(s string) canonical.FinishReason {
	switch s {
	case "MAX_TOKENS":
		return canonical.FinishLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return canonical.FinishContentFilter
	case "OTHER":
		return canonical.FinishError
	default:
		return canonical.FinishStop
	}
}

// FinishReasonFor maps a canonical finish reason to Gemini's vocabulary.
func FinishReasonFor(r canonical.FinishReason) string {
	switch r {
	case canonical.FinishLength:
		return "MAX_TOKENS"
	case canonical.FinishContentFilter:
		return "SAFETY"
	case canonical.FinishError:
		return "OTHER"
	default:
		return "STOP"
	}
}

func usageFor(u *canonical.Usage) *UsageMetadata {
	if u == nil {
		return nil
	}
	return &UsageMetadata{
		PromptTokenCount:     u.PromptTokens,
		CandidatesTokenCount: u.CompletionTokens,
		TotalTokenCount:      u.TotalTokens,
	}
}

func canonicalUsage(u *UsageMetadata) *canonical.Usage {
	if u == nil {
		return nil
	}
	return &canonical.Usage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount,
		TotalTokens:      u.TotalTokenCount,
	}
}
