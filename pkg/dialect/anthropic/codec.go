package anthropic

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
	Messages:    "messages",
	Temperature: "temperature",
	TopP:        "top_p",
	TopK:        "top_k",
	MaxTokens:   "max_tokens",
}

var limits = dialect.Limits{MaxTemperature: 1}

// Codec implements dialect.Codec for the Anthropic messages API.
type Codec struct{}

// New returns the Anthropic codec.
func New() *Codec {
	return &Codec{}
}

// Dialect implements dialect.Codec.
func (c *Codec) Dialect() canonical.Dialect {
	return canonical.DialectAnthropic
}

// DecodeRequest implements dialect.Codec. A top-level system prompt becomes a
// leading system message.
func (c *Codec) DecodeRequest(body []byte, hints dialect.Hints) (*canonical.Request, error) {
	var in MessagesRequest
	if err := dialect.DecodeJSON(body, &in); err != nil {
		return nil, err
	}
	if in.MaxTokens == nil {
		return nil, dialect.Invalid("max_tokens", "is required")
	}

	req := &canonical.Request{
		Model:  in.Model,
		Stream: in.Stream,
		Kind:   canonical.KindChat,
		Sampling: canonical.Sampling{
			Temperature: in.Temperature,
			TopP:        in.TopP,
			TopK:        in.TopK,
			MaxTokens:   in.MaxTokens,
			Stop:        in.StopSequences,
		},
	}
	if in.Metadata != nil {
		req.User = in.Metadata.UserID
	}

	system, err := dialect.FlattenText(in.System, "system")
	if err != nil {
		return nil, err
	}
	req.Messages = make([]canonical.Message, 0, len(in.Messages)+1)
	if system != "" {
		req.Messages = append(req.Messages, canonical.Message{Role: canonical.RoleSystem, Content: system})
	}

	for i, m := range in.Messages {
		role := canonical.Role(m.Role)
		if role != canonical.RoleUser && role != canonical.RoleAssistant {
			return nil, dialect.Invalid(fmt.Sprintf("messages[%d].role", i), "unknown role %q", m.Role)
		}
		content, err := dialect.FlattenText(m.Content, fmt.Sprintf("messages[%d].content", i))
		if err != nil {
			return nil, err
		}
		req.Messages = append(req.Messages, canonical.Message{Role: role, Content: content})
	}
	if len(in.Messages) == 0 {
		return nil, dialect.Invalid("messages", "must contain at least one message")
	}

	if err := dialect.ValidateRequest(req, limits, fieldNames); err != nil {
		return nil, err
	}
	return req, nil
}

// EncodeResponse implements dialect.Codec.
func (c *Codec) EncodeResponse(req *canonical.Request, resp *canonical.Response) ([]byte, error) {
	stop := StopReasonFor(resp.FinishReason)
	out := MessagesResponse{
		ID:         dialect.EnsureID(resp.ID, "msg_"),
		Type:       "message",
		Role:       string(canonical.RoleAssistant),
		Model:      resp.Model,
		Content:    []ContentBlock{{Type: "text", Text: resp.Content}},
		StopReason: &stop,
		Usage:      usageFor(resp.Usage),
	}
	return json.Marshal(out)
}

// EncodeError implements dialect.Codec.
func (c *Codec) EncodeError(info dialect.ErrorInfo) []byte {
	body, _ := json.Marshal(errorResponse(info))
	return body
}

func errorResponse(info dialect.ErrorInfo) ErrorResponse {
	msg := info.Message
	if info.Code != "" && !strings.Contains(msg, info.Code) {
		msg = fmt.Sprintf("%s (%s)", msg, info.Code)
	}
	return ErrorResponse{
		Type:  "error",
		Error: ErrorDetail{Type: errorType(info.HTTPStatus()), Message: msg},
	}
}

func errorType(status int) string {
	switch status {
	case 400:
		return "invalid_request_error"
	case 401:
		return "authentication_error"
	case 403:
		return "permission_error"
	case 404:
		return "not_found_error"
	case 413:
		return "request_too_large"
	case 429:
		return "rate_limit_error"
	case 503:
		return "overloaded_error"
	case 504:
		return "timeout_error"
	default:
		return "api_error"
	}
}

// EncodeRequest implements dialect.Codec. System messages are hoisted into the
// top-level system field; a request with nothing else is a ValidationError.
func (c *Codec) EncodeRequest(req *canonical.Request) ([]byte, error) {
	system, turns := req.System()
	if len(turns) == 0 {
		return nil, dialect.Invalid("messages", "anthropic requires at least one user or assistant message")
	}

	maxTokens := req.Sampling.MaxTokens
	if maxTokens == nil {
		n := DefaultMaxTokens
		maxTokens = &n
	}
	out := MessagesRequest{
		Model:         req.Model,
		MaxTokens:     maxTokens,
		Temperature:   req.Sampling.Temperature,
		TopP:          req.Sampling.TopP,
		TopK:          req.Sampling.TopK,
		StopSequences: req.Sampling.Stop,
		Stream:        req.Stream,
		Messages:      make([]Message, 0, len(turns)),
	}
	if req.User != "" {
		out.Metadata = &Metadata{UserID: req.User}
	}
	if system != "" {
		raw, err := json.Marshal(system)
		if err != nil {
			return nil, err
		}
		out.System = raw
	}
	for _, m := range turns {
		content, err := json.Marshal(m.Content)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, Message{Role: string(m.Role), Content: content})
	}
	return json.Marshal(out)
}

// DecodeResponse implements dialect.Codec.
func (c *Codec) DecodeResponse(body []byte) (*canonical.Response, error) {
	var in MessagesResponse
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	if in.Type == "error" && in.Error != nil {
		return nil, &dialect.UpstreamError{Type: in.Error.Type, Message: in.Error.Message}
	}
	if in.Type != "message" {
		return nil, errors.New("unexpected response type " + in.Type)
	}

	var text strings.Builder
	for _, block := range in.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	resp := &canonical.Response{
		ID:           in.ID,
		Model:        in.Model,
		Content:      text.String(),
		FinishReason: canonical.FinishStop,
		Usage:        canonicalUsage(in.Usage),
	}
	if in.StopReason != nil {
		resp.FinishReason = ParseStopReason(*in.StopReason)
	}
	return resp, nil
}

// NewStreamEncoder implements dialect.Codec.
func (c *Codec) NewStreamEncoder(req *canonical.Request, id string) dialect.StreamEncoder {
	enc := &streamEncoder{id: dialect.EnsureID(id, "msg_")}
	if req != nil {
		enc.model = req.Model
	}
	return enc
}

// NewStreamDecoder implements dialect.Codec.
func (c *Codec) NewStreamDecoder(r io.Reader) dialect.StreamDecoder {
	return &streamDecoder{sse: dialect.NewSSEReader(r)}
}

// ParseStopReason maps an Anthropic stop_reason to the canonical value.
func ParseStopReason(s string) canonical.FinishReason {
	switch s {
	case "max_tokens":
		return canonical.FinishLength
	case "refusal":
		return canonical.FinishContentFilter
	default:
		// end_turn, stop_sequence, tool_use, pause_turn
		return canonical.FinishStop
	}
}

// StopReasonFor maps a canonical finish reason to Anthropic's vocabulary.
func StopReasonFor(r canonical.FinishReason) string {
	switch r {
	case canonical.FinishLength:
		return "max_tokens"
	case canonical.FinishContentFilter:
		return "refusal"
	default:
		return "end_turn"
	}
}

func usageFor(u *canonical.Usage) Usage {
	if u == nil {
		return Usage{}
	}
	return Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
}

func canonicalUsage(u Usage) *canonical.Usage {
	if u.InputTokens == 0 && u.OutputTokens == 0 {
		return nil
	}
	return &canonical.Usage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.InputTokens + u.OutputTokens,
	}
}
