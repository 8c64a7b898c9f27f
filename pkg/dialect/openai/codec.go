package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

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

var limits = dialect.Limits{MaxTemperature: 2}

// Codec implements dialect.Codec for the OpenAI chat and completions APIs.
type Codec struct{}

// New returns the OpenAI codec.
func New() *Codec {
	return &Codec{}
}

// Dialect implements dialect.Codec.
func (c *Codec) Dialect() canonical.Dialect {
	return canonical.DialectOpenAI
}

// DecodeRequest implements dialect.Codec.
func (c *Codec) DecodeRequest(body []byte, hints dialect.Hints) (*canonical.Request, error) {
	var in ChatRequest
	if err := dialect.DecodeJSON(body, &in); err != nil {
		return nil, err
	}

	req := &canonical.Request{
		Model:  in.Model,
		Stream: in.Stream,
		Kind:   hints.Kind,
		User:   in.User,
	}
	if req.Kind == "" {
		req.Kind = canonical.KindChat
		if len(in.Messages) == 0 && len(in.Prompt) > 0 {
			req.Kind = canonical.KindCompletion
		}
	}

	if req.Kind == canonical.KindCompletion {
		prompts, err := dialect.StringOrList(in.Prompt, "prompt")
		if err != nil {
			return nil, err
		}
		if len(prompts) == 0 {
			return nil, dialect.Invalid("prompt", "is required")
		}
		req.Messages = []canonical.Message{{Role: canonical.RoleUser, Content: strings.Join(prompts, "\n")}}
	} else {
		req.Messages = make([]canonical.Message, 0, len(in.Messages))
		for i, m := range in.Messages {
			role := canonical.Role(m.Role)
			if role == "developer" {
				role = canonical.RoleSystem
			}
			content, err := dialect.FlattenText(m.Content, fmt.Sprintf("messages[%d].content", i))
			if err != nil {
				return nil, err
			}
			req.Messages = append(req.Messages, canonical.Message{Role: role, Content: content})
		}
	}

	if in.N != nil && *in.N != 1 {
		return nil, dialect.Invalid("n", "only n=1 is supported")
	}

	stop, err := dialect.StringOrList(in.Stop, "stop")
	if err != nil {
		return nil, err
	}
	maxTokens := in.MaxTokens
	if maxTokens == nil {
		maxTokens = in.MaxCompletionTokens
	}
	req.Sampling = canonical.Sampling{
		Temperature:      in.Temperature,
		TopP:             in.TopP,
		TopK:             in.TopK,
		MaxTokens:        maxTokens,
		Stop:             stop,
		PresencePenalty:  in.PresencePenalty,
		FrequencyPenalty: in.FrequencyPenalty,
	}

	if err := dialect.ValidateRequest(req, limits, fieldNames); err != nil {
		return nil, err
	}
	return req, nil
}

// EncodeResponse implements dialect.Codec.
func (c *Codec) EncodeResponse(req *canonical.Request, resp *canonical.Response) ([]byte, error) {
	finish := FinishReasonFor(resp.FinishReason)
	out := ChatResponse{
		ID:      dialect.EnsureID(resp.ID, "chatcmpl-"),
		Object:  ObjectChatCompletion,
		Created: createdAt(resp.Created),
		Model:   resp.Model,
		Usage:   usageFor(resp.Usage),
	}
	if out.Usage == nil {
		out.Usage = &Usage{}
	}

	choice := Choice{Index: 0, FinishReason: &finish}
	if req != nil && req.Kind == canonical.KindCompletion {
		out.ID = dialect.EnsureID(resp.ID, "cmpl-")
		out.Object = ObjectTextCompletion
		text := resp.Content
		choice.Text = &text
	} else {
		content, _ := json.Marshal(resp.Content)
		choice.Message = &ResponseMessage{Role: string(canonical.RoleAssistant), Content: content}
	}
	out.Choices = []Choice{choice}

	return json.Marshal(out)
}

// EncodeError implements dialect.Codec.
func (c *Codec) EncodeError(info dialect.ErrorInfo) []byte {
	body, _ := json.Marshal(errorResponse(info))
	return body
}

func errorResponse(info dialect.ErrorInfo) ErrorResponse {
	detail := ErrorDetail{
		Message: info.Message,
		Type:    errorType(info.HTTPStatus()),
	}
	if info.Param != "" {
		param := info.Param
		detail.Param = &param
	}
	if info.Code != "" {
		code := info.Code
		detail.Code = &code
	}
	return ErrorResponse{Error: detail}
}

func errorType(status int) string {
	switch status {
	case 400:
		return ErrorTypeInvalidRequest
	case 401:
		return ErrorTypeAuthentication
	case 403:
		return ErrorTypePermissionDenied
	case 404:
		return ErrorTypeNotFound
	case 429:
		return ErrorTypeRateLimitExceeded
	case 502:
		return ErrorTypeBadGateway
	case 503:
		return ErrorTypeServiceUnavailable
	case 504:
		return ErrorTypeGatewayTimeout
	default:
		return ErrorTypeServerError
	}
}

// EncodeRequest implements dialect.Codec.
func (c *Codec) EncodeRequest(req *canonical.Request) ([]byte, error) {
	out := ChatRequest{
		Model:            req.Model,
		Temperature:      req.Sampling.Temperature,
		TopP:             req.Sampling.TopP,
		TopK:             req.Sampling.TopK,
		MaxTokens:        req.Sampling.MaxTokens,
		PresencePenalty:  req.Sampling.PresencePenalty,
		FrequencyPenalty: req.Sampling.FrequencyPenalty,
		Stream:           req.Stream,
		User:             req.User,
	}
	if req.Stream {
		out.StreamOptions = &StreamOptions{IncludeUsage: true}
	}
	if len(req.Sampling.Stop) > 0 {
		stop, err := json.Marshal(req.Sampling.Stop)
		if err != nil {
			return nil, err
		}
		out.Stop = stop
	}

	if req.Kind == canonical.KindCompletion {
		prompt, err := json.Marshal(req.LastUserMessage())
		if err != nil {
			return nil, err
		}
		out.Prompt = prompt
	} else {
		out.Messages = make([]Message, 0, len(req.Messages))
		for _, m := range req.Messages {
			content, err := json.Marshal(m.Content)
			if err != nil {
				return nil, err
			}
			out.Messages = append(out.Messages, Message{Role: string(m.Role), Content: content})
		}
	}

	return json.Marshal(out)
}

// DecodeResponse implements dialect.Codec.
func (c *Codec) DecodeResponse(body []byte) (*canonical.Response, error) {
	var in ChatResponse
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("failed to decode chat completion: %w", err)
	}
	if in.Error != nil {
		return nil, &dialect.UpstreamError{Type: in.Error.Type, Message: in.Error.Message}
	}
	if len(in.Choices) == 0 {
		return nil, errors.New("chat completion has no choices")
	}

	choice := in.Choices[0]
	var content string
	switch {
	case choice.Message != nil:
		text, err := dialect.FlattenText(choice.Message.Content, "choices[0].message.content")
		if err != nil {
			return nil, err
		}
		content = text
	case choice.Text != nil:
		content = *choice.Text
	}

	resp := &canonical.Response{
		ID:           in.ID,
		Model:        in.Model,
		Content:      content,
		FinishReason: canonical.FinishStop,
		Created:      in.Created,
		Usage:        canonicalUsage(in.Usage),
	}
	if choice.FinishReason != nil {
		resp.FinishReason = ParseFinishReason(*choice.FinishReason)
	}
	return resp, nil
}

// NewStreamEncoder implements dialect.Codec.
func (c *Codec) NewStreamEncoder(req *canonical.Request, id string) dialect.StreamEncoder {
	enc := &streamEncoder{
		id:      dialect.EnsureID(id, "chatcmpl-"),
		object:  ObjectChatCompletionChunk,
		created: time.Now().Unix(),
	}
	if req != nil {
		enc.model = req.Model
		if req.Kind == canonical.KindCompletion {
			enc.id = dialect.EnsureID(id, "cmpl-")
			enc.object = ObjectTextCompletion
		}
	}
	return enc
}

// NewStreamDecoder implements dialect.Codec.
func (c *Codec) NewStreamDecoder(r io.Reader) dialect.StreamDecoder {
	return &streamDecoder{sse: dialect.NewSSEReader(r)}
}

// ParseFinishReason maps an OpenAI finish_reason to the canonical value.
func ParseFinishReason(s string) canonical.FinishReason {
	switch s {
	case "length":
		return canonical.FinishLength
	case "content_filter":
		return canonical.FinishContentFilter
	default:
		// stop, tool_calls, function_call
		return canonical.FinishStop
	}
}

// FinishReasonFor maps a canonical finish reason to OpenAI's vocabulary.
func FinishReasonFor(r canonical.FinishReason) string {
	switch r {
	case canonical.FinishLength:
		return "length"
	case canonical.FinishContentFilter:
		return "content_filter"
	default:
		return "stop"
	}
}

func usageFor(u *canonical.Usage) *Usage {
	if u == nil {
		return nil
	}
	return &Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

func canonicalUsage(u *Usage) *canonical.Usage {
	if u == nil {
		return nil
	}
	return &canonical.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

func createdAt(ts int64) int64 {
	if ts > 0 {
		return ts
	}
	return time.Now().Unix()
}
