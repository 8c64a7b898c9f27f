package dialect

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"mercator-hq/prism/pkg/canonical"
)

// DecodeJSON unmarshals an inbound body, turning syntax and type errors into
// ValidationErrors.
func DecodeJSON(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return &ValidationError{Message: "request body is empty", Code: "missing_field"}
	}
	if err := json.Unmarshal(body, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return &ValidationError{
				Field:   typeErr.Field,
				Message: fmt.Sprintf("expected %s", typeErr.Type),
				Code:    "invalid_json",
				Cause:   err,
			}
		}
		return MalformedJSON(err)
	}
	return nil
}

// TextPart is a typed content block as used by OpenAI content arrays and
// Anthropic content blocks.
type TextPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// FlattenText accepts a JSON string or an array of text parts and returns the
// joined text. Non-text parts are rejected.
func FlattenText(raw json.RawMessage, field string) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", Invalid(field, "content must be a string or an array of text parts")
		}
		return s, nil
	}

	var parts []TextPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", Invalid(field, "content must be a string or an array of text parts")
	}
	var b strings.Builder
	for i, p := range parts {
		if p.Type != "text" {
			return "", Invalid(fmt.Sprintf("%s[%d].type", field, i), "unsupported content type %q", p.Type)
		}
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

// StringOrList accepts a JSON string or array of strings.
func StringOrList(raw json.RawMessage, field string) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, Invalid(field, "must be a string or an array of strings")
		}
		return []string{s}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, Invalid(field, "must be a string or an array of strings")
	}
	return list, nil
}

// Limits are the accepted sampling ranges for one dialect.
type Limits struct {
	MaxTemperature float64
}

// ValidateRequest checks the invariants shared by every dialect: a model,
// a non-empty message list with known roles, and in-range sampling values.
// Field names are reported using the dialect's own spelling from names.
func ValidateRequest(req *canonical.Request, limits Limits, names FieldNames) error {
	if strings.TrimSpace(req.Model) == "" {
		return Invalid(names.Model, "is required")
	}
	if len(req.Messages) == 0 {
		return Invalid(names.Messages, "must contain at least one message")
	}
	for i, m := range req.Messages {
		if !m.Role.Valid() {
			return Invalid(fmt.Sprintf("%s[%d].role", names.Messages, i), "unknown role %q", m.Role)
		}
	}

	s := req.Sampling
	if s.Temperature != nil && (*s.Temperature < 0 || *s.Temperature > limits.MaxTemperature) {
		return Invalid(names.Temperature, "must be between 0 and %g", limits.MaxTemperature)
	}
	if s.TopP != nil && (*s.TopP < 0 || *s.TopP > 1) {
		return Invalid(names.TopP, "must be between 0 and 1")
	}
	if s.TopK != nil && *s.TopK < 0 {
		return Invalid(names.TopK, "must be non-negative")
	}
	if s.MaxTokens != nil && *s.MaxTokens < 1 {
		return Invalid(names.MaxTokens, "must be at least 1")
	}
	if s.PresencePenalty != nil && (*s.PresencePenalty < -2 || *s.PresencePenalty > 2) {
		return Invalid("presence_penalty", "must be between -2 and 2")
	}
	if s.FrequencyPenalty != nil && (*s.FrequencyPenalty < -2 || *s.FrequencyPenalty > 2) {
		return Invalid("frequency_penalty", "must be between -2 and 2")
	}
	return nil
}

// FieldNames maps canonical fields to a dialect's JSON names for error
// reporting.
type FieldNames struct {
	Model       string
	Messages    string
	Temperature string
	TopP        string
	TopK        string
	MaxTokens   string
}

// NewID returns a dialect-style object id such as "chatcmpl-3f2a...".
func NewID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// EnsureID keeps id when it already carries prefix, otherwise mints a new one.
// Upstream ids from another dialect are replaced so clients see familiar ids.
func EnsureID(id, prefix string) string {
	if strings.HasPrefix(id, prefix) {
		return id
	}
	return NewID(prefix)
}
