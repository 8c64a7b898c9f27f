package canonical

import (
	"fmt"
	"strings"
)

// Dialect identifies one of the wire protocols the gateway speaks.
type Dialect string

const (
	// DialectOpenAI is the OpenAI chat/completions protocol.
	DialectOpenAI Dialect = "openai"

	// DialectAnthropic is the Anthropic messages protocol.
	DialectAnthropic Dialect = "anthropic"

	// DialectGemini is the Google Gemini generateContent protocol.
	DialectGemini Dialect = "gemini"
)

// Dialects lists every supported dialect in a stable order.
var Dialects = []Dialect{DialectOpenAI, DialectAnthropic, DialectGemini}

// ParseDialect converts a configuration string into a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(s))) {
	case DialectOpenAI:
		return DialectOpenAI, nil
	case DialectAnthropic:
		return DialectAnthropic, nil
	case DialectGemini:
		return DialectGemini, nil
	default:
		return "", fmt.Errorf("unknown dialect %q", s)
	}
}

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the canonical roles.
func (r Role) Valid() bool {
	return r == RoleSystem || r == RoleUser || r == RoleAssistant
}

// Kind distinguishes chat-style requests from prompt-style completions.
type Kind string

const (
	KindChat       Kind = "chat"
	KindCompletion Kind = "completion"
)

// FinishReason is the canonical reason a generation ended.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
)

// Message is a single conversation turn with flattened text content.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Sampling holds generation parameters. Nil pointers mean "not set" so that
// a round trip never invents values the client did not send.
type Sampling struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	TopK             *int     `json:"top_k,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
}

// Request is the dialect-neutral request handed to the dispatcher.
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Sampling Sampling  `json:"sampling"`
	Stream   bool      `json:"stream"`
	Kind     Kind      `json:"kind"`

	// User is an opaque end-user identifier forwarded when the dialect has one.
	User string `json:"user,omitempty"`
}

// System returns the concatenated system messages and the remaining turns.
func (r *Request) System() (string, []Message) {
	var sys []string
	rest := make([]Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(sys, "\n"), rest
}

// LastUserMessage returns the content of the final user turn.
func (r *Request) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Usage is token accounting for one exchange.
type Usage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	Estimated        bool `json:"estimated,omitempty"`
}

// IsZero reports whether no counts were reported.
func (u *Usage) IsZero() bool {
	return u == nil || (u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0)
}

// Response is a complete, non-streaming result.
type Response struct {
	ID           string       `json:"id"`
	Model        string       `json:"model"`
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        *Usage       `json:"usage,omitempty"`
	Created      int64        `json:"created"`

	// Provider is the id of the provider that produced the response.
	Provider string `json:"provider,omitempty"`
}

// Chunk is one streamed delta. A chunk with a FinishReason is terminal.
// A chunk with Err set ends the stream with a failure.
type Chunk struct {
	ID           string       `json:"id,omitempty"`
	Model        string       `json:"model,omitempty"`
	Delta        string       `json:"delta"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Usage        *Usage       `json:"usage,omitempty"`
	Err          error        `json:"-"`
}

// Terminal reports whether the chunk ends the stream.
func (c *Chunk) Terminal() bool {
	return c.FinishReason != "" || c.Err != nil
}
