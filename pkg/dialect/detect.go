package dialect

import (
	"encoding/json"
	"strings"

	"mercator-hq/prism/pkg/canonical"
)

// Route is the dialect-relevant information carried by an inbound path.
type Route struct {
	Dialect canonical.Dialect
	Hints   Hints
}

// MatchPath identifies a dialect endpoint by URL path. The second result is
// false when the path is not a dialect route.
func MatchPath(path string) (Route, bool) {
	switch path {
	case "/v1/chat/completions":
		return Route{Dialect: canonical.DialectOpenAI, Hints: Hints{Kind: canonical.KindChat}}, true
	case "/v1/completions":
		return Route{Dialect: canonical.DialectOpenAI, Hints: Hints{Kind: canonical.KindCompletion}}, true
	case "/v1/messages":
		return Route{Dialect: canonical.DialectAnthropic, Hints: Hints{Kind: canonical.KindChat}}, true
	}

	var target string
	switch {
	case strings.HasPrefix(path, "/v1/models/"):
		target = strings.TrimPrefix(path, "/v1/models/")
	case strings.HasPrefix(path, "/v1beta/models/"):
		target = strings.TrimPrefix(path, "/v1beta/models/")
	default:
		return Route{}, false
	}
	model, stream, ok := ParseGeminiTarget(target)
	if !ok {
		return Route{}, false
	}
	return Route{
		Dialect: canonical.DialectGemini,
		Hints:   Hints{Model: model, Stream: stream, Kind: canonical.KindChat},
	}, true
}

// ParseGeminiTarget splits "{model}:{method}" from a Gemini models path.
func ParseGeminiTarget(target string) (model string, stream bool, ok bool) {
	i := strings.LastIndex(target, ":")
	if i <= 0 {
		return "", false, false
	}
	model, method := target[:i], target[i+1:]
	switch method {
	case "generateContent":
		return model, false, true
	case "streamGenerateContent":
		return model, true, true
	default:
		return "", false, false
	}
}

// openAIOnly are request fields Anthropic never accepts.
var openAIOnly = []string{
	"n", "logprobs", "top_logprobs", "presence_penalty", "frequency_penalty",
	"response_format", "max_completion_tokens", "logit_bias", "seed",
}

// anthropicOnly are request fields OpenAI never accepts.
var anthropicOnly = []string{"system", "stop_sequences", "anthropic_version"}

// Detect determines the dialect of an inbound request. The path decides when
// it is a dialect route; body shape is consulted only otherwise, so a body
// that looks like another dialect never overrides the path.
//
// The gateway handler is mounted on dialect routes only and uses MatchPath,
// rejecting any other path. Detect is for callers that receive bodies on
// arbitrary paths, such as tools classifying captured traffic.
func Detect(path string, body []byte) (canonical.Dialect, error) {
	if route, ok := MatchPath(path); ok {
		return route.Dialect, nil
	}

	var shape map[string]json.RawMessage
	if err := json.Unmarshal(body, &shape); err != nil {
		return "", MalformedJSON(err)
	}

	if _, ok := shape["contents"]; ok {
		return canonical.DialectGemini, nil
	}
	if _, ok := shape["messages"]; ok {
		if looksAnthropic(shape) {
			return canonical.DialectAnthropic, nil
		}
		return canonical.DialectOpenAI, nil
	}
	if _, ok := shape["prompt"]; ok {
		return canonical.DialectOpenAI, nil
	}
	return "", &ValidationError{Message: ErrUnknownDialect.Error(), Code: "unknown_dialect", Cause: ErrUnknownDialect}
}

func looksAnthropic(shape map[string]json.RawMessage) bool {
	for _, f := range openAIOnly {
		if _, ok := shape[f]; ok {
			return false
		}
	}
	// max_tokens is shared with OpenAI, so only Anthropic-only fields count.
	for _, f := range anthropicOnly {
		if _, ok := shape[f]; ok {
			return true
		}
	}
	return false
}
