package tokens

import (
	"math"
	"strings"
	"unicode/utf8"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/config"
)

// DefaultCharsPerToken is the ratio used when nothing else is configured.
const DefaultCharsPerToken = 4.0

// SimpleEstimator implements character-based token estimation.
// It is safe for concurrent use; its configuration is read-only after creation.
type SimpleEstimator struct {
	charsPerToken float64
	models        map[string]float64
}

// NewSimpleEstimator creates a character-based estimator. A nil config uses
// DefaultCharsPerToken for every model.
func NewSimpleEstimator(cfg *config.TokensConfig) *SimpleEstimator {
	e := &SimpleEstimator{
		charsPerToken: DefaultCharsPerToken,
		models:        map[string]float64{},
	}
	if cfg == nil {
		return e
	}
	if cfg.CharsPerToken > 0 {
		e.charsPerToken = cfg.CharsPerToken
	}
	for prefix, ratio := range cfg.Models {
		if ratio > 0 {
			e.models[strings.ToLower(prefix)] = ratio
		}
	}
	return e
}

// EstimateText estimates tokens for a single text string.
// Non-empty text is always at least one token.
func (e *SimpleEstimator) EstimateText(text string, model string) int {
	if text == "" {
		return 0
	}
	chars := utf8.RuneCountInString(text)
	tokens := int(math.Ceil(float64(chars) / e.ratioFor(model)))
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// EstimateMessages sums the content estimate of every message.
func (e *SimpleEstimator) EstimateMessages(messages []canonical.Message, model string) int {
	total := 0
	for _, m := range messages {
		total += e.EstimateText(m.Content, model)
	}
	return total
}

// EstimateUsage estimates prompt tokens from the request messages and
// completion tokens from the generated text.
func (e *SimpleEstimator) EstimateUsage(req *canonical.Request, completion string) *canonical.Usage {
	var prompt int
	model := ""
	if req != nil {
		model = req.Model
		prompt = e.EstimateMessages(req.Messages, model)
	}
	out := e.EstimateText(completion, model)
	return &canonical.Usage{
		PromptTokens:     prompt,
		CompletionTokens: out,
		TotalTokens:      prompt + out,
		Estimated:        true,
	}
}

// Fill returns u when it carries provider counts, otherwise an estimate.
// A usage with prompt and completion but no total gets its total computed.
func (e *SimpleEstimator) Fill(u *canonical.Usage, req *canonical.Request, completion string) *canonical.Usage {
	if u.IsZero() {
		return e.EstimateUsage(req, completion)
	}
	if u.TotalTokens == 0 {
		filled := *u
		filled.TotalTokens = u.PromptTokens + u.CompletionTokens
		return &filled
	}
	return u
}

// ratioFor returns the characters-per-token ratio for model, matching the
// longest configured prefix.
func (e *SimpleEstimator) ratioFor(model string) float64 {
	model = strings.ToLower(model)
	best, bestLen := e.charsPerToken, -1
	for prefix, ratio := range e.models {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = ratio, len(prefix)
		}
	}
	return best
}
