package web

import "mercator-hq/prism/pkg/canonical"

// Frame types.
const (
	FramePrompt = "prompt"
	FrameDelta  = "delta"
	FrameDone   = "done"
	FrameError  = "error"
)

// PromptFrame is the single frame sent to the bridge per request.
type PromptFrame struct {
	Type     string              `json:"type"`
	ID       string              `json:"id"`
	Model    string              `json:"model"`
	Messages []canonical.Message `json:"messages"`
	Sampling canonical.Sampling  `json:"sampling"`
	Stream   bool                `json:"stream"`
}

// EventFrame is a frame received from the bridge.
type EventFrame struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Delta string `json:"delta,omitempty"`

	// Content is the full reply; bridges may send it on done instead of
	// deltas when the prompt was not streamed.
	Content string `json:"content,omitempty"`

	FinishReason string           `json:"finish_reason,omitempty"`
	Usage        *canonical.Usage `json:"usage,omitempty"`
	Error        string           `json:"error,omitempty"`
	Code         string           `json:"code,omitempty"`
}

// finishReason maps a done frame's finish_reason, defaulting to stop.
func finishReason(s string) canonical.FinishReason {
	switch canonical.FinishReason(s) {
	case canonical.FinishLength, canonical.FinishContentFilter, canonical.FinishError:
		return canonical.FinishReason(s)
	default:
		return canonical.FinishStop
	}
}
