package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
)

// streamEncoder frames each canonical chunk as one GenerateContentResponse.
type streamEncoder struct {
	id    string
	model string
}

func (e *streamEncoder) Chunk(c *canonical.Chunk) ([]byte, error) {
	model := c.Model
	if model == "" {
		model = e.model
	}
	cand := Candidate{Content: modelContent(c.Delta), Index: 0}
	out := GenerateContentResponse{
		Candidates:   []Candidate{cand},
		ModelVersion: model,
		ResponseID:   e.id,
	}
	if c.FinishReason != "" {
		out.Candidates[0].FinishReason = FinishReasonFor(c.FinishReason)
		out.UsageMetadata = usageFor(c.Usage)
	}
	return dialect.DataFrame(out)
}

func (e *streamEncoder) Error(info dialect.ErrorInfo) []byte {
	frame, err := dialect.DataFrame(errorResponse(info))
	if err != nil {
		return []byte("data: {\"error\":{\"code\":500,\"message\":\"stream failed\",\"status\":\"INTERNAL\"}}\n\n")
	}
	return frame
}

// Done returns nothing: a Gemini stream ends with the finishReason event.
func (e *streamEncoder) Done() []byte {
	return nil
}

// streamDecoder reads an alt=sse upstream stream. The event carrying a
// finishReason is terminal and may also carry text.
type streamDecoder struct {
	sse  *dialect.SSEReader
	done bool
}

func (d *streamDecoder) Next() (*canonical.Chunk, error) {
	for {
		if d.done {
			return nil, io.EOF
		}

		ev, err := d.sse.Next()
		if errors.Is(err, io.EOF) {
			d.done = true
			return nil, io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, err
		}
		if ev.Data == "" {
			continue
		}

		var in GenerateContentResponse
		if err := json.Unmarshal([]byte(ev.Data), &in); err != nil {
			return nil, fmt.Errorf("failed to decode stream event: %w", err)
		}
		if in.Error != nil {
			return nil, &dialect.UpstreamError{Type: in.Error.Status, Message: in.Error.Message}
		}

		chunk := &canonical.Chunk{ID: in.ResponseID, Model: in.ModelVersion}
		if len(in.Candidates) == 0 {
			if in.PromptFeedback != nil && in.PromptFeedback.BlockReason != "" {
				d.done = true
				chunk.FinishReason = canonical.FinishContentFilter
				chunk.Usage = canonicalUsage(in.UsageMetadata)
				return chunk, nil
			}
			continue
		}

		cand := in.Candidates[0]
		chunk.Delta = candidateText(cand)
		if cand.FinishReason != "" {
			d.done = true
			chunk.FinishReason = ParseFinishReason(cand.FinishReason)
			chunk.Usage = canonicalUsage(in.UsageMetadata)
			return chunk, nil
		}
		if chunk.Delta == "" {
			continue
		}
		return chunk, nil
	}
}
