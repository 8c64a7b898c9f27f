package sdk

import (
	"context"
	"strings"
	"time"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/providers"
)

// echo replies with the last user message, one word per delta.
type echo struct {
	delay time.Duration
}

// newEcho reads an optional per-word delay from the "delay" header, e.g.
// "20ms".
func newEcho(cfg providers.Config) (Client, error) {
	e := &echo{}
	if v := cfg.Headers["delay"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, err
		}
		e.delay = d
	}
	return e, nil
}

func (e *echo) Generate(ctx context.Context, req *canonical.Request, emit EmitFunc) (*Result, error) {
	words := splitWords(req.LastUserMessage())

	finish := canonical.FinishStop
	if limit := req.Sampling.MaxTokens; limit != nil && *limit < len(words) {
		words = words[:*limit]
		finish = canonical.FinishLength
	}

	for _, w := range words {
		if e.delay > 0 {
			select {
			case <-time.After(e.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err := emit(w); err != nil {
			return nil, err
		}
	}
	return &Result{FinishReason: finish}, nil
}

// splitWords splits s after each run of spaces so the pieces concatenate
// back to s.
func splitWords(s string) []string {
	var out []string
	for s != "" {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			out = append(out, s)
			break
		}
		j := i
		for j < len(s) && s[j] == ' ' {
			j++
		}
		out = append(out, s[:j])
		s = s[j:]
	}
	return out
}
