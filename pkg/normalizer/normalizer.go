// Package normalizer is the gateway's single entry point for dialect
// conversion: it detects the inbound dialect, converts bodies to and from the
// canonical model and fills in usage when a provider did not report it.
package normalizer

import (
	"fmt"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
	"mercator-hq/prism/pkg/dialect/anthropic"
	"mercator-hq/prism/pkg/dialect/gemini"
	"mercator-hq/prism/pkg/dialect/openai"
	"mercator-hq/prism/pkg/processing/tokens"
)

// Normalizer converts between wire dialects and the canonical model.
// It is safe for concurrent use.
type Normalizer struct {
	codecs    map[canonical.Dialect]dialect.Codec
	estimator *tokens.SimpleEstimator
}

// New creates a Normalizer with every built-in codec. A nil estimator uses
// the default characters-per-token ratio.
func New(estimator *tokens.SimpleEstimator) *Normalizer {
	if estimator == nil {
		estimator = tokens.NewSimpleEstimator(nil)
	}
	return &Normalizer{
		codecs: map[canonical.Dialect]dialect.Codec{
			canonical.DialectOpenAI:    openai.New(),
			canonical.DialectAnthropic: anthropic.New(),
			canonical.DialectGemini:    gemini.New(),
		},
		estimator: estimator,
	}
}

// Codec returns the codec for d.
func (n *Normalizer) Codec(d canonical.Dialect) (dialect.Codec, error) {
	c, ok := n.codecs[d]
	if !ok {
		return nil, fmt.Errorf("no codec for dialect %q", d)
	}
	return c, nil
}

// MustCodec returns the codec for d and panics for an unknown dialect.
// Dialect values come from ParseDialect or Detect, so a miss is a bug.
func (n *Normalizer) MustCodec(d canonical.Dialect) dialect.Codec {
	c, err := n.Codec(d)
	if err != nil {
		panic(err)
	}
	return c
}

// Estimator returns the usage estimator.
func (n *Normalizer) Estimator() *tokens.SimpleEstimator {
	return n.estimator
}

// Detect determines the dialect of an inbound request; see dialect.Detect.
// The gateway routes by path alone.
func (n *Normalizer) Detect(path string, body []byte) (canonical.Dialect, error) {
	return dialect.Detect(path, body)
}

// ToCanonical converts an inbound body in dialect d.
func (n *Normalizer) ToCanonical(d canonical.Dialect, body []byte, hints dialect.Hints) (*canonical.Request, error) {
	c, err := n.Codec(d)
	if err != nil {
		return nil, err
	}
	return c.DecodeRequest(body, hints)
}

// FromCanonical renders resp for a client speaking dialect d. Missing usage
// is estimated from the request and the response text.
func (n *Normalizer) FromCanonical(d canonical.Dialect, req *canonical.Request, resp *canonical.Response) ([]byte, error) {
	c, err := n.Codec(d)
	if err != nil {
		return nil, err
	}
	resp.Usage = n.estimator.Fill(resp.Usage, req, resp.Content)
	return c.EncodeResponse(req, resp)
}

// EncodeError renders info in dialect d's envelope. Unknown dialects fall
// back to the OpenAI envelope.
func (n *Normalizer) EncodeError(d canonical.Dialect, info dialect.ErrorInfo) []byte {
	c, err := n.Codec(d)
	if err != nil {
		c = n.codecs[canonical.DialectOpenAI]
	}
	return c.EncodeError(info)
}
