package tokens

import "mercator-hq/prism/pkg/canonical"

// Estimator estimates token counts for text and canonical requests.
type Estimator interface {
	// EstimateText estimates tokens for a single text string.
	EstimateText(text string, model string) int

	// EstimateMessages estimates prompt tokens for a message list.
	EstimateMessages(messages []canonical.Message, model string) int

	// EstimateUsage builds a complete usage record for a request and the
	// generated completion text.
	EstimateUsage(req *canonical.Request, completion string) *canonical.Usage
}
