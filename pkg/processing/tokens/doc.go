// Package tokens estimates token counts when a provider does not report usage.
//
// The gateway reports usage in every dialect. Providers that return counts are
// trusted as-is; for the rest the counts are estimated with a fixed
// characters-per-token ratio, optionally overridden per model family:
//
//   - default: 4.0 characters per token
//   - per-model overrides match by prefix ("claude" matches "claude-3-opus")
//
// Estimates are marked with canonical.Usage.Estimated so callers can tell them
// apart from provider-reported counts.
//
// # Usage
//
//	est := tokens.NewSimpleEstimator(&cfg.Processing.Tokens)
//	usage := est.EstimateUsage(req, resp.Content)
package tokens
