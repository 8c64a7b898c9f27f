// Package anthropic implements the Anthropic messages dialect.
package anthropic
