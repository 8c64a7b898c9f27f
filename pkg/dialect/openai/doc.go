// Package openai implements the OpenAI chat/completions dialect.
//
// Both /v1/chat/completions and the legacy /v1/completions are handled; the
// latter is carried through the gateway as canonical.KindCompletion so the
// response comes back as a text_completion object.
package openai
