// Package sdk implements the in-process adapter variant. Go clients are
// registered by name with Register and selected by a provider descriptor's
// client field. The package ships the "echo" client, which replies with the
// last user message one word at a time and is useful for smoke tests and
// local development.
package sdk
