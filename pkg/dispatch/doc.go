// Package dispatch executes routed requests.
//
// A Dispatcher asks the routing.Balancer for a fallback chain and walks it:
// each candidate gets its own deadline, every failure is recorded against
// the provider in the registry and the next candidate is tried. The first
// success ends the walk. When the chain is exhausted the caller receives a
// *GatewayExhaustedError listing every attempt.
//
// Streaming requests fail over only until the first chunk arrives. After
// that the stream is committed to its provider and a later failure ends it
// with a terminal chunk carrying a *StreamInterruptedError.
//
// Every request moves through INIT, SELECTING, CALLING and optionally
// STREAMING before ending in COMPLETE or FAILED. The finished
// routing.Decision is handed to the configured Recorder and Observer.
package dispatch
