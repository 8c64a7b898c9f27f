// Package streaming re-frames canonical chunks for a streaming client.
//
// A Translator writes each canonical chunk as exactly one content-bearing
// event in the client's dialect and flushes after every chunk, so the
// client sees tokens as soon as the provider produces them. Chunks are never
// merged, split or reordered. Protocol bookkeeping that a dialect requires
// (the Anthropic message_start preamble, the OpenAI [DONE] trailer) is
// emitted by the dialect's stream encoder around the content events.
//
//	t := streaming.NewTranslator(w, codec.NewStreamEncoder(req, id), req, estimator)
//	summary, err := t.Pipe(ctx, stream.C)
package streaming
