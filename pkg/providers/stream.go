package providers

import (
	"context"
	"errors"
	"io"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
)

// Pump forwards decoded chunks to a channel until the terminal chunk, a
// failure or ctx cancellation, then closes body and the channel. Failures are
// delivered as a terminal chunk with Err set. The channel is unbuffered so
// the producer never reads ahead of the consumer.
func Pump(ctx context.Context, provider string, dec dialect.StreamDecoder, body io.Closer) <-chan *canonical.Chunk {
	out := make(chan *canonical.Chunk)

	go func() {
		defer close(out)
		defer body.Close()

		for {
			chunk, err := dec.Next()
			if errors.Is(err, io.EOF) {
				// decoders only report EOF after their terminal chunk
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					err = ctx.Err()
				}
				chunk = &canonical.Chunk{Err: Classify(provider, err)}
			}

			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Terminal() {
				return
			}
		}
	}()

	return out
}
