package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/providers"
	"mercator-hq/prism/pkg/registry"
	"mercator-hq/prism/pkg/routing"
	"mercator-hq/prism/pkg/telemetry/tracing"
)

// Stream is a committed upstream stream.
type Stream struct {
	// C yields the provider's chunks unchanged, then is closed. A failure
	// after the first chunk arrives as a terminal chunk whose Err is a
	// *StreamInterruptedError.
	C <-chan *canonical.Chunk

	// Provider is the id of the provider serving the stream.
	Provider string

	// Attempts are the attempts up to the commit, the last one being the
	// serving provider.
	Attempts []routing.Attempt

	RequestID string

	done     chan struct{}
	decision *routing.Decision
}

// AttemptsHeader formats Attempts like routing.Decision.AttemptsHeader.
func (s *Stream) AttemptsHeader() string {
	d := routing.Decision{Attempts: s.Attempts}
	return d.AttemptsHeader()
}

// Decision blocks until the stream has ended and returns the final decision.
func (s *Stream) Decision() *routing.Decision {
	<-s.done
	return s.decision
}

// DispatchStream serves a streaming request. Candidates are tried until one
// yields a first chunk; from then on the stream is committed and never
// fails over. On error the returned stream is nil.
func (d *Dispatcher) DispatchStream(ctx context.Context, req *canonical.Request, opts Options) (*Stream, error) {
	dec := d.begin(req, opts, true)
	ctx, span := d.tracer.Start(ctx, "dispatch.stream")
	span.SetAttributes(attribute.String(tracing.AttrRequestID, dec.RequestID), attribute.String(tracing.AttrModel, req.Model))

	plan, err := d.plan(req, opts, dec)
	if err != nil {
		d.fail(span, dec, err)
		span.End()
		return nil, err
	}

	var errs []error
	for _, c := range plan.Candidates {
		adapter, err := d.skip(dec, c, plan.Explicit, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_ = advance(dec, routing.StateCalling)

		s, err := d.open(ctx, span, dec, c, adapter, req)
		if err == nil {
			return s, nil
		}
		errs = append(errs, err)

		if ctx.Err() != nil {
			err = fmt.Errorf("request cancelled: %w", ctx.Err())
			d.fail(span, dec, err)
			span.End()
			return nil, err
		}
	}

	err = exhausted(req, dec, errs)
	d.fail(span, dec, err)
	span.End()
	return nil, err
}

// open starts one streaming attempt and waits for its first chunk. On
// success the stream is committed and pumped by a goroutine that owns the
// in-flight slot, the attempt context and the request span.
func (d *Dispatcher) open(ctx context.Context, span trace.Span, dec *routing.Decision, c registry.Snapshot, adapter providers.Provider, req *canonical.Request) (*Stream, error) {
	id := c.ID()
	d.registry.Acquire(id)
	actx, cancel := context.WithCancel(ctx)
	release := func() {
		cancel()
		d.registry.Release(id)
	}

	chunkTimeout := c.Descriptor.EffectiveChunkTimeout()
	connectTimeout := c.Descriptor.AdapterConfig().ConnectTimeout

	start := time.Now()
	connect := time.AfterFunc(connectTimeout, cancel)
	src, err := adapter.Stream(actx, req)
	if !connect.Stop() && err == nil {
		err = &providers.TransportError{Provider: id, Timeout: true, Message: "connect timeout exceeded"}
	}
	if err != nil {
		release()
		if src != nil {
			go drain(src)
		}
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			err = &providers.TransportError{Provider: id, Timeout: true, Message: "connect timeout exceeded", Cause: err}
		}
		d.attemptFailed(dec, id, time.Since(start), err, ctx.Err() != nil)
		return nil, err
	}

	first, err := d.next(ctx, src, chunkTimeout, id)
	if err == nil && first.Err != nil {
		err = first.Err
	}
	latency := time.Since(start)
	if err != nil {
		release()
		go drain(src)
		d.attemptFailed(dec, id, latency, err, ctx.Err() != nil)
		return nil, err
	}

	dec.Provider = id
	_ = advance(dec, routing.StateStreaming)

	out := make(chan *canonical.Chunk)
	s := &Stream{
		C:         out,
		Provider:  id,
		RequestID: dec.RequestID,
		Attempts:  append(slices.Clone(dec.Attempts), routing.Attempt{Provider: id, Outcome: routing.OutcomeSuccess, Latency: latency}),
		done:      make(chan struct{}),
		decision:  dec,
	}

	go func() {
		defer close(s.done)
		defer span.End()
		defer release()
		defer close(out)

		err := d.pump(ctx, src, out, first, chunkTimeout, id)
		switch {
		case err == nil:
			d.attemptSucceeded(dec, id, latency)
			_ = advance(dec, routing.StateComplete)
			d.finish(span, dec, nil)
		default:
			// An interruption is the provider's failure even when the
			// client cancels after reading the error frame.
			var ierr *StreamInterruptedError
			clientGone := !errors.As(err, &ierr) && ctx.Err() != nil
			if clientGone {
				err = fmt.Errorf("client disconnected: %w", ctx.Err())
			}
			d.attemptFailed(dec, id, latency, err, clientGone)
			_ = advance(dec, routing.StateFailed)
			d.finish(span, dec, err)
			go drain(src)
		}
	}()
	return s, nil
}

// next waits for one chunk, bounded by the chunk timeout. A channel closed
// before a terminal chunk is a truncated stream.
func (d *Dispatcher) next(ctx context.Context, src <-chan *canonical.Chunk, timeout time.Duration, id string) (*canonical.Chunk, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c, ok := <-src:
		if !ok {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &providers.TransportError{Provider: id, Message: "stream ended without a terminal chunk"}
		}
		return c, nil
	case <-timer.C:
		return nil, &providers.TransportError{
			Provider: id,
			Timeout:  true,
			Message:  fmt.Sprintf("no chunk within %s", timeout),
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pump forwards first and the rest of src to out, one chunk at a time. It
// returns nil after forwarding a successful terminal chunk. A provider
// failure is forwarded as a terminal chunk and returned as a
// *StreamInterruptedError; a client that went away yields ctx.Err().
func (d *Dispatcher) pump(ctx context.Context, src <-chan *canonical.Chunk, out chan<- *canonical.Chunk, first *canonical.Chunk, timeout time.Duration, id string) error {
	sent := 0
	send := func(c *canonical.Chunk) bool {
		select {
		case out <- c:
			sent++
			return true
		case <-ctx.Done():
			return false
		}
	}

	chunk := first
	for {
		if chunk.Err != nil {
			break
		}
		if !send(chunk) {
			return ctx.Err()
		}
		if chunk.Terminal() {
			return nil
		}

		next, err := d.next(ctx, src, timeout, id)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			chunk = &canonical.Chunk{Err: err}
			break
		}
		chunk = next
	}

	ierr := &StreamInterruptedError{Provider: id, Chunks: sent, Cause: chunk.Err}
	d.logger.Warn("stream interrupted", "provider", id, "chunks", sent, "error", chunk.Err)
	send(&canonical.Chunk{Err: ierr, FinishReason: canonical.FinishError})
	return ierr
}

// drain discards what a producer still sends so it can exit.
func drain(src <-chan *canonical.Chunk) {
	for range src {
	}
}
