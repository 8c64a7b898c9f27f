package routing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/providers"
)

// FakeProvider is a scripted providers.Provider for routing and dispatch
// tests. By default Call answers "ok from <name>" and Stream yields
// "Hello", " world" and a stop chunk.
type FakeProvider struct {
	name string
	kind providers.Kind

	mu         sync.Mutex
	content    string
	err        error
	healthErr  error
	reject     error
	chunks     []*canonical.Chunk
	callDelay  time.Duration
	chunkDelay time.Duration
	hang       bool
	lastReq    *canonical.Request

	calls        atomic.Int64
	streams      atomic.Int64
	healthChecks atomic.Int64
	open         atomic.Int64
	closed       atomic.Bool
}

// NewFakeProvider creates a healthy fake provider.
func NewFakeProvider(name string) *FakeProvider {
	return &FakeProvider{
		name:    name,
		kind:    providers.KindSDK,
		content: "ok from " + name,
		chunks: []*canonical.Chunk{
			{Delta: "Hello"},
			{Delta: " world"},
			{FinishReason: canonical.FinishStop},
		},
	}
}

// SetResponse sets the content returned by Call.
func (f *FakeProvider) SetResponse(content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = content
}

// SetError makes Call and Stream fail with err. Nil restores success.
func (f *FakeProvider) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetRejection makes ValidateRequest fail with err, as an adapter whose
// upstream cannot express a request does. Nil accepts every request.
func (f *FakeProvider) SetRejection(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reject = err
}

// SetHealthError makes HealthCheck fail with err. Nil restores success.
func (f *FakeProvider) SetHealthError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthErr = err
}

// SetStreamChunks replaces the chunks Stream yields, in order.
func (f *FakeProvider) SetStreamChunks(chunks ...*canonical.Chunk) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = chunks
}

// SetCallDelay delays Call and the start of Stream.
func (f *FakeProvider) SetCallDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callDelay = d
}

// SetChunkDelay delays every streamed chunk.
func (f *FakeProvider) SetChunkDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunkDelay = d
}

// SetHang keeps streams open after the scripted chunks until the context is
// cancelled.
func (f *FakeProvider) SetHang(hang bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hang = hang
}

// Calls returns the number of Call invocations.
func (f *FakeProvider) Calls() int { return int(f.calls.Load()) }

// Streams returns the number of Stream invocations.
func (f *FakeProvider) Streams() int { return int(f.streams.Load()) }

// HealthChecks returns the number of HealthCheck invocations.
func (f *FakeProvider) HealthChecks() int { return int(f.healthChecks.Load()) }

// OpenStreams returns the number of stream producers still running.
func (f *FakeProvider) OpenStreams() int { return int(f.open.Load()) }

// Closed reports whether Close was called.
func (f *FakeProvider) Closed() bool { return f.closed.Load() }

// LastRequest returns the last request passed to Call or Stream.
func (f *FakeProvider) LastRequest() *canonical.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

// Name implements providers.Provider.
func (f *FakeProvider) Name() string { return f.name }

// Kind implements providers.Provider.
func (f *FakeProvider) Kind() providers.Kind { return f.kind }

// Close implements providers.Provider.
func (f *FakeProvider) Close() error {
	f.closed.Store(true)
	return nil
}

// Call implements providers.Provider.
func (f *FakeProvider) Call(ctx context.Context, req *canonical.Request) (*canonical.Response, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastReq = req
	content, err, delay := f.content, f.err, f.callDelay
	f.mu.Unlock()

	if err := sleep(ctx, delay); err != nil {
		return nil, &providers.TransportError{Provider: f.name, Timeout: true, Message: err.Error(), Cause: err}
	}
	if err != nil {
		return nil, err
	}
	return &canonical.Response{
		ID:           "fake-" + f.name,
		Model:        req.Model,
		Content:      content,
		FinishReason: canonical.FinishStop,
		Created:      time.Now().Unix(),
		Provider:     f.name,
	}, nil
}

// Stream implements providers.Provider.
func (f *FakeProvider) Stream(ctx context.Context, req *canonical.Request) (<-chan *canonical.Chunk, error) {
	f.streams.Add(1)
	f.mu.Lock()
	f.lastReq = req
	chunks := append([]*canonical.Chunk(nil), f.chunks...)
	err, callDelay, chunkDelay, hang := f.err, f.callDelay, f.chunkDelay, f.hang
	f.mu.Unlock()

	if err := sleep(ctx, callDelay); err != nil {
		return nil, &providers.TransportError{Provider: f.name, Timeout: true, Message: err.Error(), Cause: err}
	}
	if err != nil {
		return nil, err
	}

	out := make(chan *canonical.Chunk)
	f.open.Add(1)
	go func() {
		defer f.open.Add(-1)
		defer close(out)

		for _, c := range chunks {
			if sleep(ctx, chunkDelay) != nil {
				return
			}
			chunk := *c
			if chunk.Model == "" {
				chunk.Model = req.Model
			}
			select {
			case out <- &chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Terminal() {
				return
			}
		}
		if hang {
			<-ctx.Done()
		}
	}()
	return out, nil
}

// ValidateRequest implements providers.RequestValidator.
func (f *FakeProvider) ValidateRequest(*canonical.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reject
}

// HealthCheck implements providers.Provider.
func (f *FakeProvider) HealthCheck(ctx context.Context) error {
	f.healthChecks.Add(1)
	f.mu.Lock()
	err := f.healthErr
	f.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%s: %w", f.name, err)
	}
	return ctx.Err()
}

// ChatRequest returns a one-message chat request for model.
func ChatRequest(model string) *canonical.Request {
	return &canonical.Request{
		Model:    model,
		Kind:     canonical.KindChat,
		Messages: []canonical.Message{{Role: canonical.RoleUser, Content: "Hi"}},
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ providers.Provider = (*FakeProvider)(nil)
