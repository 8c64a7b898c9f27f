package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
	"mercator-hq/prism/pkg/dispatch"
	"mercator-hq/prism/pkg/normalizer"
	"mercator-hq/prism/pkg/proxy"
	"mercator-hq/prism/pkg/routing"
	"mercator-hq/prism/pkg/streaming"
	"mercator-hq/prism/pkg/telemetry/logging"
	"mercator-hq/prism/pkg/telemetry/tracing"
)

// Metrics receives what the gateway measures beyond the dispatcher's own
// observations. *metrics.Collector implements it.
type Metrics interface {
	RecordTokens(provider, model string, promptTokens, completionTokens int)
	StreamStarted(dialect string)
	StreamFinished(dialect, provider string, chunks int, interrupted bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordTokens(string, string, int, int)    {}
func (noopMetrics) StreamStarted(string)                     {}
func (noopMetrics) StreamFinished(string, string, int, bool) {}

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// MaxBodyBytes limits inbound bodies. Default 10MB.
	MaxBodyBytes int64

	// Metrics is optional.
	Metrics Metrics
}

// Gateway serves the dialect endpoints. Each request is decoded in the
// dialect its path belongs to, dispatched, and answered in that same
// dialect, including errors and stream frames.
type Gateway struct {
	dispatcher *dispatch.Dispatcher
	normalizer *normalizer.Normalizer
	config     GatewayConfig
	metrics    Metrics
	logger     *slog.Logger
}

// NewGateway creates a gateway handler.
func NewGateway(d *dispatch.Dispatcher, n *normalizer.Normalizer, cfg GatewayConfig) *Gateway {
	m := cfg.Metrics
	if m == nil {
		m = noopMetrics{}
	}
	return &Gateway{
		dispatcher: d,
		normalizer: n,
		config:     cfg,
		metrics:    m,
		logger:     slog.Default().With("component", "gateway"),
	}
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, ok := dialect.MatchPath(r.URL.Path)
	if !ok {
		proxy.WriteError(w, g.normalizer, canonical.DialectOpenAI, &proxy.RequestError{
			Status:  http.StatusNotFound,
			Message: fmt.Sprintf("unknown endpoint %s", r.URL.Path),
			Code:    "unknown_url",
		})
		return
	}
	d := route.Dialect

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		proxy.WriteError(w, g.normalizer, d, &proxy.RequestError{
			Status:  http.StatusMethodNotAllowed,
			Message: fmt.Sprintf("method %s not allowed, use POST", r.Method),
			Code:    "method_not_allowed",
		})
		return
	}

	body, err := proxy.ReadBody(w, r, g.config.MaxBodyBytes)
	if err != nil {
		proxy.WriteError(w, g.normalizer, d, err)
		return
	}

	req, err := g.normalizer.ToCanonical(d, body, route.Hints)
	if err != nil {
		slog.DebugContext(r.Context(), "rejected request body", "dialect", d, "error", err)
		proxy.WriteError(w, g.normalizer, d, err)
		return
	}

	ctx := logging.WithDialect(r.Context(), string(d))
	ctx = logging.WithModel(ctx, req.Model)
	requestID := logging.GetRequestID(ctx)
	tracing.SetRequestAttributes(trace.SpanFromContext(ctx), requestID, string(d), req.Model, req.Stream)

	opts := dispatch.Options{
		RequestID: requestID,
		Provider:  r.Header.Get(proxy.HeaderProvider),
		Dialect:   d,
	}

	if req.Stream {
		g.serveStream(ctx, w, d, req, opts)
		return
	}
	g.serveCall(ctx, w, d, req, opts)
}

func (g *Gateway) serveCall(ctx context.Context, w http.ResponseWriter, d canonical.Dialect, req *canonical.Request, opts dispatch.Options) {
	resp, dec, err := g.dispatcher.Dispatch(ctx, req, opts)
	proxy.SetRoutingHeaders(w, dec.Provider, dec.AttemptsHeader())
	if err != nil {
		g.logger.WarnContext(ctx, "request failed", "attempts", len(dec.Attempts), "error", err)
		proxy.WriteError(w, g.normalizer, d, err)
		return
	}

	out, err := g.normalizer.FromCanonical(d, req, resp)
	if err != nil {
		proxy.WriteError(w, g.normalizer, d, fmt.Errorf("failed to encode response: %w", err))
		return
	}
	if resp.Usage != nil {
		g.metrics.RecordTokens(dec.Provider, req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	proxy.WriteBody(w, http.StatusOK, out)
}

func (g *Gateway) serveStream(ctx context.Context, w http.ResponseWriter, d canonical.Dialect, req *canonical.Request, opts dispatch.Options) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := g.dispatcher.DispatchStream(ctx, req, opts)
	if err != nil {
		var gerr *dispatch.GatewayExhaustedError
		if errors.As(err, &gerr) {
			dec := routing.Decision{Attempts: gerr.Attempts}
			proxy.SetRoutingHeaders(w, "", dec.AttemptsHeader())
		}
		g.logger.WarnContext(ctx, "stream failed before the first chunk", "error", err)
		proxy.WriteError(w, g.normalizer, d, err)
		return
	}

	proxy.SetRoutingHeaders(w, s.Provider, s.AttemptsHeader())
	streaming.SetHeaders(w)
	w.WriteHeader(http.StatusOK)

	g.metrics.StreamStarted(string(d))
	enc := g.normalizer.MustCodec(d).NewStreamEncoder(req, "")
	sum, err := streaming.NewTranslator(w, enc, req, g.normalizer.Estimator()).
		WithErrorMapper(proxy.ErrorInfo).
		Pipe(ctx, s.C)

	// Unblocks the pump when the client went away mid-stream.
	cancel()
	dec := s.Decision()

	interrupted := sum.Err != nil || err != nil
	g.metrics.StreamFinished(string(d), s.Provider, sum.Chunks, interrupted)
	if sum.Usage != nil {
		g.metrics.RecordTokens(s.Provider, req.Model, sum.Usage.PromptTokens, sum.Usage.CompletionTokens)
	}

	switch {
	case err != nil:
		g.logger.InfoContext(ctx, "client stream ended early", "provider", s.Provider, "chunks", sum.Chunks, "error", err)
	case sum.Err != nil:
		g.logger.WarnContext(ctx, "stream interrupted", "provider", s.Provider, "chunks", sum.Chunks, "error", sum.Err)
	default:
		g.logger.DebugContext(ctx, "stream complete",
			"provider", s.Provider,
			"chunks", sum.Chunks,
			"state", dec.State,
			"first_chunk_ms", sum.FirstChunk.Milliseconds(),
		)
	}
}
