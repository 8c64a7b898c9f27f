package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
	"mercator-hq/prism/pkg/providers"
	"mercator-hq/prism/pkg/registry"
	"mercator-hq/prism/pkg/routing"
	"mercator-hq/prism/pkg/telemetry/tracing"
)

// Recorder receives every finished routing decision. It must not block.
type Recorder interface {
	Record(d *routing.Decision)
}

// Observer receives per-attempt and per-request measurements.
type Observer interface {
	ObserveAttempt(provider string, outcome routing.Outcome, latency time.Duration)
	ObserveDecision(d *routing.Decision)
}

// Config configures a Dispatcher.
type Config struct {
	// CallTimeout bounds a non-streaming attempt for providers whose
	// descriptor sets no timeout. Default 60s.
	CallTimeout time.Duration

	Recorder Recorder
	Observer Observer
}

// Options are per-request dispatch options.
type Options struct {
	// RequestID identifies the request in logs and the decision record.
	// Generated when empty.
	RequestID string

	// Provider names an explicit provider. Selection is bypassed.
	Provider string

	// Dialect is the client dialect, for the decision record.
	Dialect canonical.Dialect
}

// Dispatcher walks a routing plan, calling providers until one succeeds.
type Dispatcher struct {
	registry *registry.Registry
	balancer *routing.Balancer
	config   Config
	tracer   trace.Tracer
	logger   *slog.Logger
}

// New creates a dispatcher.
func New(r *registry.Registry, b *routing.Balancer, cfg Config) *Dispatcher {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	return &Dispatcher{
		registry: r,
		balancer: b,
		config:   cfg,
		tracer:   otel.Tracer("mercator-hq/prism/dispatch"),
		logger:   slog.Default().With("component", "dispatch"),
	}
}

func (d *Dispatcher) begin(req *canonical.Request, opts Options, stream bool) *routing.Decision {
	id := opts.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	return &routing.Decision{
		RequestID: id,
		Model:     req.Model,
		Dialect:   opts.Dialect,
		Stream:    stream,
		State:     routing.StateInit,
		Start:     time.Now(),
	}
}

// plan runs SELECTING and fills the decision's chain.
func (d *Dispatcher) plan(req *canonical.Request, opts Options, dec *routing.Decision) (*routing.Plan, error) {
	_ = advance(dec, routing.StateSelecting)
	plan, err := d.balancer.Plan(req, opts.Provider)
	if err != nil {
		return nil, err
	}
	dec.Strategy = plan.Strategy
	dec.Explicit = plan.Explicit
	dec.Candidates = plan.IDs()
	return plan, nil
}

// skip records a candidate that is not called. It returns the adapter when
// the candidate is callable. A rejected request is not held against the
// provider's health.
func (d *Dispatcher) skip(dec *routing.Decision, c registry.Snapshot, explicit bool, req *canonical.Request) (providers.Provider, error) {
	var (
		reason   string
		rejected *dialect.ValidationError
	)
	adapter, ok := d.registry.Provider(c.ID())
	switch {
	case !ok:
		reason = "disabled"
	case explicit && c.Status == registry.StatusUnhealthy:
		reason = "unhealthy"
	default:
		v, ok := adapter.(providers.RequestValidator)
		if !ok {
			return adapter, nil
		}
		err := v.ValidateRequest(req)
		if err == nil {
			return adapter, nil
		}
		if !errors.As(err, &rejected) {
			rejected = &dialect.ValidationError{Message: err.Error(), Cause: err}
		}
		reason = "request rejected: " + rejected.Error()
	}

	err := &ProviderUnavailableError{Provider: c.ID(), Reason: reason, Rejected: rejected}
	dec.Attempts = append(dec.Attempts, routing.Attempt{
		Provider: c.ID(),
		Outcome:  routing.OutcomeSkipped,
		Error:    err.Error(),
	})
	d.logger.Warn("provider skipped", "request_id", dec.RequestID, "provider", c.ID(), "reason", reason)
	return nil, err
}

// Dispatch serves a non-streaming request. The returned decision is final
// and never nil.
func (d *Dispatcher) Dispatch(ctx context.Context, req *canonical.Request, opts Options) (*canonical.Response, *routing.Decision, error) {
	dec := d.begin(req, opts, false)
	ctx, span := d.tracer.Start(ctx, "dispatch", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(attribute.String(tracing.AttrRequestID, dec.RequestID), attribute.String(tracing.AttrModel, req.Model))

	plan, err := d.plan(req, opts, dec)
	if err != nil {
		return nil, d.fail(span, dec, err), err
	}

	var errs []error
	for _, c := range plan.Candidates {
		adapter, err := d.skip(dec, c, plan.Explicit, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_ = advance(dec, routing.StateCalling)

		resp, err := d.call(ctx, dec, c, adapter, req)
		if err == nil {
			dec.Provider = c.ID()
			_ = advance(dec, routing.StateComplete)
			d.finish(span, dec, nil)
			return resp, dec, nil
		}
		errs = append(errs, err)

		if ctx.Err() != nil {
			err = fmt.Errorf("request cancelled: %w", ctx.Err())
			return nil, d.fail(span, dec, err), err
		}
	}

	err = exhausted(req, dec, errs)
	return nil, d.fail(span, dec, err), err
}

// exhausted builds the error for a chain that produced no response. When no
// candidate was called and one rejected the request, the request itself is
// invalid.
func exhausted(req *canonical.Request, dec *routing.Decision, errs []error) error {
	called := slices.ContainsFunc(dec.Attempts, func(a routing.Attempt) bool {
		return a.Outcome != routing.OutcomeSkipped
	})
	if !called {
		for _, err := range errs {
			var pu *ProviderUnavailableError
			if errors.As(err, &pu) && pu.Rejected != nil {
				return pu.Rejected
			}
		}
	}
	return &GatewayExhaustedError{Model: req.Model, Attempts: dec.Attempts, Errs: errs}
}

// call performs one non-streaming attempt.
func (d *Dispatcher) call(ctx context.Context, dec *routing.Decision, c registry.Snapshot, adapter providers.Provider, req *canonical.Request) (*canonical.Response, error) {
	id := c.ID()
	d.registry.Acquire(id)
	defer d.registry.Release(id)

	timeout := c.Descriptor.Timeout
	if timeout <= 0 {
		timeout = d.config.CallTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	actx, span := d.tracer.Start(actx, "dispatch.attempt")
	defer span.End()
	tracing.SetProviderAttributes(span, id, req.Model)
	tracing.SetRetryAttribute(span, len(dec.Attempts))

	start := time.Now()
	resp, err := adapter.Call(actx, req)
	latency := time.Since(start)

	if err == nil && resp == nil {
		err = &providers.ProtocolError{Provider: id, Message: "empty response"}
	}
	if err != nil {
		if ctx.Err() == nil {
			err = providers.Classify(id, err)
		}
		d.attemptFailed(dec, id, latency, err, ctx.Err() != nil)
		tracing.SetError(span, err)
		tracing.SetStatus(span, err)
		return nil, err
	}

	if resp.Model == "" {
		resp.Model = req.Model
	}
	resp.Provider = id
	d.attemptSucceeded(dec, id, latency)
	tracing.SetStatus(span, nil)
	return resp, nil
}

func (d *Dispatcher) attemptSucceeded(dec *routing.Decision, id string, latency time.Duration) {
	d.registry.RecordOutcome(id, true, latency, nil)
	dec.Attempts = append(dec.Attempts, routing.Attempt{
		Provider: id,
		Outcome:  routing.OutcomeSuccess,
		Latency:  latency,
	})
	if d.config.Observer != nil {
		d.config.Observer.ObserveAttempt(id, routing.OutcomeSuccess, latency)
	}
}

// attemptFailed records a failed attempt. A failure caused by the client
// going away is not held against the provider.
func (d *Dispatcher) attemptFailed(dec *routing.Decision, id string, latency time.Duration, err error, clientGone bool) {
	if !clientGone {
		d.registry.RecordOutcome(id, false, latency, err)
	}
	dec.Attempts = append(dec.Attempts, failedAttempt(id, latency, err))
	if d.config.Observer != nil {
		d.config.Observer.ObserveAttempt(id, routing.OutcomeFailure, latency)
	}
	d.logger.Warn("provider attempt failed",
		"request_id", dec.RequestID,
		"provider", id,
		"latency", latency,
		"error", err,
	)
}

func failedAttempt(id string, latency time.Duration, err error) routing.Attempt {
	a := routing.Attempt{
		Provider: id,
		Outcome:  routing.OutcomeFailure,
		Error:    err.Error(),
		Latency:  latency,
		Timeout:  providers.IsTimeout(err),
	}
	var te *providers.TransportError
	if errors.As(err, &te) {
		a.StatusCode = te.StatusCode
	}
	return a
}

// fail moves the decision to FAILED and hands it off.
func (d *Dispatcher) fail(span trace.Span, dec *routing.Decision, err error) *routing.Decision {
	_ = advance(dec, routing.StateFailed)
	d.finish(span, dec, err)
	return dec
}

// finish stamps the decision and hands it to the recorder and observer.
func (d *Dispatcher) finish(span trace.Span, dec *routing.Decision, err error) {
	dec.End = time.Now()
	if err != nil {
		dec.Error = err.Error()
		tracing.SetError(span, err)
	}
	tracing.SetStatus(span, err)
	span.SetAttributes(
		attribute.String("prism.dispatch.state", string(dec.State)),
		attribute.String(tracing.AttrProvider, dec.Provider),
	)

	if d.config.Observer != nil {
		d.config.Observer.ObserveDecision(dec)
	}
	if d.config.Recorder != nil {
		d.config.Recorder.Record(dec)
	}

	level := slog.LevelInfo
	if dec.State == routing.StateFailed {
		level = slog.LevelWarn
	}
	d.logger.Log(context.Background(), level, "request dispatched",
		"request_id", dec.RequestID,
		"model", dec.Model,
		"stream", dec.Stream,
		"state", dec.State,
		"provider", dec.Provider,
		"attempts", len(dec.Attempts),
		"duration", dec.Duration(),
	)
}
