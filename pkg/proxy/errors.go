package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/dialect"
	"mercator-hq/prism/pkg/dispatch"
	"mercator-hq/prism/pkg/normalizer"
	"mercator-hq/prism/pkg/routing"
)

// StatusClientClosedRequest is logged for requests whose client went away
// before a response was written.
const StatusClientClosedRequest = 499

// ErrRateLimited is returned when a client exceeded its request rate.
var ErrRateLimited = errors.New("rate limit exceeded")

// RequestError is a request the gateway rejects before decoding the body.
type RequestError struct {
	Status  int
	Message string
	Code    string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return e.Message
}

// ErrorInfo maps a gateway failure to the dialect-neutral envelope content.
// Upstream error bodies and internal details are never copied into the
// message of an unknown error.
func ErrorInfo(err error) dialect.ErrorInfo {
	var (
		verr *dialect.ValidationError
		rerr *RequestError
		nerr *routing.NoProvidersError
		perr *routing.ProviderNotFoundError
		gerr *dispatch.GatewayExhaustedError
		serr *dispatch.StreamInterruptedError
	)

	switch {
	case errors.As(err, &verr):
		return dialect.InfoFromValidation(verr)

	case errors.As(err, &rerr):
		return dialect.ErrorInfo{
			Kind:    dialect.KindInvalidRequest,
			Status:  rerr.Status,
			Message: rerr.Message,
			Code:    rerr.Code,
		}

	case errors.As(err, &nerr):
		return dialect.ErrorInfo{
			Kind:    dialect.KindUnavailable,
			Message: nerr.Error(),
			Param:   "model",
			Code:    "provider_unavailable",
		}

	case errors.As(err, &perr):
		return dialect.ErrorInfo{
			Kind:    dialect.KindNotFound,
			Message: perr.Error(),
			Code:    "provider_not_found",
		}

	case errors.As(err, &gerr):
		status := gerr.StatusCode()
		info := dialect.ErrorInfo{Kind: dialect.KindUpstream, Status: status, Message: gerr.Error(), Code: "gateway_exhausted"}
		switch status {
		case http.StatusServiceUnavailable:
			info.Kind = dialect.KindUnavailable
			info.Code = "provider_unavailable"
		case http.StatusGatewayTimeout:
			info.Kind = dialect.KindTimeout
			info.Code = "upstream_timeout"
		}
		return info

	case errors.As(err, &serr):
		return dialect.ErrorInfo{
			Kind:    dialect.KindUpstream,
			Message: "the upstream provider stream was interrupted",
			Code:    "stream_interrupted",
		}

	case errors.Is(err, context.DeadlineExceeded):
		return dialect.ErrorInfo{
			Kind:    dialect.KindTimeout,
			Message: "the request timed out",
			Code:    "timeout",
		}

	case errors.Is(err, context.Canceled):
		return dialect.ErrorInfo{
			Kind:    dialect.KindInvalidRequest,
			Status:  StatusClientClosedRequest,
			Message: "the client closed the request",
			Code:    "client_closed_request",
		}

	case errors.Is(err, ErrRateLimited):
		return dialect.ErrorInfo{
			Kind:    dialect.KindRateLimit,
			Message: "rate limit exceeded, retry later",
			Code:    "rate_limit_exceeded",
		}
	}

	return dialect.ErrorInfo{
		Kind:    dialect.KindInternal,
		Message: "an internal error occurred, please try again later",
		Code:    "internal_error",
	}
}

// WriteError renders err in dialect d's native envelope.
func WriteError(w http.ResponseWriter, n *normalizer.Normalizer, d canonical.Dialect, err error) {
	info := ErrorInfo(err)
	if info.Kind == dialect.KindInternal {
		slog.Error("unexpected gateway error", "dialect", d, "error", err)
	}
	writeEnvelope(w, info.HTTPStatus(), n.EncodeError(d, info))
}

// WriteErrorInfo renders info in dialect d's native envelope.
func WriteErrorInfo(w http.ResponseWriter, n *normalizer.Normalizer, d canonical.Dialect, info dialect.ErrorInfo) {
	writeEnvelope(w, info.HTTPStatus(), n.EncodeError(d, info))
}

func writeEnvelope(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// DialectForPath returns the dialect of an inbound path, defaulting to
// OpenAI for paths no dialect owns.
func DialectForPath(path string) canonical.Dialect {
	if route, ok := dialect.MatchPath(path); ok {
		return route.Dialect
	}
	return canonical.DialectOpenAI
}
