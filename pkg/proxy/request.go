package proxy

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"mercator-hq/prism/pkg/dialect"
)

const (
	// HeaderRequestID carries the request id in both directions.
	HeaderRequestID = "X-Request-ID"

	// HeaderProvider selects an explicit provider on the way in and names
	// the serving provider on the way out.
	HeaderProvider = "X-Prism-Provider"

	// HeaderAttempts lists the attempts of a request as provider:outcome.
	HeaderAttempts = "X-Prism-Attempts"

	// ContentTypeJSON is the content type of every non-streaming response.
	ContentTypeJSON = "application/json"
)

// DefaultMaxBodyBytes is used when no body limit is configured.
const DefaultMaxBodyBytes = 10 << 20

// ReadBody reads the request body up to limit bytes. An oversized body is a
// 413 RequestError; an empty one is a ValidationError.
func ReadBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, &RequestError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", limit),
				Code:    "request_too_large",
			}
		}
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, dialect.Invalid("body", "request body is empty")
	}
	return body, nil
}

// ClientKey identifies the caller for rate limiting. A configured header
// wins; otherwise a hash of the presented API key, then the remote IP.
func ClientKey(r *http.Request, header string) string {
	if header != "" {
		if v := r.Header.Get(header); v != "" {
			return "h:" + v
		}
	}
	if key := apiKey(r); key != "" {
		sum := sha256.Sum256([]byte(key))
		return "k:" + hex.EncodeToString(sum[:8])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func apiKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return auth
	}
	for _, h := range []string{"x-api-key", "x-goog-api-key"} {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	return r.URL.Query().Get("key")
}
