package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"mercator-hq/prism/pkg/proxy"
	"mercator-hq/prism/pkg/telemetry/logging"
)

// validRequestID bounds what a client may send as its own request id.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// RequestIDMiddleware assigns every request an id, stores it in the context
// for logging and sets the X-Request-ID response header. A well-formed id
// supplied by the client is kept; anything else is replaced by a UUID.
//
// Example usage:
//
//	handler = RequestIDMiddleware(handler)
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(proxy.HeaderRequestID)
		if !validRequestID.MatchString(requestID) {
			requestID = uuid.NewString()
		}

		w.Header().Set(proxy.HeaderRequestID, requestID)
		ctx := logging.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request id assigned by RequestIDMiddleware.
func GetRequestID(r *http.Request) string {
	return logging.GetRequestID(r.Context())
}
