package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/prism/pkg/normalizer"
	"mercator-hq/prism/pkg/proxy"
)

// RecoveryMiddleware turns a handler panic into a 500 in the envelope of
// the dialect the path belongs to. The panic and its stack are logged; the
// client never sees them. http.ErrAbortHandler is re-panicked so the server
// can abort the connection.
//
// Example usage:
//
//	handler = RecoveryMiddleware(n)(handler)
func RecoveryMiddleware(n *normalizer.Normalizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				slog.ErrorContext(r.Context(), "panic in handler",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				proxy.WriteError(w, n, proxy.DialectForPath(r.URL.Path), fmt.Errorf("panic: %v", rec))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
