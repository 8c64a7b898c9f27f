package proxy

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// WriteBody writes an already encoded JSON body.
func WriteBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

// SetRoutingHeaders reports the serving provider and the attempt chain.
func SetRoutingHeaders(w http.ResponseWriter, provider, attempts string) {
	if provider != "" {
		w.Header().Set(HeaderProvider, provider)
	}
	if attempts != "" {
		w.Header().Set(HeaderAttempts, attempts)
	}
}
