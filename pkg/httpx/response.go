package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope is the response wrapper used by every learnhub endpoint.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// WriteJSON writes a JSON response with the given status code.
// It automatically sets the Content-Type header and Cache-Control headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteEnvelope writes data wrapped in an Envelope whose code mirrors the
// HTTP status.
func WriteEnvelope(w http.ResponseWriter, code int, message string, data any) {
	if message == "" {
		message = http.StatusText(code)
	}
	WriteJSON(w, code, Envelope{Code: code, Message: message, Data: data})
}

// WriteError writes a failure envelope with no data.
func WriteError(w http.ResponseWriter, code int, message string) {
	WriteEnvelope(w, code, message, nil)
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// This is commonly required for sensitive responses like tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
