// Package handlers implements the HTTP API of the recognizer.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/kozaktomas/face-recognizer/internal/recognition"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// Gallery is the gallery surface the API exposes.
type Gallery interface {
	Search(query string) []string
	Remove(ctx context.Context, label string) bool
	Len() int
}

// Capturer enrolls faces.
type Capturer interface {
	Capture(ctx context.Context, label string) (*recognition.CaptureResult, error)
}

// Session is the recognition session surface the API exposes.
type Session interface {
	State() recognition.State
	Start(ctx context.Context) error
	Stop()
	Events() *recognition.Broadcaster
}

// EngineStatus reports the face engine circuit breaker state.
type EngineStatus interface {
	BreakerState() string
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
