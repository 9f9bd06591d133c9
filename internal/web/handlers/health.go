package handlers

import "net/http"

// HealthHandler reports liveness and a summary of the recognizer state.
type HealthHandler struct {
	session Session
	gallery Gallery
	engine  EngineStatus
}

// NewHealthHandler creates a health handler. engine may be nil.
func NewHealthHandler(session Session, gallery Gallery, engine EngineStatus) *HealthHandler {
	return &HealthHandler{session: session, gallery: gallery, engine: engine}
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Session string `json:"session"`
	Labels  int    `json:"labels"`
	Engine  string `json:"engine,omitempty"`
}

// Get handles the health check endpoint.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Session: string(h.session.State()),
		Labels:  h.gallery.Len(),
	}
	if h.engine != nil {
		resp.Engine = h.engine.BreakerState()
	}
	respondJSON(w, http.StatusOK, resp)
}
