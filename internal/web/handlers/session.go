package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-recognizer/internal/recognition"
)

// SessionHandler controls the recognition session.
type SessionHandler struct {
	session Session
	log     zerolog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(session Session, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{session: session, log: log}
}

// StateResponse reports the session state.
type StateResponse struct {
	State recognition.State `json:"state"`
}

// Get returns the session state.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StateResponse{State: h.session.State()})
}

// Start starts the session.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Start(r.Context()); err != nil {
		if errors.Is(err, recognition.ErrInvalidInput) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("failed to start session")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, StateResponse{State: h.session.State()})
}

// Stop stops the session.
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.session.Stop()
	respondJSON(w, http.StatusOK, StateResponse{State: h.session.State()})
}

// Events streams session events via SSE until the client disconnects.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	stream, ok := openEventStream(w)
	if !ok {
		return
	}

	events := h.session.Events()
	id, eventCh := events.Subscribe()
	defer events.Unsubscribe(id)
	log := h.log.With().Str("subscriber", id).Logger()
	log.Debug().Msg("event stream opened")

	err := stream.send(recognition.EventState, recognition.Event{
		Type: recognition.EventState,
		Data: recognition.StateChange{State: h.session.State()},
	})
	for err == nil {
		select {
		case <-r.Context().Done():
			log.Debug().Msg("event stream closed")
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			err = stream.send(event.Type, event)
		}
	}
	log.Debug().Err(err).Msg("event stream dropped")
}
