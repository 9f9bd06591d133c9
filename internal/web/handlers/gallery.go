package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-recognizer/internal/gallery"
	"github.com/kozaktomas/face-recognizer/internal/recognition"
)

// GalleryHandler handles gallery management and face capture.
type GalleryHandler struct {
	gallery Gallery
	capture Capturer
	log     zerolog.Logger
}

// NewGalleryHandler creates a new gallery handler
func NewGalleryHandler(g Gallery, capture Capturer, log zerolog.Logger) *GalleryHandler {
	return &GalleryHandler{gallery: g, capture: capture, log: log}
}

// LabelsResponse lists gallery labels in insertion order.
type LabelsResponse struct {
	Labels []string `json:"labels"`
}

// CaptureRequest is the body of a capture.
type CaptureRequest struct {
	Label string `json:"label"`
}

// List returns the gallery labels, optionally filtered by the q query parameter.
func (h *GalleryHandler) List(w http.ResponseWriter, r *http.Request) {
	labels := h.gallery.Search(r.URL.Query().Get("q"))
	respondJSON(w, http.StatusOK, LabelsResponse{Labels: labels})
}

// Remove deletes a label. Removing an unknown label also succeeds.
func (h *GalleryHandler) Remove(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	if r.URL.RawPath != "" {
		// chi routed on the escaped path
		unescaped, err := url.PathUnescape(label)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid label")
			return
		}
		label = unescaped
	}
	if label == "" {
		respondError(w, http.StatusBadRequest, "invalid label")
		return
	}

	removed := h.gallery.Remove(r.Context(), label)
	h.log.Info().Str("label", sanitizeForLog(label)).Bool("removed", removed).Msg("gallery remove requested")
	w.WriteHeader(http.StatusNoContent)
}

// Capture binds the face currently in front of the camera to a label.
func (h *GalleryHandler) Capture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	result, err := h.capture.Capture(r.Context(), req.Label)
	if err != nil {
		status := captureStatus(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Str("label", sanitizeForLog(req.Label)).Msg("capture failed")
		}
		respondError(w, status, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// captureStatus maps capture errors to HTTP status codes.
func captureStatus(err error) int {
	switch {
	case errors.Is(err, recognition.ErrInvalidInput),
		errors.Is(err, gallery.ErrInvalidLabel):
		return http.StatusBadRequest
	case errors.Is(err, recognition.ErrNoFaceDetected),
		errors.Is(err, gallery.ErrInvalidSignature):
		return http.StatusUnprocessableEntity
	case errors.Is(err, recognition.ErrInference):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
