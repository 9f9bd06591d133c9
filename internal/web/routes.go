package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/face-recognizer/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	// Create handlers
	healthHandler := handlers.NewHealthHandler(s.deps.Session, s.deps.Gallery, s.deps.Engine)
	galleryHandler := handlers.NewGalleryHandler(s.deps.Gallery, s.deps.Capture, s.log.With().Str("handler", "gallery").Logger())
	sessionHandler := handlers.NewSessionHandler(s.deps.Session, s.log.With().Str("handler", "session").Logger())

	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Get)

		// Gallery
		r.Get("/gallery", galleryHandler.List)
		r.Post("/gallery/capture", galleryHandler.Capture)
		r.Delete("/gallery/{label}", galleryHandler.Remove)

		// Recognition session
		r.Get("/session", sessionHandler.Get)
		r.Post("/session/start", sessionHandler.Start)
		r.Post("/session/stop", sessionHandler.Stop)
		r.Get("/session/events", sessionHandler.Events)
	})
}
