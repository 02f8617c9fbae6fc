package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-match/internal/web/handlers"
	"github.com/kozaktomas/face-match/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	recognition := handlers.NewRecognitionHandler(
		s.recognizer, s.detector, s.gallery != nil, s.hasClassifier)

	// Health check (no auth required)
	s.router.Get("/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKey(s.config.Web.APIKey))

		// Inference
		r.Post("/detect", recognition.Detect)
		r.Post("/embed", recognition.Embed)
		r.Post("/identify", recognition.Identify)
		r.Post("/verify", recognition.Verify)
		r.Post("/classify", recognition.Classify)

		// Gallery management needs a gallery backend.
		if s.gallery != nil {
			persons := handlers.NewPersonsHandler(s.gallery, s.recognizer)
			r.Post("/persons", persons.Enroll)
			r.Get("/persons", persons.List)
			r.Delete("/persons/{uid}", persons.Remove)
			r.Get("/gallery/stats", persons.Stats)
		}
	})
}
