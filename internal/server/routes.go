package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)

			r.Get("/stream", s.getStream)
			r.Post("/cancel", s.cancelSession)
			r.Post("/answer", s.answerQuestion)
		})
	})

	// Event streaming (SSE); optional ?sessionID= filter.
	r.Get("/event", s.events)
}
