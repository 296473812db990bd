package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-monitor/internal/web/handlers"
)

// requestTimeout bounds every non-streaming request.
const requestTimeout = 2 * time.Minute

func (s *Server) setupRoutes() {
	configHandler := handlers.NewConfigHandler(s.config)
	sessionsHandler := handlers.NewSessionsHandler(s.config, s.registry, s.images, s.renderer)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Event streams are long-lived and must not be cut by the request timeout.
		r.Get("/sessions/{id}/events", sessionsHandler.Events)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(requestTimeout))

			r.Get("/config", configHandler.Get)

			// Sessions (one per mounted view)
			r.Post("/sessions", sessionsHandler.Create)
			r.Get("/sessions", sessionsHandler.List)
			r.Get("/sessions/{id}", sessionsHandler.Get)
			r.Delete("/sessions/{id}", sessionsHandler.Delete)

			// Camera and analysis actions
			r.Post("/sessions/{id}/camera/start", sessionsHandler.StartCamera)
			r.Post("/sessions/{id}/camera/stop", sessionsHandler.StopCamera)
			r.Post("/sessions/{id}/capture", sessionsHandler.Capture)
			r.Post("/sessions/{id}/upload", sessionsHandler.Upload)

			// Geometry
			r.Put("/sessions/{id}/display", sessionsHandler.Display)
			r.Put("/sessions/{id}/natural", sessionsHandler.Natural)

			// Results
			r.Get("/sessions/{id}/detections", sessionsHandler.Detections)
			r.Get("/sessions/{id}/overlay.png", sessionsHandler.Overlay)
		})
	})
}
