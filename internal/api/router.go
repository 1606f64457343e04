package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.metrics.Middleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", r.URL.Path)
	})

	if s.metrics != nil {
		r.Handle(s.metricsPath, s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/movements", func(r chi.Router) {
			r.Get("/", s.handleListMovements)
			r.Post("/", s.handleCreateMovement)
			r.Delete("/", s.handleDeleteMovementByExternalID)
			r.Get("/pending", s.handleListPending)
			r.Get("/pending/archive", s.handleListPendingArchive)
			r.Get("/received", s.handleListReceived)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetMovement)
				r.Delete("/", s.handleDeleteMovement)
			})
		})

		r.Get("/locations", s.handleListLocations)
		r.Get("/endpoints", s.handleListEndpoints)
		r.Get("/logs/{log}", s.handleLog)
		r.Post("/configuration/reload", s.handleReload)

		r.Route("/help/error", func(r chi.Router) {
			r.Get("/", s.handleListHelp)
			r.Get("/{code}", s.handleGetHelp)
		})

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

// wsPath is the WebSocket route below /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}
