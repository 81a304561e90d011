package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleListStatus)

		r.Route("/points", func(r chi.Router) {
			r.Get("/", s.handleListPoints)
			r.Post("/update", s.handleUpdatePoint)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Route("/{key}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Patch("/", s.handlePatchDevice)
				r.Get("/points", s.handleGetDevicePoints)
			})
		})

		r.Get("/ws", s.hub.ServeHTTP)
	})

	return r
}
