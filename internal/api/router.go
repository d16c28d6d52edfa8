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
	r.Use(s.bodySizeLimitMiddleware)

	// Artifact download. Deliberately unauthenticated: devices fetch from
	// the URI in their offer and carry no admin credentials. Only
	// catalogued file names resolve.
	r.Get("/firmware/{fileName}", s.handleDownloadFirmware)

	// Device realtime channel
	r.Get(s.cfg.WebSocket.Path, s.handleDeviceWS)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Fleet view
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Get("/{id}", s.handleGetDevice)
			})

			// Firmware catalogue
			r.Route("/firmwares", func(r chi.Router) {
				r.Get("/", s.handleListFirmwares)
				r.Post("/", s.handleUploadFirmware)
				r.Get("/latest", s.handleLatestFirmware)
				r.Delete("/{id}", s.handleDeleteFirmware)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"devices_online": s.hub.Count(),
	})
}
