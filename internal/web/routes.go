package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-gallery/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	// Create handlers
	configHandler := handlers.NewConfigHandler(s.config, s.registry)
	galleryHandler := handlers.NewGalleryHandler(s.config, s.registry, s.extractor)
	syncHandler := handlers.NewSyncHandler(s.config, s.registry, s.extractor, s.jobManager)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Config
		r.Get("/config", configHandler.Get)

		// Recognition
		r.Post("/recognize", galleryHandler.Recognize)

		// Persons and identities
		r.Post("/persons", galleryHandler.AddPerson)
		r.Post("/identities", galleryHandler.ListIdentities)
		r.Get("/sections/{section}/identities", galleryHandler.ListSection)
		r.Get("/sections/{section}/lookalikes", galleryHandler.Lookalikes)
		r.Delete("/sections/{section}/identities/{name}", galleryHandler.Evict)
		r.Post("/sections/{section}/identities/{name}/resync", galleryHandler.Resync)

		// Sync (long-running operations)
		r.Post("/sync", syncHandler.Start)
		r.Get("/sync/{jobId}", syncHandler.Get)
		r.Get("/sync/{jobId}/events", syncHandler.Events)
		r.Delete("/sync/{jobId}", syncHandler.Cancel)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	})
}
