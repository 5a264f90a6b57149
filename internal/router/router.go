package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"clipforge-backend/internal/handlers"
	"clipforge-backend/internal/middleware"
)

func New(videoHandler *handlers.VideoHandler, healthHandler *handlers.HealthHandler, frontendURL string) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", healthHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/videos", func(r chi.Router) {
			r.Post("/info", videoHandler.Info)
			r.Post("/process", videoHandler.Process)
			r.Get("/", videoHandler.List)

			// Live progress stream (WebSocket)
			r.Get("/progress/{id}", videoHandler.Progress)

			r.Get("/{id}", videoHandler.Get)
			r.Post("/{id}/cut", videoHandler.Cut)

			r.Patch("/{pid}/clips/{cid}", videoHandler.UpdateClip)
			r.Delete("/{pid}/clips/{cid}", videoHandler.DeleteClip)
			r.Post("/{pid}/clips/{cid}/export", videoHandler.Export)
			r.Get("/{pid}/clips/{cid}/download", videoHandler.Download)
			r.Get("/{pid}/clips/{cid}/thumbnail", videoHandler.Thumbnail)
		})
	})

	return r
}
