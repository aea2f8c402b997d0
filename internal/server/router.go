package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixcare/clinidex/internal/api"
	"github.com/helixcare/clinidex/internal/api/handlers"
	"github.com/helixcare/clinidex/internal/api/middleware"
)

type RouterConfig struct {
	DocumentHandler *handlers.DocumentHandler
	PipelineHandler *handlers.PipelineHandler
	ContextHandler  *handlers.ContextHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.OwnerScope)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/init", cfg.DocumentHandler.InitUpload)
			r.Post("/complete", cfg.DocumentHandler.CompleteUpload)
			r.Get("/", cfg.DocumentHandler.List)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Get("/{id}/status", cfg.DocumentHandler.GetStatus)
			r.Get("/{id}/download", cfg.DocumentHandler.GetDownloadURL)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
		})

		r.Post("/refresh", cfg.PipelineHandler.Refresh)
		r.Post("/context", cfg.ContextHandler.Query)
	})

	return r
}
