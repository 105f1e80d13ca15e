package server

import (
	"net/http"

	"github.com/cloo-solutions/docchat/internal/api"
	"github.com/cloo-solutions/docchat/internal/api/handlers"
	"github.com/cloo-solutions/docchat/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

const (
	defaultMaxUploadBytes int64 = 50 * 1024 * 1024
	maxJSONBodyBytes      int64 = 1024 * 1024
)

type RouterConfig struct {
	DocumentHandler *handlers.DocumentHandler
	ChatHandler     *handlers.ChatHandler
	// MaxUploadBytes bounds multipart uploads. Zero uses 50 MiB.
	MaxUploadBytes int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1/documents", func(r chi.Router) {
		r.With(middleware.MaxBodyBytes(maxUpload)).Post("/", cfg.DocumentHandler.Upload)

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodyBytes(maxJSONBodyBytes))

			r.Get("/", cfg.DocumentHandler.List)
			r.Post("/link", cfg.DocumentHandler.RegisterLink)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Post("/{id}/ingest", cfg.DocumentHandler.Ingest)
			r.Post("/{id}/reingest", cfg.DocumentHandler.Reingest)
			r.Post("/{id}/retrieve", cfg.ChatHandler.Retrieve)
			r.Post("/{id}/chat", cfg.ChatHandler.Chat)
		})
	})

	return r
}
