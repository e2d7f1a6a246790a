// Package api exposes the upload intent endpoint over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// RouterConfig holds the optional parts of the router
type RouterConfig struct {
	Environment    string
	RequestTimeout time.Duration
	Metrics        http.Handler // mounted at /metrics when set
}

// NewRouter builds the HTTP handler with middleware, health check,
// metrics and the upload routes.
func NewRouter(upload *UploadHandler, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{
			"status":      "healthy",
			"environment": cfg.Environment,
		})
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Mount("/", upload.Routes())
	return r
}
