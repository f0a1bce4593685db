package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	r.Get("/health", s.handleHealth)

	r.Post("/capture", s.handleCapture)
	r.Post("/upload", s.handleUpload)
	r.Post("/notes", s.handleNote)
	r.Get("/items", s.handleListItems)
	r.Get("/search", s.handleSearch)
	r.Get("/uploads/{ref}", s.handleGetUpload)
	r.Get("/captures/{id}", s.handleCaptureStatus)

	return r
}
