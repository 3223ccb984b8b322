// Package server exposes the checking service over HTTP: checkout,
// status polling, free retry and report download.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/mietcheck/mietcheck/internal/orchestrator"
)

const (
	// maxUploadBytes bounds the whole multipart request body.
	maxUploadBytes = 15 << 20
	// maxUploadFiles bounds the number of files per upload.
	maxUploadFiles = 5
)

// Service is the HTTP front of the orchestrator.
type Service struct {
	version   string
	orch      *orchestrator.Orchestrator
	router    chi.Router
	startTime time.Time
}

// New creates the service and mounts its routes.
func New(version string, orch *orchestrator.Orchestrator) *Service {
	svc := &Service{
		version:   version,
		orch:      orch,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	svc.setupRoutes()
	return svc
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/checkout", s.handleCheckout)
		r.Get("/status/{sessionID}", s.handleStatus)
		r.Post("/retry/{sessionID}", s.handleRetry)
		r.Get("/report/{sessionID}", s.handleReport)
	})
}

// Handler returns the root handler for an http.Server.
func (s *Service) Handler() http.Handler {
	return s.router
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
