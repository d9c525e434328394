// Package web exposes the statement converter over HTTP: upload a PDF
// statement, convert it, download the resulting workbook or CSV.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/conversor-edc/backend/internal/domain/categorization"
	"github.com/conversor-edc/backend/internal/domain/convert/pipeline"
	"github.com/conversor-edc/backend/pkg/config"
)

// Server is the HTTP front of the converter.
type Server struct {
	cfg        *config.Config
	pipeline   *pipeline.Pipeline
	categories *categorization.Engine
	logger     *slog.Logger
	router     *chi.Mux
	server     *http.Server
}

// NewServer wires the converter pipeline behind the HTTP routes.
func NewServer(cfg *config.Config, p *pipeline.Pipeline, categories *categorization.Engine, logger *slog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		pipeline:   p,
		categories: categories,
		logger:     logger,
		router:     chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(120 * time.Second))

	s.router.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler)

	limiter := newIPRateLimiter(s.cfg.Server.RateLimitPerSecond, s.cfg.Server.RateLimitBurst)
	s.router.Use(limiter.middleware)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/converter", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/convert", s.handleConvert)
		r.Get("/{uploadID}/csv", s.handleExportCSV)
	})
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", slog.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
