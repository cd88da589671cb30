// Package server provides the HTTP API the review front end uses to drive the navigation controller.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JingePHA/eval-ui/internal/config"
	"github.com/JingePHA/eval-ui/internal/models"
	"github.com/JingePHA/eval-ui/internal/navigation"
	"github.com/JingePHA/eval-ui/internal/storage"
)

// DocumentFiles resolves a document id to its file on disk.
type DocumentFiles interface {
	DocumentPath(id models.DocumentID) (string, error)
}

// Server is the HTTP server for the review API.
type Server struct {
	controller *navigation.Controller
	gateway    storage.Gateway
	files      DocumentFiles
	config     *config.Config
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server with the given dependencies. cfg may be nil; it is only used for
// the listen address and status reporting.
func NewServer(
	controller *navigation.Controller,
	gateway storage.Gateway,
	files DocumentFiles,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		controller: controller,
		gateway:    gateway,
		files:      files,
		config:     cfg,
		logger:     logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/documents", s.handleDocuments)
		r.Get("/documents/{id}/file", s.handleDocumentFile)
		r.Get("/current", s.handleCurrent)
		r.Post("/navigate", s.handleNavigate)
		r.Post("/next", s.handleNext)
		r.Post("/previous", s.handlePrevious)
		r.Post("/save", s.handleSave)
		r.Post("/ranges", s.handleAddRange)
		r.Delete("/ranges", s.handleRemoveRange)
		r.Put("/ranges/comment", s.handleRangeComment)
		r.Put("/indicators/{name}", s.handleIndicatorComment)
		r.Get("/snapshots/{key}", s.handleSnapshot)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	host, port := "localhost", 8080
	if s.config != nil {
		host, port = s.config.Server.Host, s.config.Server.Port
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
