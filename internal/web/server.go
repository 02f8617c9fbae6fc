// Package web serves the recognition HTTP API.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/face-match/internal/config"
	"github.com/kozaktomas/face-match/internal/gallery"
	"github.com/kozaktomas/face-match/internal/recognize"
	"github.com/kozaktomas/face-match/internal/web/middleware"
)

// Server represents the web server.
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server

	recognizer    *recognize.Recognizer
	detector      recognize.FaceDetector
	gallery       *gallery.Gallery
	hasClassifier bool
}

// NewServer creates a new web server. gallery may be nil (identify and
// person endpoints answer 503), as may the classifier flag's backing model.
func NewServer(
	cfg *config.Config, host string, port int,
	rec *recognize.Recognizer, detector recognize.FaceDetector,
	g *gallery.Gallery, hasClassifier bool,
) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:        cfg,
		router:        r,
		recognizer:    rec,
		detector:      detector,
		gallery:       g,
		hasClassifier: hasClassifier,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(time.Minute))
	r.Use(middleware.CORS())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute, // Inference on large uploads takes a while
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and saves the HNSW index.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	if s.gallery != nil {
		if err := s.gallery.SaveIndex(); err != nil {
			return fmt.Errorf("saving search index: %w", err)
		}
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
