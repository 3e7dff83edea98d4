// Package server exposes per-user tour completion over HTTP.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/rahul/trailhead/internal/store"
	"github.com/rahul/trailhead/internal/tour"
)

// Statuses is the persistence the handlers need. *store.StatusStore
// satisfies it.
type Statuses interface {
	GetStatus(ctx context.Context, userID string) (map[string]bool, error)
	SetStatus(ctx context.Context, userID, tourName string, completed bool) error
	BulkSetStatus(ctx context.Context, userID string, tours map[string]bool) error
	Stats(ctx context.Context) (*store.Stats, error)
}

type Config struct {
	Addr         string
	Statuses     Statuses
	Catalog      *tour.Catalog
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxBodyBytes caps request bodies; 0 means 1 MiB.
	MaxBodyBytes int64
}

type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

func New(cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	h := &handlers{statuses: cfg.Statuses, catalog: cfg.Catalog, maxBody: cfg.MaxBodyBytes}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tour-status/{userId}", h.handleGetStatus)
	mux.HandleFunc("POST /api/tour-status/update", h.handleUpdateStatus)
	mux.HandleFunc("POST /api/tour-status/bulk-update", h.handleBulkUpdate)
	mux.HandleFunc("GET /api/tour-stats", h.handleStats)
	mux.HandleFunc("GET /api/tours", h.handleListTours)
	mux.HandleFunc("GET /health", h.handleHealth)

	var handler http.Handler = mux
	handler = recoveryMiddleware(handler)
	handler = loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		log.Printf("Tour status API listening on %s", s.httpServer.Addr)
		errc <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Printf("Tour status API shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
