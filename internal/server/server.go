// Package server exposes the capture and search operations over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/runnerr0/synapse/internal/app"
	"github.com/runnerr0/synapse/internal/capture"
	"github.com/runnerr0/synapse/internal/config"
	"github.com/runnerr0/synapse/internal/logging"
	"github.com/runnerr0/synapse/internal/metrics"
	"github.com/runnerr0/synapse/internal/search"
	"github.com/runnerr0/synapse/internal/storage"
)

// Service is the application surface the HTTP handlers call.
type Service interface {
	CaptureURL(ctx context.Context, rawURL string) (*app.Ack, error)
	CaptureUpload(ctx context.Context, filename string, data []byte) (*app.Ack, error)
	CaptureNote(ctx context.Context, title, content string) (*storage.Item, error)
	ListItems(ctx context.Context) ([]storage.Item, error)
	SearchItems(ctx context.Context, query string) (*search.Result, error)
	FetchUpload(ctx context.Context, ref string) (*app.Upload, error)
	CaptureStatus(id string) (*capture.Snapshot, bool)
	Health(ctx context.Context) error
	Metrics() *metrics.Metrics
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	config     config.ServerConfig
	svc        Service
	metrics    *metrics.Metrics
	logger     *zap.Logger
	router     http.Handler
	httpServer *http.Server
}

// New builds a Server and its routes.
func New(cfg config.ServerConfig, svc Service, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger)
	s := &Server{
		config:  cfg,
		svc:     svc,
		metrics: svc.Metrics(),
		logger:  logger,
	}
	s.router = s.setupRouter()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("http server listening", zap.String("addr", l.Addr().String()))
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and serves.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(l)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
