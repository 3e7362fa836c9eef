// Package server runs the HTTP surface with lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/voxrecon/internal/api"
	"github.com/raphaelgruber/voxrecon/internal/service"
)

// shutdownTimeout bounds graceful shutdown, including session finalization.
const shutdownTimeout = 30 * time.Second

// cleanupInterval is how often idle sessions are dropped.
const cleanupInterval = 5 * time.Minute

// Server wraps the HTTP server with its dependencies.
type Server struct {
	http    *http.Server
	svc     *service.Service
	logger  *slog.Logger
	version string
}

// New builds the router and HTTP server listening on port.
func New(port int, version string, svc *service.Service, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	api.Register(r, svc, version)

	return &Server{
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      r,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute, // report synthesis can be slow
		},
		svc:     svc,
		logger:  logger,
		version: version,
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then finalizes live sessions and shuts down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.http.Addr, "version", s.version)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case err, ok := <-errCh:
			if ok {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		case <-ticker.C:
			s.svc.CleanupStale()
		case <-ctx.Done():
			return s.shutdown()
		}
	}
}

func (s *Server) shutdown() error {
	s.logger.Info("shutdown signal received, finalizing sessions")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := s.svc.FinalizeAll(ctx); err != nil {
		s.logger.Warn("some sessions failed to finalize", "error", err)
	}
	s.logger.Info("server shutdown complete")
	return nil
}
