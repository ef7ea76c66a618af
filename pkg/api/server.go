package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/avolokita/fileholder/internal/logger"
	"github.com/avolokita/fileholder/pkg/config"
	"github.com/avolokita/fileholder/pkg/metrics"
	"github.com/avolokita/fileholder/pkg/uow"
)

// Server wraps the HTTP server with lifecycle management. It is created
// stopped; Start blocks until the context is cancelled or the listener
// fails, then shuts down gracefully.
type Server struct {
	server       *http.Server
	cfg          config.ServerConfig
	shutdownOnce sync.Once
}

// NewServer creates the API server from configuration.
func NewServer(cfg config.ServerConfig, factory *uow.Factory, m *metrics.Metrics) *Server {
	router := NewRouter(factory, m)

	return &Server{
		server: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		cfg: cfg,
	}
}

// Start serves requests until ctx is cancelled, then performs a graceful
// shutdown bounded by the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// The cancelled ctx would abort the shutdown immediately; use a
		// fresh timeout instead.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", "error", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}
