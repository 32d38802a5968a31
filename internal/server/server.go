// Package server owns the listening socket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
)

// Server serves an Echo instance on one TCP address.
type Server struct {
	addr   string
	e      *echo.Echo
	logger *slog.Logger

	mu sync.Mutex
	ln net.Listener
}

// New creates a Server for addr. Nothing is bound until Start.
func New(addr string, e *echo.Echo, logger *slog.Logger) *Server {
	return &Server{addr: addr, e: e, logger: logger.With("component", "server")}
}

// Start binds the listener and serves in the background. A port that is
// already in use is reported as an error and not retried.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("starting server", "addr", ln.Addr().String())
	go func() {
		if err := s.e.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "err", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close releases the listener and waits for in-flight HTTP requests.
// Upgraded WebSocket connections are not tracked by the HTTP server, so
// established relays keep running until they end on their own.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.e.Shutdown(ctx)
}
