package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/openmined/bulkpin/internal/client/handlers"
	"github.com/openmined/bulkpin/internal/utils"
)

// StatusServer serves the progress of the bulk pin run on loopback.
type StatusServer struct {
	config *StatusServerConfig
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
}

func NewStatusServer(config *StatusServerConfig, tracker *handlers.ProgressTracker, ctrl handlers.RunController) (*StatusServer, error) {
	routes, err := SetupRoutes(tracker, ctrl, config)
	if err != nil {
		return nil, fmt.Errorf("status routes: %w", err)
	}

	httpServer := &http.Server{
		Addr:    config.Addr,
		Handler: routes,
		// Timeouts to prevent slow client attacks
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	return &StatusServer{
		config: config,
		server: httpServer,
	}, nil
}

// Start blocks until the server is stopped.
func (s *StatusServer) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to start status server: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	slog.Info("status server start", "addr", utils.HostPortToURL(ln.Addr().String()))
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// Addr is the bound address, or empty before Start.
func (s *StatusServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *StatusServer) Stop(ctx context.Context) error {
	slog.Info("status server stop")
	return s.server.Shutdown(ctx)
}
