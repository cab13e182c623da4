package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tabsession/internal/devbackend"
)

// DevServer runs the development backend over HTTP.
type DevServer struct {
	Backend *devbackend.Server

	server *http.Server
	logger *slog.Logger
}

// NewDevServer prepares a development backend listening on addr.
func NewDevServer(addr string, cfg devbackend.Config, logger *slog.Logger) (*DevServer, error) {
	cfg.Logger = logger
	backend, err := devbackend.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dev backend: %w", err)
	}

	return &DevServer{
		Backend: backend,
		server: &http.Server{
			Addr:              addr,
			Handler:           backend,
			ReadHeaderTimeout: 3 * time.Second,
		},
		logger: logger,
	}, nil
}

// Run serves until ctx is cancelled, then shuts down within grace.
// ready, when non-nil, receives the bound address once listening.
func (s *DevServer) Run(ctx context.Context, grace time.Duration, ready chan<- string) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	s.logger.Info("dev backend starting", "addr", ln.Addr().String(), "version", BuildVersion)
	if ready != nil {
		ready <- ln.Addr().String()
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- s.server.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("shutting down dev backend")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("graceful server shutdown failed", "error", err)
		if err := s.server.Close(); err != nil {
			s.logger.Error("error closing server", "error", err)
		}
		return err
	}

	s.logger.Info("dev backend stopped")
	return nil
}
