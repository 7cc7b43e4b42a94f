package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/playmates/backend/internal/logging"
)

// Server wraps the http.Server with sensible defaults.
type Server struct {
	inner *http.Server
}

// New constructs a server listening on the provided port. Port 0 picks a free port.
func New(port int, handler http.Handler) *Server {
	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully terminates the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}

// Run serves on ln until ctx is cancelled or serving fails, then drains in-flight requests
// for at most ShutdownTimeout. A nil ln listens on the configured address.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	logger := logging.FromContext(ctx)

	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.inner.Addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", s.inner.Addr, err)
		}
	}
	logger.Info("starting http server", slog.String("addr", ln.Addr().String()))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- s.inner.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down http server", slog.Any("cause", context.Cause(ctx)))
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
