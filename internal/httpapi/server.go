package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/buildbeaver/docflow/internal/logger"
)

// Config configures the HTTP server's listen address.
type Config struct {
	Address string
}

// Server wraps a single *http.Server: a local dev/ops shell rather than a
// multi-tenant public API, so plain HTTP over one address is enough; no
// TLS or dual-listener support.
type Server struct {
	httpServer *http.Server
	log        logger.Log
}

// NewServer builds a Server that serves handler on config.Address.
func NewServer(handler http.Handler, config Config, logFactory logger.LogFactory) *Server {
	return &Server{
		httpServer: &http.Server{Addr: config.Address, Handler: handler},
		log:        logFactory("httpapi"),
	}
}

// Start begins serving in a background goroutine. A failure to bind is
// logged at error level; Start itself does not report it.
func (s *Server) Start() {
	go func() {
		s.log.Infof("HTTP listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("error serving HTTP: %s", err)
		}
	}()
}

// Stop gracefully shuts the server down, letting in-flight requests finish
// up to ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down HTTP server: %w", err)
	}
	return nil
}
