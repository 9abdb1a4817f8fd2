package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/smartmarks/pkg/smartmarks/config"
	"github.com/mikepea/smartmarks/pkg/smartmarks/logger"
)

// Server wraps the HTTP server.
type Server struct {
	http   *http.Server
	logger logger.Logger
	cancel context.CancelFunc
}

// New builds the HTTP server around the router. There is no write timeout
// because change streams stay open; Stop cancels their contexts instead.
func New(cfg *config.Config, router *gin.Engine, log logger.Logger) *Server {
	base, cancel := context.WithCancel(context.Background())
	s := &http.Server{
		Addr:              cfg.Listen(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	return &Server{http: s, logger: log, cancel: cancel}
}

// Serve accepts connections on l until Stop is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Infof("HTTP server listening on %s", l.Addr())
	err := s.http.Serve(l)
	// http.ErrServerClosed is expected on graceful shutdown.
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Stop gracefully shuts down the server with the provided context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down...")
	s.cancel()
	return s.http.Shutdown(ctx)
}
