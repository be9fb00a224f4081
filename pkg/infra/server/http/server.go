// Package http provides a gin-based HTTP server with lifecycle management.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
)

// Server wraps a gin engine and an http.Server with graceful shutdown.
type Server struct {
	opts   *Options
	engine *gin.Engine
	server *http.Server
}

// New builds an HTTP server. The returned server has recovery, request-id and
// request-logging middleware installed; register routes on Engine() before
// calling Start.
func New(opts *Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(Recovery(), RequestID(), RequestLogger())

	return &Server{
		opts:   opts,
		engine: engine,
		server: &http.Server{
			Addr:         opts.Addr,
			Handler:      engine,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
	}
}

// Engine exposes the router for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start begins serving. It blocks until the listener fails or Stop is called;
// a clean shutdown returns nil.
func (s *Server) Start() error {
	logger.Infow("http server starting", "addr", s.opts.Addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	logger.Infow("http server stopping")

	ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}
