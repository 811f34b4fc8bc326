package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"webinyframework/src/rest"
)

// Server exposes the REST dispatcher under its router prefix next to the operational routes.
type Server struct {
	logger     *slog.Logger
	server     *http.Server
	mux        *http.ServeMux
	port       int
	router     *rest.Router
	dispatcher http.Handler
	checks     []HealthCheck
}

func NewServer(
	logger *slog.Logger,
	port int,
	router *rest.Router,
	dispatcher http.Handler,
	checks ...HealthCheck,
) *Server {
	server := &Server{
		mux:        http.NewServeMux(),
		port:       port,
		logger:     logger,
		router:     router,
		dispatcher: dispatcher,
		checks:     checks,
	}

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      server.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	server.mux.HandleFunc("GET /v1/health", server.Health)
	server.mux.HandleFunc("GET /v1/services", server.ListServices)
	server.mux.Handle(router.Prefix()+"/", dispatcher)

	return server
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start() error {
	s.logger.Info("Server started", "port", s.port, "prefix", s.router.Prefix())

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
