// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

// Package gateway exposes the authentication engine over HTTP.
package gateway

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/oops"

	"github.com/sorae/sorae/internal/auth"
)

// Config holds the HTTP server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server routes authentication requests to the engine services.
type Server struct {
	cfg        Config
	login      *auth.Service
	enrollment *auth.EnrollmentService
	recovery   *auth.RecoveryService
	logger     *slog.Logger

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a gateway Server over the three engine services.
func NewServer(cfg Config, login *auth.Service, enrollment *auth.EnrollmentService, recovery *auth.RecoveryService, logger *slog.Logger) (*Server, error) {
	if login == nil || enrollment == nil || recovery == nil {
		return nil, oops.Code("GATEWAY_INVALID_DEPS").Errorf("all engine services are required")
	}
	if cfg.Addr == "" {
		return nil, oops.Code("GATEWAY_INVALID_DEPS").Errorf("listen address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:        cfg,
		login:      login,
		enrollment: enrollment,
		recovery:   recovery,
		logger:     logger,
	}, nil
}

// Router builds the HTTP routing table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/enroll", s.handleEnroll).Methods(http.MethodPost)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/recover", s.handleRecover).Methods(http.MethodPost)
	api.HandleFunc("/credentials", s.handleIssueCredential).Methods(http.MethodPost)
	api.HandleFunc("/recovery-codes", s.handleRotateCodes).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id}/codes", s.handleCodeStatus).Methods(http.MethodGet)

	return r
}

// Start begins serving. It returns an error channel that receives any serve
// failure; the channel is closed on graceful stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("GATEWAY_ALREADY_RUNNING").Errorf("gateway already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("GATEWAY_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Router(),
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("gateway server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("gateway started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts the gateway down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.Code("GATEWAY_SHUTDOWN_FAILED").Wrap(err)
		}
	}
	s.logger.Info("gateway stopped")
	return nil
}

// Addr returns the bound listen address, or "" when not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}
