// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

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

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/licenseops/dunning/internal/api/handlers"
	"github.com/licenseops/dunning/internal/api/middleware"
	"github.com/licenseops/dunning/internal/database"
	"github.com/licenseops/dunning/internal/domain"
	"github.com/licenseops/dunning/internal/metrics"
	"github.com/licenseops/dunning/internal/services/dunning"
	"github.com/licenseops/dunning/internal/services/jobs"
	"github.com/licenseops/dunning/internal/services/ledger"
)

// Dependencies holds everything the router needs. DB and Metrics are
// optional.
type Dependencies struct {
	Config     *domain.Config
	DB         *database.DB
	Ledger     *ledger.Service
	Scanner    *ledger.Scanner
	Jobs       *jobs.Service
	Dispatcher *dunning.Dispatcher
	Metrics    *metrics.Manager
}

type Server struct {
	deps *Dependencies

	mu     sync.Mutex
	server *http.Server
}

func NewServer(deps *Dependencies) *Server {
	return &Server{deps: deps}
}

// Handler builds the chi router with every route mounted.
func (s *Server) Handler() (*chi.Mux, error) {
	cfg := s.deps.Config
	if cfg == nil {
		cfg = &domain.Config{}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger(log.Logger))

	guard := middleware.NewSharedSecretGuard(cfg.SharedSecret, cfg.SharedSecretHeader)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{
				http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions,
			},
			AllowedHeaders: []string{
				"Accept", "Authorization", "Content-Type", "X-Requested-With", guardHeader(cfg),
			},
			AllowCredentials: true,
			MaxAge:           300,
		}).Handler)
	}

	compress, err := httpcompression.DefaultAdapter(httpcompression.MinSize(1024))
	if err != nil {
		return nil, fmt.Errorf("failed to create compression adapter: %w", err)
	}
	r.Use(compress)

	var pinger handlers.Pinger
	if s.deps.DB != nil {
		pinger = s.deps.DB.Conn()
	}
	r.Route("/health", handlers.NewHealthHandler(pinger).Routes)

	if s.deps.Metrics != nil && cfg.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/license-jobs", handlers.NewInternalJobsHandler(s.deps.Jobs).Routes)

	var recorder handlers.ScanRecorder
	if s.deps.Metrics != nil {
		recorder = s.deps.Metrics.Dispatch
	}
	licenses := handlers.NewLicensesHandler(s.deps.Ledger, s.deps.Scanner, recorder)
	dispatch := handlers.NewDispatchHandler(s.deps.Dispatcher)

	r.Group(func(r chi.Router) {
		r.Use(guard.Middleware())

		r.Route("/license-notification-jobs", handlers.NewJobsHandler(s.deps.Jobs).Routes)
		r.Route("/license-notification-logs", handlers.NewLogsHandler(s.deps.Jobs).Routes)
		r.Route("/licenses", func(r chi.Router) {
			licenses.Routes(r, dispatch.Routes)
		})
	})

	return r, nil
}

func guardHeader(cfg *domain.Config) string {
	if cfg.SharedSecretHeader != "" {
		return cfg.SharedSecretHeader
	}
	return middleware.DefaultSharedSecretHeader
}

// ListenAndServe blocks until the server stops. http.ErrServerClosed after
// Shutdown is not an error.
func (s *Server) ListenAndServe() error {
	router, err := s.Handler()
	if err != nil {
		return err
	}

	cfg := s.deps.Config
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	log.Info().Str("addr", addr).Msg("Starting API server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
