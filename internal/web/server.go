// Package web exposes the import service over HTTP.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/xlimport/internal/config"
	"github.com/JonMunkholm/xlimport/internal/core"
	mw "github.com/JonMunkholm/xlimport/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP server for the import API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
	stop    chan struct{}
}

// NewServer creates a Server. It fails when the trusted proxy list is invalid.
func NewServer(service *core.Service, cfg *config.Config) (*Server, error) {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
		stop:    make(chan struct{}),
	}
	if err := s.setupMiddleware(); err != nil {
		return nil, err
	}
	s.setupRoutes()
	return s, nil
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() error {
	trusted, err := mw.ParseTrustedProxies(s.cfg.Security.TrustedProxies)
	if err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(trusted))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)

	// Security hardening
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute, s.stop)
		s.router.Use(limiter.middleware)
	}
	return nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		r.Get("/profiles", s.handleListProfiles)
		r.Get("/profiles/{profile}", s.handleGetProfile)
		r.Get("/status", s.handleStatus)

		importRoute := r
		if s.cfg.Rate.Enabled {
			// Imports hold a transaction for the whole file; limit them harder.
			importLimiter := newRateLimiter(s.cfg.Rate.ImportLimit, time.Minute, s.stop)
			importRoute = r.With(importLimiter.middleware)
		}
		importRoute.Post("/import/{profile}", s.handleImport)

		r.Get("/runs/{runID}", s.handleGetRun)
		r.Get("/runs/{runID}/log", s.handleRunLog)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("http server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and its background cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// The API serves JSON and text only
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "no-referrer")

		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}
