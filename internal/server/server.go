// Package server wires the HTTP router and runs it until shutdown.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/BorisDmv/post-store/internal/config"
	"github.com/BorisDmv/post-store/internal/db"
	"github.com/BorisDmv/post-store/internal/handlers"
	appmiddleware "github.com/BorisDmv/post-store/internal/middleware"
)

type Server struct {
	http    *http.Server
	limiter *appmiddleware.RateLimiter
	logger  *slog.Logger
}

// New builds the router for store. Close releases the rate limiter.
func New(cfg config.Config, store db.PostStore, logger *slog.Logger) *Server {
	s := &Server{logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appmiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.CorsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler)

	r.Get("/health", handlers.Health)
	r.Get("/health/ready", handlers.Ready(store))

	var readLimit func(http.Handler) http.Handler
	if cfg.RateLimitPerMinute > 0 {
		s.limiter = appmiddleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
		readLimit = s.limiter.Limit
	}
	handlers.NewPostsHandler(store, logger).Routes(r, readLimit)

	s.http = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
}
