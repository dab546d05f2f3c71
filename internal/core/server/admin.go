package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// AdminServer serves /metrics and /healthz over plain HTTP.
type AdminServer struct {
	http   *http.Server
	logger *zap.Logger
}

// NewAdminRouter builds the admin routes. metrics may be nil.
func NewAdminRouter(metrics http.Handler, db Pinger) http.Handler {
	router := chi.NewRouter()
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Use(chimw.Timeout(10 * time.Second))

	if metrics != nil {
		router.Handle("/metrics", metrics)
	}
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return router
}

// NewAdminServer creates the admin HTTP server bound to addr.
func NewAdminServer(addr string, handler http.Handler, logger *zap.Logger) *AdminServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminServer{
		http: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until Shutdown. A clean shutdown returns nil.
func (s *AdminServer) Start() error {
	s.logger.Info("admin server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *AdminServer) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
