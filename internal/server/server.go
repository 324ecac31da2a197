// Package server hosts the admin HTTP API in front of the rate-limited
// client: health probes, version, metrics, bucket state, the exchange
// journal and on-demand workload execution.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/volscan/volscan/internal/config"
	apperrors "github.com/volscan/volscan/internal/errors"
	"github.com/volscan/volscan/internal/observability"
	"github.com/volscan/volscan/internal/server/handlers"
	servermw "github.com/volscan/volscan/internal/server/middleware"
)

const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
)

// Server is the admin HTTP server.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	cfg     config.ServerConfig
	client  *handlers.ClientHandlers
	scraper *http.Client
	started time.Time
}

// New builds the router. client may be nil, in which case the client
// endpoints answer 503.
func New(cfg config.ServerConfig, client *handlers.ClientHandlers) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		client:  client,
		scraper: &http.Client{Timeout: 5 * time.Second},
		started: time.Now(),
	}

	// Recovery sits inside RequestMetrics and RequestID.
	s.router.Use(
		middleware.RealIP,
		servermw.RequestID,
		servermw.RequestMetrics,
		servermw.Recovery,
	)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apperrors.RespondWithError(w, r, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apperrors.RespondWithError(w, r, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s.registerRoutes()
	return s
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a
// graceful stop.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  orDefault(s.cfg.ReadTimeout, defaultReadTimeout),
		WriteTimeout: orDefault(s.cfg.WriteTimeout, defaultWriteTimeout),
		IdleTimeout:  orDefault(s.cfg.IdleTimeout, defaultIdleTimeout),
	}

	observability.Active(config.AppName).Info("Starting HTTP server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	observability.Active(config.AppName).Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Port() int {
	return s.cfg.Port
}
