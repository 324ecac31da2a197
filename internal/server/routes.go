package server

import (
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"go.uber.org/zap"

	"github.com/volscan/volscan/internal/config"
	"github.com/volscan/volscan/internal/observability"
	"github.com/volscan/volscan/internal/server/handlers"
)

const (
	adminRateLimit = 10 // requests per minute
	adminRateBurst = 5
)

func (s *Server) registerRoutes() {
	r := s.router

	r.Get("/health", handlers.Probe(handlers.ProbeAggregate))
	for _, probe := range []string{handlers.ProbeLive, handlers.ProbeReady, handlers.ProbeStartup} {
		r.Get("/health/"+probe, handlers.Probe(probe))
	}
	r.Get("/version", handlers.VersionHandler)
	r.Get("/metrics", s.handleMetrics)

	r.Get("/buckets", s.client.BucketsHandler)
	r.Get("/exchanges", s.client.ExchangesHandler)
	r.Post("/workloads/{name}", s.client.WorkloadHandler)

	s.registerAdminEndpoint()
}

// registerAdminEndpoint mounts POST /admin/signal when VOLSCAN_ADMIN_TOKEN is
// set. It lets operators trigger a reload or shutdown without a shell.
func (s *Server) registerAdminEndpoint() {
	token := os.Getenv(config.EnvPrefix + "ADMIN_TOKEN")
	logger := observability.Active(config.AppName)
	if token == "" {
		logger.Debug("Admin signal endpoint disabled", zap.String("env", config.EnvPrefix+"ADMIN_TOKEN"))
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: token,
		RateLimit: adminRateLimit,
		RateBurst: adminRateBurst,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	logger.Warn("Admin signal endpoint enabled; keep this server off public networks",
		zap.String("path", "/admin/signal"),
		zap.Int("rate_limit_per_min", adminRateLimit),
		zap.Int("burst", adminRateBurst))
}
