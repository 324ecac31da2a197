package cmd

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/volscan/volscan/internal/config"
	"github.com/volscan/volscan/internal/core/engine"
	errwrap "github.com/volscan/volscan/internal/errors"
	"github.com/volscan/volscan/internal/metrics"
	"github.com/volscan/volscan/internal/observability"
	"github.com/volscan/volscan/internal/server"
	"github.com/volscan/volscan/internal/server/handlers"
	"github.com/volscan/volscan/internal/watch"
)

var (
	serverPort  int
	serverHost  string
	serverWatch bool
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// clientHealthChecker fails when the API base URL is not configured.
type clientHealthChecker struct {
	baseURL string
}

func (c clientHealthChecker) CheckHealth(ctx context.Context) error {
	if c.baseURL == "" {
		return errwrap.NewServiceUnavailableError("client.base_url is not configured")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin HTTP server",
	Long: `Start the admin HTTP server with graceful shutdown support.

Endpoints: /health, /version, /metrics, /buckets, /exchanges and
POST /workloads/{name}. With --watch the watchlist poller runs in the
background.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload config (log level)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		cfg, err := loadConfig(ctx)
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "config load failed")
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host = serverHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = serverPort
		}

		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()
		observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, namespace)
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
			}
		}

		var tracker *watch.Tracker
		var observers []engine.Observer
		if serverWatch {
			tracker = watch.NewTracker()
			observers = append(observers, tracker)
		}
		rt, err := newClientRuntime(ctx, cfg, runtimeOptions{observers: observers})
		if err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "client initialization failed")
		}
		rt.pruneJournal(ctx, cfg.Client.JournalRetention)

		logger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", cfg.Metrics.Port),
			zap.String("base_url", cfg.Client.BaseURL))

		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("client", clientHealthChecker{baseURL: cfg.Client.BaseURL})
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}
		client := &handlers.ClientHandlers{Buckets: rt, Runner: rt}
		if rt.store != nil {
			hm.RegisterChecker("store", handlers.CheckFunc(rt.store.Ping))
			client.Exchanges = rt.store
		}

		handlers.SetAppIdentity(identity)
		handlers.SetClientInfo(cfg.Client.BaseURL, cfg.Client.UserAgent, workloadTypeNames(cfg))

		var watcher *watch.Watcher
		if serverWatch {
			if watcher, err = newWatcher(cfg, rt, tracker); err != nil {
				_ = rt.Close()
				return errwrap.WrapInvalidInput(ctx, err, "watch setup failed")
			}
		}

		srv := server.New(cfg.Server, client)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: stop polling, stop HTTP, close the
		// client, flush the logger.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			if err := rt.Close(); err != nil {
				return errwrap.WrapDatabaseError(ctx, err, "store close failed")
			}
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancelShutdown := context.WithTimeout(ctx, shutdownTimeout)
			defer cancelShutdown()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}
			logger.Info("HTTP server stopped gracefully")
			return nil
		})
		signals.OnShutdown(func(context.Context) error {
			cancel()
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: reloading config")
			reloaded, err := config.Load(ctx)
			if err != nil {
				logger.Error("Failed to reload config", zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			observability.ApplyServerLevel(reloaded.Logging.Level)
			logger.Info("Configuration reloaded", zap.String("log_level", reloaded.Logging.Level))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 2)
		go func() {
			if err := srv.Start(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		go func() {
			err := signals.Listen(ctx)
			if stderrors.Is(err, context.Canceled) {
				err = nil
			}
			if err != nil {
				logger.Error("Signal handler error", zap.Error(err))
			}
			errChan <- err
		}()

		if watcher != nil {
			go runBackgroundWatch(ctx, watcher)
		}

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(ctx, err, "server error")
		}
		return nil
	},
}

// runBackgroundWatch logs cycle summaries instead of rendering tables.
func runBackgroundWatch(ctx context.Context, w *watch.Watcher) {
	logger := observability.ServerLogger
	err := w.Run(ctx, func(c watch.Cycle) {
		metrics.RecordWatchCycle(c.Skipped)
		if c.Skipped {
			logger.Debug("Watch cycle skipped (market closed)")
			return
		}
		failed := 0
		for _, row := range c.Rows {
			if row.Error != "" {
				failed++
			}
		}
		logger.Info("Watch cycle complete",
			zap.Int("requests", len(c.Rows)),
			zap.Int("failed", failed),
			zap.Duration("took", time.Since(c.Started)))
	})
	if err != nil && !stderrors.Is(err, context.Canceled) {
		logger.Warn("Watch loop stopped", zap.Error(err))
	}
}

func workloadTypeNames(cfg *config.Config) []string {
	settings := typeSettings(cfg)
	names := make([]string, 0, len(settings))
	for _, s := range settings {
		names = append(names, string(s.Type))
	}
	return names
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host (overrides server.host)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port (overrides server.port)")
	serveCmd.Flags().BoolVar(&serverWatch, "watch", false, "run the watchlist poller in the background")
}
