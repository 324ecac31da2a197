package cmd

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/volscan/volscan/internal/config"
	"github.com/volscan/volscan/internal/core"
	"github.com/volscan/volscan/internal/core/conn"
	"github.com/volscan/volscan/internal/core/engine"
	"github.com/volscan/volscan/internal/core/store"
	"github.com/volscan/volscan/internal/metrics"
	"github.com/volscan/volscan/internal/observability"
)

// clientRuntime wires the executor to its collaborators for one process.
type clientRuntime struct {
	cfg      *config.Config
	store    *store.Store
	registry *engine.Registry
	pool     *conn.Pool
	exec     *engine.Executor
}

// runtimeOptions adjusts newClientRuntime. Tests inject a dialer.
type runtimeOptions struct {
	skipStore bool
	dialer    conn.Dialer
	observers []engine.Observer
}

// newClientRuntime builds the registry, pool and executor from cfg. The store
// is opened when bucket persistence or the journal is enabled.
func newClientRuntime(ctx context.Context, cfg *config.Config, opts runtimeOptions) (*clientRuntime, error) {
	logger := observability.Active(config.AppName)

	rt := &clientRuntime{cfg: cfg}
	if !opts.skipStore && (cfg.Client.PersistBuckets || cfg.Client.Journal) {
		db, err := openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		rt.store = db
	}

	rt.registry = engine.NewRegistry(engine.RegistryOptions{AcquireTimeout: cfg.Client.AcquireTimeout})
	rt.registry.Initialize(typeSettings(cfg)...)
	if rt.store != nil && cfg.Client.PersistBuckets {
		n, err := rt.registry.Hydrate(ctx, rt.store)
		if err != nil {
			logger.Warn("Failed to restore bucket state", zap.Error(err))
		} else if n > 0 {
			logger.Debug("Restored bucket state", zap.Int("buckets", n))
		}
	}

	dialer := opts.dialer
	if dialer == nil {
		dialer = conn.NewTLSDialer(conn.TLSOptions{
			DialTimeout:        cfg.Client.DialTimeout,
			InsecureSkipVerify: cfg.Client.InsecureSkipVerify,
		})
	}
	rt.pool = conn.NewPool(dialer, conn.Options{RequestTimeout: cfg.Client.RequestTimeout})

	observers := append(engine.MultiObserver{metrics.ClientObserver{}}, opts.observers...)
	execOpts := engine.ExecutorOptions{
		BaseURL:             cfg.Client.BaseURL,
		AuthScheme:          cfg.Client.AuthScheme,
		Token:               cfg.Client.Token,
		UserAgent:           cfg.Client.UserAgent,
		MaxReconnectTries:   cfg.Client.MaxReconnectTries,
		ReconnectDelay:      cfg.Client.ReconnectDelay,
		MaxRedirects:        cfg.Client.MaxRedirects,
		MaxRateLimitRetries: cfg.Client.MaxRateLimitRetries,
		Logger:              logger,
	}
	if rt.store != nil {
		if cfg.Client.Journal {
			observers = append(observers, engine.JournalObserver{Recorder: rt.store, Logger: logger})
		}
		if cfg.Client.PersistBuckets {
			execOpts.Saver = rt.store
		}
	}
	execOpts.Observer = observers

	rt.exec = engine.NewExecutor(rt.registry, rt.pool, execOpts)
	return rt, nil
}

// typeSettings returns the bucket settings of every configured profile,
// ordered by type. Profiles sharing a type merge; any special flag wins.
func typeSettings(cfg *config.Config) []engine.TypeSettings {
	merged := make(map[core.WorkloadType]engine.TypeSettings)
	for name, profile := range cfg.Workloads {
		t := profile.TypeName(name)
		s := merged[t]
		s.Type = t
		if profile.Special {
			s.Special = true
		}
		if profile.Spacing > s.Spacing {
			s.Spacing = profile.Spacing
		}
		merged[t] = s
	}

	out := make([]engine.TypeSettings, 0, len(merged))
	for _, s := range merged {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Resolve builds a named workload profile.
func (rt *clientRuntime) Resolve(name string) (core.Workload, error) {
	return rt.cfg.Workload(name)
}

// Execute runs w through the rate-limited executor.
func (rt *clientRuntime) Execute(ctx context.Context, w core.Workload) (*core.Response, error) {
	return rt.exec.Execute(ctx, w)
}

// Snapshot reports live bucket state.
func (rt *clientRuntime) Snapshot() []core.BucketSnapshot {
	return rt.registry.Snapshot()
}

// Close drops every connection and releases the store.
func (rt *clientRuntime) Close() error {
	if rt == nil {
		return nil
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
	return rt.store.Close()
}

// pruneJournal drops journal entries older than retention.
func (rt *clientRuntime) pruneJournal(ctx context.Context, retention time.Duration) {
	if rt.store == nil || retention <= 0 {
		return
	}
	n, err := rt.store.PruneExchanges(ctx, time.Now().Add(-retention))
	logger := observability.Active(config.AppName)
	if err != nil {
		logger.Warn("Failed to prune exchange journal", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Debug("Pruned exchange journal", zap.Int64("deleted", n))
	}
}
