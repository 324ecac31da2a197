// Package watch polls option chains for every watchlist entry through the
// rate-limited client.
package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/volscan/volscan/internal/core"
	"github.com/volscan/volscan/internal/core/engine"
	"github.com/volscan/volscan/internal/market"
	"github.com/volscan/volscan/internal/output"
	"github.com/volscan/volscan/internal/watchlist"
)

// Executor runs a workload through the rate-limited client.
type Executor interface {
	Execute(ctx context.Context, w core.Workload) (*core.Response, error)
}

// Options configures a Watcher.
type Options struct {
	WorkloadType core.WorkloadType
	// BaseURL overrides the executor's base URL when set.
	BaseURL      string
	PathTemplate string

	Workers int
	// Rate is the number of requests started per second. Zero disables pacing.
	Rate  float64
	Burst int

	Interval        time.Duration
	MarketHoursOnly bool

	Now     func() time.Time
	Logger  engine.Logger
	Tracker *Tracker
}

// Cycle is the outcome of one pass over the watchlist.
type Cycle struct {
	Started time.Time
	Skipped bool
	Rows    []output.ResultRow
}

// Watcher executes one workload per watchlist entry each cycle.
type Watcher struct {
	exec    Executor
	ring    *watchlist.Ring
	opts    Options
	limiter *rate.Limiter
}

// New validates opts and builds a watcher over entries.
func New(exec Executor, entries []watchlist.Entry, opts Options) (*Watcher, error) {
	if exec == nil {
		return nil, errors.New("executor is required")
	}
	if len(entries) == 0 {
		return nil, errors.New("watchlist is empty")
	}
	if opts.WorkloadType == "" {
		return nil, errors.New("workload type is required")
	}
	if opts.PathTemplate == "" {
		return nil, errors.New("path template is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	w := &Watcher{exec: exec, ring: watchlist.NewRing(entries), opts: opts}
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}
	return w, nil
}

// Workload builds the chain request for one entry.
func (w *Watcher) Workload(e watchlist.Entry) core.Workload {
	return core.Workload{
		Type:    w.opts.WorkloadType,
		Method:  core.MethodGet,
		BaseURL: w.opts.BaseURL,
		Path:    e.Expand(w.opts.PathTemplate),
		Label:   e.Label(),
	}
}

// RunOnce executes every entry once, in ring order, and returns one row per
// entry in that order. Failed requests are reported in their row.
func (w *Watcher) RunOnce(ctx context.Context) Cycle {
	cycle := Cycle{Started: w.opts.Now()}
	n := w.ring.Len()
	rows := make([]output.ResultRow, n)

	p := pool.New().WithMaxGoroutines(w.opts.Workers)
	for i := 0; i < n; i++ {
		entry, _ := w.ring.Next()
		workload := w.Workload(entry)
		rows[i] = output.ResultRow{Label: workload.Label, Type: string(workload.Type), Filters: entry.Filters()}

		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				rows[i].Error = err.Error()
				continue
			}
		}
		if err := ctx.Err(); err != nil {
			rows[i].Error = err.Error()
			continue
		}

		row := &rows[i]
		p.Go(func() { w.execute(ctx, workload, row) })
	}
	p.Wait()

	cycle.Rows = rows
	return cycle
}

func (w *Watcher) execute(ctx context.Context, workload core.Workload, row *output.ResultRow) {
	start := time.Now()
	resp, err := w.exec.Execute(ctx, workload)
	row.Duration = time.Since(start)
	if resp != nil {
		row.Status = resp.Status
		row.Bytes = len(resp.Body)
	}
	if err != nil {
		row.Error = err.Error()
		w.warn("Watch request failed", zap.String("label", workload.Label), zap.Error(err))
	}
	if ex, ok := w.opts.Tracker.take(workload.Label); ok {
		row.Waited = ex.Waited
		row.Reconnects = ex.Reconnects
		row.Duration = ex.Duration
	}
}

// Run repeats cycles every Interval until ctx is done. Outside trading hours
// cycles are skipped when MarketHoursOnly is set. Every cycle, skipped or
// not, is passed to sink.
func (w *Watcher) Run(ctx context.Context, sink func(Cycle)) error {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		if w.opts.MarketHoursOnly && !market.IsNYSEOpen(w.opts.Now()) {
			w.debug("Market closed, skipping cycle",
				zap.Time("next_open", market.NextOpen(w.opts.Now())))
			sink(Cycle{Started: w.opts.Now(), Skipped: true})
		} else {
			sink(w.RunOnce(ctx))
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Watcher) debug(msg string, fields ...zap.Field) {
	if w.opts.Logger != nil {
		w.opts.Logger.Debug(msg, fields...)
	}
}

func (w *Watcher) warn(msg string, fields ...zap.Field) {
	if w.opts.Logger != nil {
		w.opts.Logger.Warn(msg, fields...)
	}
}

// Tracker keeps the latest completed exchange per label so cycle rows can
// report bucket waits and reconnects. Register it as an executor observer.
type Tracker struct {
	engine.NopObserver

	mu      sync.Mutex
	byLabel map[string]core.Exchange
}

func NewTracker() *Tracker {
	return &Tracker{byLabel: make(map[string]core.Exchange)}
}

func (t *Tracker) Completed(ex core.Exchange, _ core.BucketSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byLabel[ex.Label] = ex
}

func (t *Tracker) take(label string) (core.Exchange, bool) {
	if t == nil {
		return core.Exchange{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ex, ok := t.byLabel[label]
	if ok {
		delete(t.byLabel, label)
	}
	return ex, ok
}
