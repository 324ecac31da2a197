package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/volscan/volscan/internal/core"
	"github.com/volscan/volscan/internal/core/conn"
)

// Executor defaults.
const (
	DefaultMaxReconnectTries   = 3
	DefaultReconnectDelay      = 150 * time.Millisecond
	DefaultMaxRedirects        = 5
	DefaultMaxRateLimitRetries = 5
	DefaultAuthScheme          = "Bearer"

	// spinThreshold is the remainder below which the pre-dispatch wait sleeps
	// the full interval instead of a fraction of it.
	spinThreshold = 20 * time.Millisecond
)

// Logger is the subset of the gofulmen logger the executor uses.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// BaseURL is the API base URL. Workloads without one use it, and workloads
	// targeting it receive the default headers.
	BaseURL    string
	AuthScheme string
	Token      string
	UserAgent  string

	MaxReconnectTries   int
	ReconnectDelay      time.Duration
	MaxRedirects        int
	MaxRateLimitRetries int

	Clock    Clock
	Logger   Logger
	Observer Observer
	Saver    BucketSaver
}

func (o ExecutorOptions) withDefaults() ExecutorOptions {
	if o.MaxReconnectTries <= 0 {
		o.MaxReconnectTries = DefaultMaxReconnectTries
	}
	if o.ReconnectDelay < 0 {
		o.ReconnectDelay = 0
	} else if o.ReconnectDelay == 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = DefaultMaxRedirects
	}
	if o.MaxRateLimitRetries <= 0 {
		o.MaxRateLimitRetries = DefaultMaxRateLimitRetries
	}
	if o.AuthScheme == "" {
		o.AuthScheme = DefaultAuthScheme
	}
	o.BaseURL = strings.TrimRight(strings.TrimSpace(o.BaseURL), "/")
	o.Clock = clockOrSystem(o.Clock)
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
	return o
}

// Executor runs workloads through the registry and the connection pool.
type Executor struct {
	registry *Registry
	pool     *conn.Pool
	opts     ExecutorOptions
}

// NewExecutor wires an executor.
func NewExecutor(registry *Registry, pool *conn.Pool, opts ExecutorOptions) *Executor {
	return &Executor{registry: registry, pool: pool, opts: opts.withDefaults()}
}

// Registry returns the bucket registry.
func (e *Executor) Registry() *Registry { return e.registry }

// Execute sends w and returns the finished response. A response with a status
// other than 200, 201 or 204 is returned together with a *core.HTTPError.
func (e *Executor) Execute(ctx context.Context, w core.Workload) (*core.Response, error) {
	w = e.prepare(w)
	ex := core.Exchange{
		ID:        uuid.NewString(),
		Type:      w.Type,
		Method:    w.Method,
		URL:       w.URL(),
		Label:     w.Label,
		StartedAt: e.opts.Clock.Now(),
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	handle, err := e.registry.Acquire(ctx, w.Type)
	if err != nil {
		e.finish(ctx, &ex, nil, err, core.BucketSnapshot{Type: w.Type})
		return nil, err
	}
	defer handle.Release()
	ex.Waited = handle.Waited()
	if ex.Waited > 0 {
		e.opts.Observer.Waited(w.Type, ex.Waited)
	}

	bucket := handle.Bucket()
	c := e.pool.Get(w.Type)
	c.Rebind(w, bucket)

	resp, err := e.run(ctx, c, bucket, &ex)
	ex.URL = c.Workload().URL()
	e.finish(ctx, &ex, resp, err, bucket.Snapshot())
	return resp, err
}

func (e *Executor) run(ctx context.Context, c *conn.Connection, bucket *Bucket, ex *core.Exchange) (*core.Response, error) {
	for {
		waited, err := e.waitForDispatch(ctx, bucket)
		if err != nil {
			return nil, err
		}
		if waited > 0 {
			ex.Waited += waited
			e.opts.Observer.Waited(c.Type, waited)
		}

		resp, err := e.dispatch(ctx, c, ex)
		if resp == nil {
			return nil, err
		}
		bucket.Touch()
		if resp.Status != 429 {
			return resp, err
		}

		delay, raw := retryAfter(resp.Headers, e.opts.Clock.Now())
		if ex.RateLimitRetries >= e.opts.MaxRateLimitRetries {
			return resp, &core.RateLimitedError{Type: c.Type, Attempts: ex.RateLimitRetries + 1, RetryAfter: delay}
		}
		ex.RateLimitRetries++
		bucket.Backoff(delay)
		e.opts.Observer.RateLimited(c.Type, delay, ex.RateLimitRetries)
		e.debug("Rate limited, backing off",
			zap.String("workload_type", string(c.Type)),
			zap.Duration("retry_after", delay),
			zap.String("retry_after_header", raw),
			zap.Int("attempt", ex.RateLimitRetries))
		c.Reset()
	}
}

// dispatch writes the bound workload and collects the response, reconnecting
// on transport failure and following redirects.
func (e *Executor) dispatch(ctx context.Context, c *conn.Connection, ex *core.Exchange) (*core.Response, error) {
	redirects := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		outcome, err := e.roundTrip(ctx, c)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				c.Disconnect()
				return nil, ctxErr
			}
			status := conn.StatusOf(err)
			tries := c.NoteFailure()
			ex.Reconnects = tries
			e.opts.Observer.Reconnected(c.Type, status, tries, err)
			e.warn("Transport failure",
				zap.String("workload_type", string(c.Type)),
				zap.String("status", status.String()),
				zap.Int("attempt", tries),
				zap.Error(err))
			if tries >= e.opts.MaxReconnectTries {
				return nil, &core.TransportError{Op: status.String(), Attempts: tries, Err: err}
			}
			if err := e.sleep(ctx, e.opts.ReconnectDelay); err != nil {
				return nil, err
			}
			continue
		}

		if outcome == conn.OutcomeRedirect {
			redirects++
			ex.Redirects = redirects
			if redirects > e.opts.MaxRedirects {
				return nil, &core.ProtocolError{Reason: "too many redirects", Line: c.BaseURL()}
			}
			e.debug("Following redirect",
				zap.String("workload_type", string(c.Type)),
				zap.String("location", c.BaseURL()))
			continue
		}

		return c.Finalize()
	}
}

func (e *Executor) roundTrip(ctx context.Context, c *conn.Connection) (conn.Outcome, error) {
	if err := c.Connect(ctx); err != nil {
		return conn.OutcomePending, err
	}
	if err := c.Send(); err != nil {
		return conn.OutcomePending, err
	}
	return c.Collect(ctx)
}

// waitForDispatch honours special-bucket spacing and must-wait windows. It
// sleeps a fraction of the remainder and re-checks so overshoot stays small.
func (e *Executor) waitForDispatch(ctx context.Context, bucket *Bucket) (time.Duration, error) {
	until := bucket.dispatchAt()
	if until.IsZero() {
		return 0, nil
	}
	start := e.opts.Clock.Now()
	for {
		remaining := until.Sub(e.opts.Clock.Now())
		if remaining <= 0 {
			return e.opts.Clock.Now().Sub(start), nil
		}
		step := remaining
		if remaining > spinThreshold {
			step = remaining * 8 / 10
		}
		if err := e.sleep(ctx, step); err != nil {
			return e.opts.Clock.Now().Sub(start), err
		}
	}
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.opts.Clock.After(d):
		return nil
	}
}

func (e *Executor) prepare(w core.Workload) core.Workload {
	w = w.Clone()
	if method, err := core.ParseMethod(string(w.Method)); err == nil {
		w.Method = method
	}
	if strings.TrimSpace(w.BaseURL) == "" {
		w.BaseURL = e.opts.BaseURL
	}
	if e.opts.BaseURL != "" && strings.TrimRight(w.BaseURL, "/") == e.opts.BaseURL {
		if e.opts.Token != "" {
			w.DefaultHeader("Authorization", e.opts.AuthScheme+" "+e.opts.Token)
		}
		if e.opts.UserAgent != "" {
			w.DefaultHeader("User-Agent", e.opts.UserAgent)
		}
	}
	if contentType := w.Payload.ContentType(); contentType != "" {
		w.DefaultHeader("Content-Type", contentType)
	}
	return w
}

func (e *Executor) finish(ctx context.Context, ex *core.Exchange, resp *core.Response, err error, snapshot core.BucketSnapshot) {
	ex.Duration = e.opts.Clock.Now().Sub(ex.StartedAt)
	if resp != nil {
		ex.Status = resp.Status
	}
	if err != nil {
		ex.Error = err.Error()
	}
	e.opts.Observer.Completed(*ex, snapshot)

	if e.opts.Saver == nil || errors.Is(err, core.ErrEndpointAccessTimeout) {
		return
	}
	if saveErr := e.registry.Persist(context.WithoutCancel(ctx), e.opts.Saver, ex.Type); saveErr != nil {
		e.warn("Failed to persist bucket state",
			zap.String("workload_type", string(ex.Type)),
			zap.Error(saveErr))
	}
}

func (e *Executor) debug(msg string, fields ...zap.Field) {
	if e.opts.Logger != nil {
		e.opts.Logger.Debug(msg, fields...)
	}
}

func (e *Executor) warn(msg string, fields ...zap.Field) {
	if e.opts.Logger != nil {
		e.opts.Logger.Warn(msg, fields...)
	}
}
