package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/volscan/volscan/internal/core"
)

// DefaultAcquireTimeout bounds the wait for bucket access.
const DefaultAcquireTimeout = 25 * time.Second

// BucketLoader reads persisted bucket state.
type BucketLoader interface {
	LoadBuckets(ctx context.Context) ([]core.BucketSnapshot, error)
}

// BucketSaver persists bucket state.
type BucketSaver interface {
	SaveBucket(ctx context.Context, snapshot core.BucketSnapshot) error
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	AcquireTimeout time.Duration
	Clock          Clock
}

// Registry owns one rate-limit bucket per workload type.
type Registry struct {
	timeout time.Duration
	clock   Clock

	mu       sync.Mutex
	buckets  map[core.WorkloadType]*Bucket
	settings map[core.WorkloadType]TypeSettings
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	timeout := opts.AcquireTimeout
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	return &Registry{
		timeout:  timeout,
		clock:    clockOrSystem(opts.Clock),
		buckets:  make(map[core.WorkloadType]*Bucket),
		settings: make(map[core.WorkloadType]TypeSettings),
	}
}

// Initialize creates the buckets of the known workload types.
func (r *Registry) Initialize(types ...TypeSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, settings := range types {
		if settings.Type == "" {
			continue
		}
		r.settings[settings.Type] = settings
		if _, ok := r.buckets[settings.Type]; !ok {
			r.buckets[settings.Type] = newBucket(settings, r.clock)
		}
	}
}

// Bucket returns the bucket of t if it exists.
func (r *Registry) Bucket(t core.WorkloadType) (*Bucket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[t]
	return b, ok
}

func (r *Registry) bucket(t core.WorkloadType) *Bucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[t]
	if !ok {
		settings, known := r.settings[t]
		if !known {
			settings = TypeSettings{Type: t}
		}
		b = newBucket(settings, r.clock)
		r.buckets[t] = b
	}
	return b
}

// Handle is exclusive access to one bucket.
type Handle struct {
	bucket *Bucket
	waited time.Duration
	once   sync.Once
}

// Bucket returns the held bucket.
func (h *Handle) Bucket() *Bucket { return h.bucket }

// Waited returns how long acquisition blocked.
func (h *Handle) Waited() time.Duration { return h.waited }

// Release returns access. Safe to call more than once.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(h.bucket.release)
}

// Acquire waits for exclusive access to the bucket of t and for its budget to
// allow a request. The token wait and the window wait share one deadline.
func (r *Registry) Acquire(ctx context.Context, t core.WorkloadType) (*Handle, error) {
	if t == "" {
		return nil, errors.New("workload type is required")
	}
	b := r.bucket(t)
	start := r.clock.Now()
	deadline := start.Add(r.timeout)

	if err := r.takeToken(ctx, b, deadline); err != nil {
		return nil, r.acquireError(t, start, err)
	}
	b.markHeld(true)

	for {
		ready := b.readyAt()
		now := r.clock.Now()
		if ready.IsZero() || !now.Before(ready) {
			break
		}
		if !now.Before(deadline) {
			b.release()
			return nil, &core.AccessTimeoutError{Type: t, Waited: now.Sub(start)}
		}
		wait := ready.Sub(now)
		if left := deadline.Sub(now); left < wait {
			wait = left
		}
		select {
		case <-ctx.Done():
			b.release()
			return nil, ctx.Err()
		case <-r.clock.After(wait):
		}
	}

	return &Handle{bucket: b, waited: r.clock.Now().Sub(start)}, nil
}

var errTokenTimeout = errors.New("token wait expired")

func (r *Registry) takeToken(ctx context.Context, b *Bucket, deadline time.Time) error {
	select {
	case <-b.token:
		return nil
	default:
	}
	left := deadline.Sub(r.clock.Now())
	if left <= 0 {
		return errTokenTimeout
	}
	select {
	case <-b.token:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.clock.After(left):
		return errTokenTimeout
	}
}

func (r *Registry) acquireError(t core.WorkloadType, start time.Time, err error) error {
	if errors.Is(err, errTokenTimeout) {
		return &core.AccessTimeoutError{Type: t, Waited: r.clock.Now().Sub(start)}
	}
	return err
}

// Release returns access to the bucket of t if it is held.
func (r *Registry) Release(t core.WorkloadType) {
	if b, ok := r.Bucket(t); ok {
		b.release()
	}
}

// UpdateFromHeaders folds response headers into b.
func (r *Registry) UpdateFromHeaders(b *Bucket, headers map[string]string) {
	if b == nil {
		return
	}
	b.UpdateFromHeaders(headers)
}

// Snapshot returns every bucket ordered by workload type.
func (r *Registry) Snapshot() []core.BucketSnapshot {
	r.mu.Lock()
	buckets := make([]*Bucket, 0, len(r.buckets))
	for _, b := range r.buckets {
		buckets = append(buckets, b)
	}
	r.mu.Unlock()

	out := make([]core.BucketSnapshot, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Hydrate applies persisted bucket state, creating buckets as needed.
func (r *Registry) Hydrate(ctx context.Context, loader BucketLoader) (int, error) {
	if loader == nil {
		return 0, nil
	}
	snapshots, err := loader.LoadBuckets(ctx)
	if err != nil {
		return 0, err
	}
	for _, s := range snapshots {
		if s.Type == "" {
			continue
		}
		r.bucket(s.Type).restore(s)
	}
	return len(snapshots), nil
}

// Persist saves the current state of the bucket of t.
func (r *Registry) Persist(ctx context.Context, saver BucketSaver, t core.WorkloadType) error {
	if saver == nil {
		return nil
	}
	b, ok := r.Bucket(t)
	if !ok {
		return nil
	}
	return saver.SaveBucket(ctx, b.Snapshot())
}
