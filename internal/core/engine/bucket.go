package engine

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/volscan/volscan/internal/core"
)

// Rate-limit response headers.
const (
	HeaderBucket      = "x-ratelimit-bucket"
	HeaderRemaining   = "x-ratelimit-remaining"
	HeaderResetAfter  = "x-ratelimit-reset-after"
	HeaderRetryAfter  = "x-ratelimit-retry-after"
	HeaderRetryAfterS = "retry-after"
)

// DefaultSpacing is the minimum gap between requests on a special bucket.
const DefaultSpacing = time.Second

// TypeSettings configures the bucket of one workload type.
type TypeSettings struct {
	Type    core.WorkloadType
	Special bool
	Spacing time.Duration
}

// Bucket tracks the server-reported budget of one workload type. The token
// channel grants exclusive access; the mutex guards the budget fields for
// readers that do not hold the token.
type Bucket struct {
	Type core.WorkloadType

	clock Clock
	token chan struct{}

	mu         sync.Mutex
	id         string
	remaining  int64
	resetAfter time.Duration
	sampledAt  time.Time
	special    bool
	spacing    time.Duration
	mustWait   bool
	held       bool
}

func newBucket(settings TypeSettings, clock Clock) *Bucket {
	spacing := settings.Spacing
	if settings.Special && spacing <= 0 {
		spacing = DefaultSpacing
	}
	b := &Bucket{
		Type:      settings.Type,
		clock:     clock,
		token:     make(chan struct{}, 1),
		remaining: 1,
		sampledAt: clock.Now(),
		special:   settings.Special,
		spacing:   spacing,
	}
	b.token <- struct{}{}
	return b
}

// UpdateFromHeaders folds the rate-limit headers of a response into the
// bucket. Absent headers leave their field untouched.
func (b *Bucket) UpdateFromHeaders(headers map[string]string) {
	if len(headers) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if id := strings.TrimSpace(headers[HeaderBucket]); id != "" {
		b.id = id
	}
	if raw := strings.TrimSpace(headers[HeaderRemaining]); raw != "" {
		if remaining, err := strconv.ParseInt(raw, 10, 64); err == nil {
			b.remaining = remaining
		}
	}
	if raw := strings.TrimSpace(headers[HeaderResetAfter]); raw != "" {
		if seconds, err := strconv.ParseFloat(raw, 64); err == nil && seconds >= 0 {
			b.resetAfter = time.Duration(math.Ceil(seconds)) * time.Second
		}
	}
	b.sampledAt = b.clock.Now()
	b.mustWait = b.remaining <= 1 || b.special
}

// Touch marks the bucket as sampled now.
func (b *Bucket) Touch() {
	b.mu.Lock()
	b.sampledAt = b.clock.Now()
	b.mu.Unlock()
}

// Backoff applies a 429 retry window.
func (b *Bucket) Backoff(retryAfter time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining = 0
	b.resetAfter = retryAfter
	b.sampledAt = b.clock.Now()
	b.mustWait = true
}

// Snapshot copies the bucket state.
func (b *Bucket) Snapshot() core.BucketSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return core.BucketSnapshot{
		Type:       b.Type,
		BucketID:   b.id,
		Remaining:  b.remaining,
		ResetAfter: b.resetAfter,
		SampledAt:  b.sampledAt,
		Special:    b.special,
		Spacing:    b.spacing,
		MustWait:   b.mustWait,
		Held:       b.held,
	}
}

func (b *Bucket) restore(s core.BucketSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.id = s.BucketID
	b.remaining = s.Remaining
	b.resetAfter = s.ResetAfter
	b.sampledAt = s.SampledAt
	b.mustWait = s.MustWait
	if s.Special && !b.special {
		b.special = true
		b.spacing = s.Spacing
		if b.spacing <= 0 {
			b.spacing = DefaultSpacing
		}
	}
}

// readyAt returns when a caller may proceed with the current budget.
func (b *Bucket) readyAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining > 0 {
		return time.Time{}
	}
	return b.sampledAt.Add(b.resetAfter)
}

// dispatchAt returns the earliest time the next request may be written and
// clears must-wait once it has been honoured.
func (b *Bucket) dispatchAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.special:
		return b.sampledAt.Add(b.spacing)
	case b.mustWait:
		b.mustWait = false
		return b.sampledAt.Add(b.resetAfter)
	default:
		return time.Time{}
	}
}

func (b *Bucket) markHeld(held bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	was := b.held
	b.held = held
	return was
}

func (b *Bucket) release() {
	if !b.markHeld(false) {
		return
	}
	select {
	case b.token <- struct{}{}:
	default:
	}
}
