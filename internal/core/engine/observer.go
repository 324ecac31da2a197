package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/volscan/volscan/internal/core"
	"github.com/volscan/volscan/internal/core/conn"
)

// Observer receives executor events.
type Observer interface {
	Waited(t core.WorkloadType, d time.Duration)
	Reconnected(t core.WorkloadType, status conn.Status, attempt int, err error)
	RateLimited(t core.WorkloadType, retryAfter time.Duration, attempt int)
	Completed(ex core.Exchange, bucket core.BucketSnapshot)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) Waited(core.WorkloadType, time.Duration) {}
func (NopObserver) Reconnected(core.WorkloadType, conn.Status, int, error) {}
func (NopObserver) RateLimited(core.WorkloadType, time.Duration, int) {}
func (NopObserver) Completed(core.Exchange, core.BucketSnapshot) {}

// MultiObserver fans events out in order.
type MultiObserver []Observer

func (m MultiObserver) Waited(t core.WorkloadType, d time.Duration) {
	for _, o := range m {
		o.Waited(t, d)
	}
}

func (m MultiObserver) Reconnected(t core.WorkloadType, status conn.Status, attempt int, err error) {
	for _, o := range m {
		o.Reconnected(t, status, attempt, err)
	}
}

func (m MultiObserver) RateLimited(t core.WorkloadType, retryAfter time.Duration, attempt int) {
	for _, o := range m {
		o.RateLimited(t, retryAfter, attempt)
	}
}

func (m MultiObserver) Completed(ex core.Exchange, bucket core.BucketSnapshot) {
	for _, o := range m {
		o.Completed(ex, bucket)
	}
}

// ExchangeRecorder stores finished exchanges.
type ExchangeRecorder interface {
	RecordExchange(ctx context.Context, ex core.Exchange) error
}

// JournalObserver writes every completed exchange to a recorder.
type JournalObserver struct {
	NopObserver
	Recorder ExchangeRecorder
	Logger   Logger
	Timeout  time.Duration
}

func (j JournalObserver) Completed(ex core.Exchange, _ core.BucketSnapshot) {
	if j.Recorder == nil {
		return
	}
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := j.Recorder.RecordExchange(ctx, ex); err != nil && j.Logger != nil {
		j.Logger.Warn("Failed to record exchange", zap.String("exchange_id", ex.ID), zap.Error(err))
	}
}
