package metrics

import (
	"strconv"
	"time"

	"github.com/volscan/volscan/internal/core"
	"github.com/volscan/volscan/internal/core/conn"
	"github.com/volscan/volscan/internal/core/engine"
	"github.com/volscan/volscan/internal/observability"
)

// Client metric names
const (
	ClientRequestsTotal     = "client_requests_total"
	ClientRequestDuration   = "client_request_duration_ms"
	ClientRateLimitedTotal  = "client_rate_limited_total"
	ClientReconnectsTotal   = "client_reconnects_total"
	ClientRateLimitWait     = "client_rate_limit_wait_ms"
	ClientBucketRemaining   = "client_bucket_remaining"
	ClientRetryAfterSeconds = "client_retry_after_seconds"
)

// ClientObserver emits executor events as telemetry.
type ClientObserver struct{}

var _ engine.Observer = ClientObserver{}

func (ClientObserver) Waited(t core.WorkloadType, d time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Histogram(ClientRateLimitWait, d, map[string]string{
		"workload_type": string(t),
	})
}

func (ClientObserver) Reconnected(t core.WorkloadType, status conn.Status, _ int, _ error) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(ClientReconnectsTotal, 1, map[string]string{
		"workload_type": string(t),
		"reason":        status.String(),
	})
}

func (ClientObserver) RateLimited(t core.WorkloadType, retryAfter time.Duration, _ int) {
	if observability.TelemetrySystem == nil {
		return
	}
	tags := map[string]string{"workload_type": string(t)}
	_ = observability.TelemetrySystem.Counter(ClientRateLimitedTotal, 1, tags)
	_ = observability.TelemetrySystem.Gauge(ClientRetryAfterSeconds, retryAfter.Seconds(), tags)
}

func (ClientObserver) Completed(ex core.Exchange, bucket core.BucketSnapshot) {
	if observability.TelemetrySystem == nil {
		return
	}
	outcome := "success"
	if !ex.OK() {
		outcome = "failure"
	}
	_ = observability.TelemetrySystem.Counter(ClientRequestsTotal, 1, map[string]string{
		"workload_type": string(ex.Type),
		"method":        string(ex.Method),
		"status":        strconv.Itoa(ex.Status),
		"outcome":       outcome,
	})
	_ = observability.TelemetrySystem.Histogram(ClientRequestDuration, ex.Duration, map[string]string{
		"workload_type": string(ex.Type),
	})
	_ = observability.TelemetrySystem.Gauge(ClientBucketRemaining, float64(bucket.Remaining), map[string]string{
		"workload_type": string(bucket.Type),
	})
}

// PublishBuckets sets the remaining-call gauge of every bucket. The admin
// server calls it before each scrape so idle buckets stay current.
func PublishBuckets(snapshots []core.BucketSnapshot) {
	if observability.TelemetrySystem == nil {
		return
	}
	for _, b := range snapshots {
		_ = observability.TelemetrySystem.Gauge(ClientBucketRemaining, float64(b.Remaining), map[string]string{
			"workload_type": string(b.Type),
		})
	}
}
