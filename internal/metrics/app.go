package metrics

import (
	"time"

	"github.com/volscan/volscan/internal/observability"
)

// Process metrics.
const (
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"

	WatchCyclesTotal  = "app_watch_cycles_total"
	WatchSkippedTotal = "app_watch_skipped_total"
)

// RecordHealthCheck counts one probe evaluation and times it.
func RecordHealthCheck(probe string, healthy bool, took time.Duration) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = sys.Counter(HealthCheckTotal, 1, map[string]string{"check": probe, "status": status})
	_ = sys.Histogram(HealthCheckDuration, took, map[string]string{"check": probe})
}

// PublishUptime sets the start time and uptime gauges. The admin server
// calls it before each scrape.
func PublishUptime(started, now time.Time) {
	sys := observability.TelemetrySystem
	if sys == nil || started.IsZero() {
		return
	}
	_ = sys.Gauge(ServerStartTime, float64(started.Unix()), nil)
	_ = sys.Gauge(ServerUptime, now.Sub(started).Seconds(), nil)
}

// RecordWatchCycle counts one pass over the watchlist. Skipped cycles fall
// outside market hours.
func RecordWatchCycle(skipped bool) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}
	name := WatchCyclesTotal
	if skipped {
		name = WatchSkippedTotal
	}
	_ = sys.Counter(name, 1, nil)
}
