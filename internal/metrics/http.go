package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/volscan/volscan/internal/observability"
)

// Admin server metric names
const (
	HTTPRequestsTotal   = "http_requests_total"
	HTTPRequestDuration = "http_request_duration_ms"
	HTTPResponseBytes   = "http_response_size_bytes"
	HTTPErrorsTotal     = "http_errors_total"
	ErrorsTotal         = "errors_total"
	PanicsTotal         = "panics_total"
)

// EndpointPattern returns the chi route pattern of r, so /workloads/quotes is
// reported as /workloads/{name}. Unrouted paths collapse to /unknown.
func EndpointPattern(r *http.Request) string {
	if r == nil {
		return "/unknown"
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	switch path := r.URL.Path; {
	case strings.HasPrefix(path, "/health"):
		return "/health/*"
	case strings.HasPrefix(path, "/workloads/"):
		return "/workloads/{name}"
	case path == "/", path == "/version", path == "/metrics", path == "/buckets", path == "/exchanges":
		return path
	default:
		return "/unknown"
	}
}

// RecordHTTPRequest emits the request counter, latency and response size of
// one admin request, plus an error counter for 4xx and 5xx.
func RecordHTTPRequest(method, endpoint string, status int, took time.Duration, responseBytes int64) {
	if observability.TelemetrySystem == nil {
		return
	}
	tags := map[string]string{
		"method":   method,
		"endpoint": endpoint,
		"status":   strconv.Itoa(status),
	}
	_ = observability.TelemetrySystem.Counter(HTTPRequestsTotal, 1, tags)
	_ = observability.TelemetrySystem.Histogram(HTTPRequestDuration, took, tags)
	_ = observability.TelemetrySystem.Gauge(HTTPResponseBytes, float64(responseBytes), map[string]string{
		"method":   method,
		"endpoint": endpoint,
	})

	if status < 400 {
		return
	}
	class := "client_error"
	if status >= 500 {
		class = "server_error"
	}
	_ = observability.TelemetrySystem.Counter(HTTPErrorsTotal, 1, map[string]string{
		"method":     method,
		"endpoint":   endpoint,
		"error_type": class,
	})
}

// RecordError counts an error envelope written to a client.
func RecordError(code string, status int, endpoint string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(ErrorsTotal, 1, map[string]string{
		"error_code":  code,
		"http_status": strconv.Itoa(status),
		"endpoint":    endpoint,
	})
}

// RecordPanic counts a recovered handler panic.
func RecordPanic() {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(PanicsTotal, 1, nil)
}
