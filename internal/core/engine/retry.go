package engine

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultRetryAfter applies when a 429 carries no usable hint.
const DefaultRetryAfter = time.Second

// retryAfter reads the backoff of a 429 response. The millisecond header wins
// over Retry-After, which may be seconds or an HTTP date.
func retryAfter(headers map[string]string, now time.Time) (time.Duration, string) {
	if raw := strings.TrimSpace(headers[HeaderRetryAfter]); raw != "" {
		if ms, err := strconv.ParseFloat(raw, 64); err == nil && ms >= 0 {
			return time.Duration(ms * float64(time.Millisecond)), raw
		}
	}

	raw := strings.TrimSpace(headers[HeaderRetryAfterS])
	if raw == "" {
		return DefaultRetryAfter, ""
	}
	if seconds, err := time.ParseDuration(raw + "s"); err == nil && seconds >= 0 {
		return seconds, raw
	}
	if parsed, err := http.ParseTime(raw); err == nil {
		if d := parsed.Sub(now); d > 0 {
			return d, raw
		}
		return 0, raw
	}
	return DefaultRetryAfter, raw
}
