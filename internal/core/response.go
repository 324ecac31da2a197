package core

import (
	"strings"
	"time"
)

// Response is a completed HTTP response.
type Response struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    []byte            `json:"-"`
}

// Header returns a response header. Keys are stored lower-cased.
func (r *Response) Header(key string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers[strings.ToLower(key)]
}

// Success reports whether the status is 200, 201 or 204.
func (r *Response) Success() bool {
	return r != nil && IsSuccessStatus(r.Status)
}

// IsSuccessStatus reports whether the client treats a status as success.
func IsSuccessStatus(status int) bool {
	return status == 200 || status == 201 || status == 204
}

// BucketSnapshot is a point-in-time copy of one rate-limit bucket.
type BucketSnapshot struct {
	Type       WorkloadType  `json:"workload_type"`
	BucketID   string        `json:"bucket_id,omitempty"`
	Remaining  int64         `json:"remaining"`
	ResetAfter time.Duration `json:"reset_after"`
	SampledAt  time.Time     `json:"sampled_at"`
	Special    bool          `json:"special"`
	Spacing    time.Duration `json:"spacing,omitempty"`
	MustWait   bool          `json:"must_wait"`
	Held       bool          `json:"held"`
}

// ReadyAt returns when the current window elapses.
func (s BucketSnapshot) ReadyAt() time.Time {
	return s.SampledAt.Add(s.ResetAfter)
}

// Exchange records the outcome of one executed workload.
type Exchange struct {
	ID               string        `json:"id"`
	Type             WorkloadType  `json:"workload_type"`
	Method           Method        `json:"method"`
	URL              string        `json:"url"`
	Label            string        `json:"label,omitempty"`
	Status           int           `json:"status"`
	Reconnects       int           `json:"reconnects"`
	RateLimitRetries int           `json:"rate_limit_retries"`
	Redirects        int           `json:"redirects"`
	Waited           time.Duration `json:"waited"`
	Duration         time.Duration `json:"duration"`
	Error            string        `json:"error,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
}

// OK reports whether the exchange ended with a success status.
func (e Exchange) OK() bool {
	return e.Error == "" && IsSuccessStatus(e.Status)
}
