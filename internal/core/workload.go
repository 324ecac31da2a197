package core

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Method is an HTTP request method supported by the client.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPut    Method = "PUT"
	MethodPost   Method = "POST"
	MethodPatch  Method = "PATCH"
	MethodDelete Method = "DELETE"
)

// ParseMethod normalizes a method name.
func ParseMethod(value string) (Method, error) {
	switch Method(strings.ToUpper(strings.TrimSpace(value))) {
	case "", MethodGet:
		return MethodGet, nil
	case MethodPut:
		return MethodPut, nil
	case MethodPost:
		return MethodPost, nil
	case MethodPatch:
		return MethodPatch, nil
	case MethodDelete:
		return MethodDelete, nil
	default:
		return "", fmt.Errorf("unsupported method: %s", value)
	}
}

// Mutating reports whether requests with this method carry a body.
func (m Method) Mutating() bool {
	return m == MethodPut || m == MethodPost || m == MethodPatch
}

// PayloadKind selects the Content-Type of a request body.
type PayloadKind int

const (
	PayloadNone PayloadKind = iota
	PayloadJSON
	PayloadMultipart
)

// MultipartBoundary is the boundary used for multipart payloads.
const MultipartBoundary = "boundary25"

// ParsePayloadKind maps a config value to a payload kind.
func ParsePayloadKind(value string) (PayloadKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none":
		return PayloadNone, nil
	case "json", "application/json":
		return PayloadJSON, nil
	case "multipart", "multipart/form-data":
		return PayloadMultipart, nil
	default:
		return PayloadNone, fmt.Errorf("unsupported payload kind: %s", value)
	}
}

// ContentType returns the Content-Type header value, or "" for PayloadNone.
func (k PayloadKind) ContentType() string {
	switch k {
	case PayloadJSON:
		return "application/json"
	case PayloadMultipart:
		return "multipart/form-data; boundary=" + MultipartBoundary
	default:
		return ""
	}
}

func (k PayloadKind) String() string {
	switch k {
	case PayloadJSON:
		return "json"
	case PayloadMultipart:
		return "multipart"
	default:
		return "none"
	}
}

// WorkloadType names an endpoint class. Each type owns one rate-limit bucket
// and one persistent connection.
type WorkloadType string

// Header is a single request header.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Workload describes one request to execute.
type Workload struct {
	Type    WorkloadType `json:"type"`
	Method  Method       `json:"method"`
	BaseURL string       `json:"base_url"`
	Path    string       `json:"path"`
	Headers []Header     `json:"headers,omitempty"`
	Body    []byte       `json:"-"`
	Payload PayloadKind  `json:"payload"`
	Label   string       `json:"label,omitempty"`
}

// SetHeader replaces an existing header (case-insensitive) in place, or
// appends it.
func (w *Workload) SetHeader(key, value string) {
	for i := range w.Headers {
		if strings.EqualFold(w.Headers[i].Key, key) {
			w.Headers[i].Value = value
			return
		}
	}
	w.Headers = append(w.Headers, Header{Key: key, Value: value})
}

// DefaultHeader appends a header only when the caller has not set it.
func (w *Workload) DefaultHeader(key, value string) {
	if _, ok := w.Header(key); ok {
		return
	}
	w.Headers = append(w.Headers, Header{Key: key, Value: value})
}

// Header returns the value of a header (case-insensitive).
func (w Workload) Header(key string) (string, bool) {
	for _, h := range w.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value, true
		}
	}
	return "", false
}

// Clone returns a deep copy.
func (w Workload) Clone() Workload {
	out := w
	if w.Headers != nil {
		out.Headers = append([]Header(nil), w.Headers...)
	}
	if w.Body != nil {
		out.Body = append([]byte(nil), w.Body...)
	}
	return out
}

// SensitiveQueryKeys are query parameters whose values are masked outside the
// request line. Matching is case-insensitive.
var SensitiveQueryKeys = []string{"api_key", "apikey", "access_token", "token", "secret"}

const redacted = "REDACTED"

// URL returns the request target with sensitive query values masked. It is
// safe for logs, errors and the exchange journal.
func (w Workload) URL() string {
	return w.BaseURL + RedactPath(w.Path)
}

// RedactPath masks the values of SensitiveQueryKeys in path, keeping
// parameter order and every other byte intact.
func RedactPath(path string) string {
	base, query, ok := strings.Cut(path, "?")
	if !ok || query == "" {
		return path
	}
	params := strings.Split(query, "&")
	changed := false
	for i, param := range params {
		key, _, hasValue := strings.Cut(param, "=")
		if !hasValue || !sensitiveKey(key) {
			continue
		}
		params[i] = key + "=" + redacted
		changed = true
	}
	if !changed {
		return path
	}
	return base + "?" + strings.Join(params, "&")
}

func sensitiveKey(key string) bool {
	if unescaped, err := url.QueryUnescape(key); err == nil {
		key = unescaped
	}
	for _, k := range SensitiveQueryKeys {
		if strings.EqualFold(key, k) {
			return true
		}
	}
	return false
}

// Describe renders the workload for errors and logs.
func (w Workload) Describe() string {
	desc := fmt.Sprintf("%s %s", w.Method, w.URL())
	if w.Label != "" {
		desc += " (" + w.Label + ")"
	}
	return desc
}

// Validate checks the fields the client cannot default.
func (w Workload) Validate() error {
	if strings.TrimSpace(string(w.Type)) == "" {
		return errors.New("workload type is required")
	}
	if _, err := ParseMethod(string(w.Method)); err != nil {
		return err
	}
	if w.Path != "" && !strings.HasPrefix(w.Path, "/") && !strings.HasPrefix(w.Path, "?") {
		return fmt.Errorf("path must start with '/': %s", RedactPath(w.Path))
	}
	if len(w.Body) > 0 && !w.Method.Mutating() {
		return fmt.Errorf("%s requests cannot carry a body", w.Method)
	}
	return nil
}
