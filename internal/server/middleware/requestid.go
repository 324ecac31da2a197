package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Headers carrying a caller-supplied request id, in order of preference.
const (
	RequestIDHeader     = "X-Request-ID"
	CorrelationIDHeader = "X-Correlation-ID"
)

// maxRequestIDLen bounds caller-supplied ids before they reach logs.
const maxRequestIDLen = 128

type requestIDContextKey struct{}

// RequestID tags each request with an id taken from X-Request-ID,
// X-Correlation-ID or chi's request id, generating a UUID otherwise. The id is
// echoed in X-Request-ID and becomes the correlation id of error envelopes.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := inboundRequestID(r)
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDContextKey{}, id)))
	})
}

func inboundRequestID(r *http.Request) string {
	for _, candidate := range []string{
		r.Header.Get(RequestIDHeader),
		r.Header.Get(CorrelationIDHeader),
		middleware.GetReqID(r.Context()),
	} {
		if validRequestID(candidate) {
			return candidate
		}
	}
	return uuid.NewString()
}

// validRequestID accepts short printable ASCII ids only.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// GetRequestID returns the id set by RequestID, falling back to chi's.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey{}).(string); ok {
		return id
	}
	return middleware.GetReqID(ctx)
}
