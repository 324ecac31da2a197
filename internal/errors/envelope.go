// Package errors builds gofulmen error envelopes for volscan and maps client
// failures onto them. Envelopes carry the request ID of the HTTP request or
// command that produced them.
package errors

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"

	"github.com/volscan/volscan/internal/core"
	"github.com/volscan/volscan/internal/server/middleware"
)

// Envelope codes.
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeValidation       = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeTimeout          = "TIMEOUT"
	CodeExternalService  = "EXTERNAL_SERVICE_ERROR"
	CodeUpstreamHTTP     = "UPSTREAM_HTTP_ERROR"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeDatabase         = "DATABASE_ERROR"
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeInternal         = "INTERNAL_ERROR"
)

var statusByCode = map[string]int{
	CodeInvalidInput:     http.StatusBadRequest,
	CodeValidation:       http.StatusBadRequest,
	CodeNotFound:         http.StatusNotFound,
	CodeMethodNotAllowed: http.StatusMethodNotAllowed,
	CodeRateLimited:      http.StatusTooManyRequests,
	CodeTimeout:          http.StatusGatewayTimeout,
	CodeExternalService:  http.StatusBadGateway,
	CodeUpstreamHTTP:     http.StatusBadGateway,
	CodeUnavailable:      http.StatusServiceUnavailable,
}

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInternal, message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeUnavailable, message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConfigInvalid, message)
}

// The Wrap helpers keep err in the envelope context and tag it with the
// request ID found in ctx.

func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInvalidInput, err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInternal, err, message)
}

func WrapDatabaseError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeDatabase, err, message)
}

func WrapExternalService(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeExternalService, err, message)
}

func WrapTimeout(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeTimeout, err, message)
}

func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeConfigInvalid, err, message)
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	id := requestID(ctx)
	envelope := errors.NewErrorEnvelope(code, message).WithCorrelationID(id).WithTraceID(id)
	if err != nil {
		envelope = withContext(envelope, map[string]any{"wrapped_error": err.Error()})
	}
	return envelope
}

// FromClientError maps an executor error onto an envelope. Bucket access
// timeouts become TIMEOUT, an exhausted 429 budget RATE_LIMITED, an
// unsuccessful upstream status UPSTREAM_HTTP_ERROR, and connection or parse
// failures EXTERNAL_SERVICE_ERROR.
func FromClientError(ctx context.Context, err error) *errors.ErrorEnvelope {
	if err == nil {
		return nil
	}

	var (
		accessErr    *core.AccessTimeoutError
		limitedErr   *core.RateLimitedError
		httpErr      *core.HTTPError
		transportErr *core.TransportError
		protocolErr  *core.ProtocolError
	)
	switch {
	case stderrors.As(err, &accessErr):
		return withContext(WrapTimeout(ctx, err, "timed out waiting for rate-limit bucket"), map[string]any{
			"workload_type": string(accessErr.Type),
			"waited_ms":     accessErr.Waited.Milliseconds(),
		})
	case stderrors.Is(err, context.DeadlineExceeded):
		return WrapTimeout(ctx, err, "request deadline exceeded")
	case stderrors.As(err, &limitedErr):
		return withContext(wrap(ctx, CodeRateLimited, err, "upstream rate limit not lifted"), map[string]any{
			"workload_type":  string(limitedErr.Type),
			"attempts":       limitedErr.Attempts,
			"retry_after_ms": limitedErr.RetryAfter.Milliseconds(),
		})
	case stderrors.As(err, &httpErr):
		return withContext(wrap(ctx, CodeUpstreamHTTP, err, core.StatusLabel(httpErr.Status)), map[string]any{
			"upstream_status": httpErr.Status,
			"request":         httpErr.Request,
		})
	case stderrors.As(err, &transportErr):
		return withContext(WrapExternalService(ctx, err, "upstream connection failed"), map[string]any{
			"op":       transportErr.Op,
			"attempts": transportErr.Attempts,
		})
	case stderrors.As(err, &protocolErr):
		return WrapExternalService(ctx, err, "malformed upstream response")
	case stderrors.Is(err, context.Canceled):
		return WrapInternal(ctx, err, "request canceled")
	default:
		return WrapInternal(ctx, err, "request failed")
	}
}

// withContext merges fields into the envelope context, keeping the envelope
// unchanged if gofulmen rejects them.
func withContext(envelope *errors.ErrorEnvelope, fields map[string]any) *errors.ErrorEnvelope {
	if updated, err := envelope.WithContext(fields); err == nil {
		return updated
	}
	return envelope
}

// requestID returns the request ID carried by ctx or a fresh UUID.
func requestID(ctx context.Context) string {
	if ctx != nil {
		if id := middleware.GetRequestID(ctx); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

// EnsureEnvelope returns err as an envelope, wrapping foreign errors as
// INTERNAL_ERROR.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	var envelope *errors.ErrorEnvelope
	switch {
	case err == nil:
		envelope = errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		envelope, _ = envelope.WithSeverity(errors.SeverityCritical)
	case stderrors.As(err, &envelope) && envelope != nil:
	default:
		envelope = withContext(errors.NewErrorEnvelope(CodeInternal, "unexpected error"), map[string]any{"wrapped_error": err.Error()})
		envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
	}
	return envelope
}

// HTTPStatusFromCode resolves the HTTP status for an envelope code. Unknown
// codes are 500.
func HTTPStatusFromCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}
