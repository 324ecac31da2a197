package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrEndpointAccessTimeout = errors.New("failed to gain endpoint access")
	ErrTransport             = errors.New("transport failure")
	ErrProtocol              = errors.New("malformed response")
	ErrRateLimited           = errors.New("rate limited")
	ErrHTTPStatus            = errors.New("unsuccessful http status")
)

// AccessTimeoutError is returned when a bucket could not be acquired in time.
type AccessTimeoutError struct {
	Type   WorkloadType
	Waited time.Duration
}

func (e *AccessTimeoutError) Error() string {
	return fmt.Sprintf("%s: %s after %s", ErrEndpointAccessTimeout, e.Type, e.Waited.Round(time.Millisecond))
}

func (e *AccessTimeoutError) Unwrap() error { return ErrEndpointAccessTimeout }

// TransportError reports a connect, write or read failure that exhausted the
// reconnect budget.
type TransportError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s: %s failed after %d attempt(s)", ErrTransport, e.Op, e.Attempts)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// ProtocolError reports a malformed status line or header block.
type ProtocolError struct {
	Reason string
	Line   string
}

func (e *ProtocolError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("%s: %s", ErrProtocol, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %q", ErrProtocol, e.Reason, e.Line)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocol }

// RateLimitedError is returned when 429 responses outlast the retry budget.
type RateLimitedError struct {
	Type       WorkloadType
	Attempts   int
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: %s still limited after %d attempt(s), retry after %s",
		ErrRateLimited, e.Type, e.Attempts, e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// HTTPError is a completed response with a status other than 200, 201 or 204.
type HTTPError struct {
	Status  int
	Request string
	Body    []byte
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Request, StatusLabel(e.Status), e.Body)
	return msg
}

func (e *HTTPError) Unwrap() error { return ErrHTTPStatus }

var statusMessages = map[int]string{
	200: "The request completed successfully",
	201: "The entity was created successfully",
	204: "The request completed successfully but returned no content",
	304: "The entity was not modified (no action was taken)",
	400: "The request was improperly formatted, or the server couldn't understand it",
	401: "The authorization header was missing or invalid",
	403: "The authorization token you passed did not have permission to the resource",
	404: "The resource at the location specified doesn't exist",
	405: "The https method used is not valid for the location specified",
	429: "You are being rate limited, see rate limits",
	500: "The server had an error processing your request (these are rare)",
	502: "There was not a gateway available to process your request. Wait a bit and retry",
}

// StatusMessage returns the description for a known status code.
func StatusMessage(status int) string {
	return statusMessages[status]
}

// StatusLabel renders "Code: N, message: ..." for logs and errors.
func StatusLabel(status int) string {
	msg := StatusMessage(status)
	if msg == "" {
		msg = "unrecognized status"
	}
	return fmt.Sprintf("Code: %d, message: %s", status, msg)
}
