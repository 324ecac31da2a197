package conn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/volscan/volscan/internal/core"
)

// DefaultRequestTimeout bounds response collection for one request.
const DefaultRequestTimeout = 9500 * time.Millisecond

// RateLimitSink receives the headers of every finalized response.
type RateLimitSink interface {
	UpdateFromHeaders(headers map[string]string)
}

// Options tunes connections created by a Pool.
type Options struct {
	RequestTimeout time.Duration
	DefaultPort    int
	ReadBufferSize int
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.DefaultPort <= 0 {
		o.DefaultPort = DefaultPort
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = 16 * 1024
	}
	return o
}

// Connection is a persistent stream bound to one workload type. It owns the
// response parser state. A Connection is not safe for concurrent use; callers
// serialize on the workload type's bucket.
type Connection struct {
	Type core.WorkloadType

	dialer Dialer
	opts   Options

	workload core.Workload
	sink     RateLimitSink
	baseURL  string
	stream   net.Conn

	inbound       []byte
	readBuf       []byte
	state         State
	resp          core.Response
	contentLength int64
	chunked       bool

	reconnectTries int
}

func newConnection(t core.WorkloadType, dialer Dialer, opts Options) *Connection {
	return &Connection{
		Type:   t,
		dialer: dialer,
		opts:   opts.withDefaults(),
	}
}

// Workload returns the currently bound workload.
func (c *Connection) Workload() core.Workload { return c.workload }

// BaseURL returns the base URL the stream is bound to.
func (c *Connection) BaseURL() string { return c.baseURL }

// Connected reports whether a stream is open.
func (c *Connection) Connected() bool { return c.stream != nil }

// ReconnectTries returns the failures recorded since the last Pool.Get.
func (c *Connection) ReconnectTries() int { return c.reconnectTries }

// NoteFailure records a transport failure and tears the stream down.
func (c *Connection) NoteFailure() int {
	c.reconnectTries++
	c.Disconnect()
	return c.reconnectTries
}

// Rebind binds a new workload and rate-limit sink. A different base URL forces
// a full disconnect first.
func (c *Connection) Rebind(w core.Workload, sink RateLimitSink) {
	if w.BaseURL != c.baseURL {
		c.Disconnect()
		c.baseURL = w.BaseURL
	}
	c.workload = w
	c.sink = sink
	c.resetParse()
}

// Reset clears parse state so the bound workload can be reissued.
func (c *Connection) Reset() {
	c.resetParse()
}

// Disconnect closes the stream and clears buffers. The Connection stays
// usable.
func (c *Connection) Disconnect() {
	if c.stream != nil {
		_ = c.stream.Close()
		c.stream = nil
	}
	c.resetParse()
}

// Connect dials the bound base URL when no stream is open.
func (c *Connection) Connect(ctx context.Context) error {
	if c.stream != nil {
		return nil
	}
	addr, err := Address(c.baseURL, c.opts.DefaultPort)
	if err != nil {
		return &OpError{Status: StatusConnectError, Err: err}
	}
	stream, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return opError(StatusConnectError, err)
	}
	c.stream = stream
	return nil
}

// Send writes the bound workload as a request.
func (c *Connection) Send() error {
	if c.stream == nil {
		return &OpError{Status: StatusWriteError, Err: errors.New("not connected")}
	}
	request, err := BuildRequest(c.workload)
	if err != nil {
		return &OpError{Status: StatusProtocolError, Err: err}
	}
	_ = c.stream.SetWriteDeadline(time.Now().Add(c.opts.RequestTimeout))
	if _, err := c.stream.Write(request); err != nil {
		return opError(StatusWriteError, err)
	}
	return nil
}

// Collect reads until the response completes, a redirect is seen, or the
// request budget runs out.
func (c *Connection) Collect(ctx context.Context) (Outcome, error) {
	if c.stream == nil {
		return OutcomePending, &OpError{Status: StatusReadError, Err: errors.New("not connected")}
	}
	if c.state == StateComplete {
		return OutcomeComplete, nil
	}

	deadline := time.Now().Add(c.opts.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	stream := c.stream
	_ = stream.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = stream.SetReadDeadline(time.Now())
	})
	defer stop()

	if c.readBuf == nil {
		c.readBuf = make([]byte, c.opts.ReadBufferSize)
	}

	for {
		n, readErr := stream.Read(c.readBuf)
		if n > 0 {
			outcome, err := c.Feed(c.readBuf[:n])
			if err != nil {
				return OutcomePending, &OpError{Status: StatusProtocolError, Err: err}
			}
			if outcome != OutcomePending {
				return outcome, nil
			}
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return OutcomePending, ctxErr
			}
			status := opError(StatusReadError, readErr).Status
			return OutcomePending, &OpError{
				Status: status,
				Err:    fmt.Errorf("response incomplete in state %s: %w", c.state, readErr),
			}
		}
	}
}

// Finalize returns the collected response. Statuses other than 200, 201 and
// 204 are returned together with a *core.HTTPError.
func (c *Connection) Finalize() (*core.Response, error) {
	if c.state != StateComplete {
		return nil, &core.ProtocolError{Reason: "response incomplete in state " + c.state.String()}
	}

	body := c.resp.Body
	if c.contentLength > 0 && int64(len(body)) >= c.contentLength {
		body = body[:c.contentLength]
	} else if len(body) > 0 {
		body = extractDocument(body)
	}

	resp := &core.Response{
		Status:  c.resp.Status,
		Headers: c.resp.Headers,
		Body:    append([]byte(nil), body...),
	}
	if c.sink != nil {
		c.sink.UpdateFromHeaders(resp.Headers)
	}

	if !core.IsSuccessStatus(resp.Status) {
		return resp, &core.HTTPError{
			Status:  resp.Status,
			Request: c.workload.Describe(),
			Body:    resp.Body,
		}
	}
	return resp, nil
}
