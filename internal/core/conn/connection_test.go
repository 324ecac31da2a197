package conn

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/volscan/volscan/internal/core"
)

// pipeDialer hands out in-memory streams served by serve.
type pipeDialer struct {
	mu    sync.Mutex
	addrs []string
	serve func(server net.Conn)
}

func (d *pipeDialer) DialContext(_ context.Context, _, addr string) (net.Conn, error) {
	d.mu.Lock()
	d.addrs = append(d.addrs, addr)
	d.mu.Unlock()

	client, server := net.Pipe()
	go d.serve(server)
	return client, nil
}

func (d *pipeDialer) dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.addrs...)
}

// readRequest consumes one request header block.
func readRequest(r *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return b.String(), err
		}
		b.WriteString(line)
		if line == "\r\n" {
			return b.String(), nil
		}
	}
}

func quotesWorkload(base string) core.Workload {
	return core.Workload{Type: "quotes", Method: core.MethodGet, BaseURL: base, Path: "/v1/quotes"}
}

func TestConnectionRoundTripOverPipe(t *testing.T) {
	requests := make(chan string, 2)
	dialer := &pipeDialer{serve: func(server net.Conn) {
		defer func() { _ = server.Close() }()
		r := bufio.NewReader(server)
		for {
			req, err := readRequest(r)
			if err != nil {
				return
			}
			requests <- req
			_, _ = server.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\n{}"))
		}
	}}

	pool := NewPool(dialer, Options{})
	c := pool.Get("quotes")
	c.Rebind(quotesWorkload("https://api.example.com"), nil)

	for i := 0; i < 2; i++ {
		require.NoError(t, c.Connect(context.Background()))
		require.NoError(t, c.Send())
		outcome, err := c.Collect(context.Background())
		require.NoError(t, err)
		require.Equal(t, OutcomeComplete, outcome)
		resp, err := c.Finalize()
		require.NoError(t, err)
		require.Equal(t, "{}", string(resp.Body))
		c.Reset()
	}

	require.Equal(t, []string{"api.example.com:443"}, dialer.dials())
	require.True(t, strings.HasPrefix(<-requests, "GET https://api.example.com/v1/quotes HTTP/1.1\r\n"))
	pool.Close()
	require.False(t, c.Connected())
}

func TestConnectionRebindDifferentBaseDisconnects(t *testing.T) {
	dialer := &pipeDialer{serve: func(server net.Conn) {
		_, _ = bufio.NewReader(server).ReadByte()
	}}
	c := NewPool(dialer, Options{}).Get("quotes")
	c.Rebind(quotesWorkload("https://a.example.com"), nil)
	require.NoError(t, c.Connect(context.Background()))
	require.True(t, c.Connected())

	c.Rebind(quotesWorkload("https://a.example.com"), nil)
	require.True(t, c.Connected())

	c.Rebind(quotesWorkload("https://b.example.com:8443"), nil)
	require.False(t, c.Connected())
	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, []string{"a.example.com:443", "b.example.com:8443"}, dialer.dials())
}

func TestConnectionCollectTimesOut(t *testing.T) {
	dialer := &pipeDialer{serve: func(server net.Conn) {
		r := bufio.NewReader(server)
		_, _ = readRequest(r)
		_, _ = server.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 50\r\n\r\n{"))
		time.Sleep(time.Second)
		_ = server.Close()
	}}
	c := NewPool(dialer, Options{RequestTimeout: 50 * time.Millisecond}).Get("quotes")
	c.Rebind(quotesWorkload("https://api.example.com"), nil)
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Send())

	_, err := c.Collect(context.Background())
	require.Error(t, err)
	require.Equal(t, StatusTimeout, StatusOf(err))
	require.Contains(t, err.Error(), "collecting_content")
}

func TestConnectionCollectHonoursContext(t *testing.T) {
	dialer := &pipeDialer{serve: func(server net.Conn) {
		_, _ = readRequest(bufio.NewReader(server))
		time.Sleep(time.Second)
		_ = server.Close()
	}}
	c := NewPool(dialer, Options{}).Get("quotes")
	c.Rebind(quotesWorkload("https://api.example.com"), nil)
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Send())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := c.Collect(ctx)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestConnectionFailureCounterResetsOnGet(t *testing.T) {
	pool := NewPool(&pipeDialer{serve: func(server net.Conn) { _ = server.Close() }}, Options{})
	c := pool.Get("orders")
	require.Equal(t, 1, c.NoteFailure())
	require.Equal(t, 2, c.NoteFailure())
	require.Same(t, c, pool.Get("orders"))
	require.Zero(t, c.ReconnectTries())
	require.Equal(t, 1, pool.Len())
}

func TestTLSDialerAgainstTestServer(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "7")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
	}))
	defer srv.Close()

	roots := x509.NewCertPool()
	roots.AddCert(srv.Certificate())
	dialer := NewTLSDialer(TLSOptions{RootCAs: roots})

	sink := &recordingSink{}
	c := NewPool(dialer, Options{}).Get("quotes")
	c.Rebind(quotesWorkload(srv.URL), sink)
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Send())
	outcome, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeComplete, outcome)

	resp, err := c.Finalize()
	require.NoError(t, err)
	require.Equal(t, `{"path":"/v1/quotes"}`, string(resp.Body))
	require.Equal(t, "7", sink.headers["x-ratelimit-remaining"])

	_, isTLS := c.stream.(*tls.Conn)
	require.True(t, isTLS)
	c.Disconnect()
}
