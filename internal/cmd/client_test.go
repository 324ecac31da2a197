package cmd

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volscan/volscan/internal/config"
	"github.com/volscan/volscan/internal/core"
	"github.com/volscan/volscan/internal/core/engine"
)

// replyDialer answers every request on an in-memory stream with reply.
type replyDialer struct {
	mu       sync.Mutex
	addrs    []string
	requests []string
	reply    string
}

func (d *replyDialer) DialContext(_ context.Context, _, addr string) (net.Conn, error) {
	d.mu.Lock()
	d.addrs = append(d.addrs, addr)
	d.mu.Unlock()

	client, server := net.Pipe()
	go func() {
		defer func() { _ = server.Close() }()
		r := bufio.NewReader(server)
		for {
			var req strings.Builder
			for {
				line, err := r.ReadString('\n')
				if err != nil {
					return
				}
				req.WriteString(line)
				if line == "\r\n" {
					break
				}
			}
			d.mu.Lock()
			d.requests = append(d.requests, req.String())
			d.mu.Unlock()
			if _, err := server.Write([]byte(d.reply)); err != nil {
				return
			}
		}
	}()
	return client, nil
}

func testClientConfig() *config.Config {
	return &config.Config{
		Client: config.ClientConfig{
			BaseURL:           "https://api.example.com",
			Token:             "secret",
			AuthScheme:        "Bearer",
			UserAgent:         "volscan/test",
			AcquireTimeout:    time.Second,
			RequestTimeout:    time.Second,
			MaxReconnectTries: 3,
			MaxRedirects:      5,
		},
		Workloads: map[string]config.WorkloadConfig{
			"quotes":  {Path: "/v1/markets/quotes?symbols=SPY", Spacing: 200 * time.Millisecond},
			"chains":  {Type: "quotes", Path: "/v1/markets/options/chains", Special: true, Spacing: time.Second},
			"history": {Path: "/v1/markets/history"},
		},
	}
}

func TestTypeSettingsMergesProfiles(t *testing.T) {
	settings := typeSettings(testClientConfig())
	require.Equal(t, []engine.TypeSettings{
		{Type: "history"},
		{Type: "quotes", Special: true, Spacing: time.Second},
	}, settings)

	assert.Empty(t, typeSettings(&config.Config{}))
}

func TestClientRuntimeExecutesProfile(t *testing.T) {
	dialer := &replyDialer{reply: "HTTP/1.1 200 OK\r\nContent-Length: 2\r\nX-RateLimit-Remaining: 7\r\n\r\n{}"}
	tracker := &completions{}

	rt, err := newClientRuntime(context.Background(), testClientConfig(), runtimeOptions{
		skipStore: true,
		dialer:    dialer,
		observers: []engine.Observer{tracker},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	w, err := rt.Resolve("history")
	require.NoError(t, err)
	resp, err := rt.Execute(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)

	dialer.mu.Lock()
	assert.Equal(t, []string{"api.example.com:443"}, dialer.addrs)
	require.Len(t, dialer.requests, 1)
	assert.Contains(t, dialer.requests[0], "Authorization: Bearer secret\r\n")
	assert.Contains(t, dialer.requests[0], "User-Agent: volscan/test\r\n")
	dialer.mu.Unlock()

	var history core.BucketSnapshot
	for _, s := range rt.Snapshot() {
		if s.Type == "history" {
			history = s
		}
	}
	assert.Equal(t, int64(7), history.Remaining)
	assert.Len(t, tracker.exchanges(), 1)

	_, err = rt.Resolve("missing")
	assert.Error(t, err)
}

func TestClientRuntimeCloseWithoutStore(t *testing.T) {
	rt, err := newClientRuntime(context.Background(), testClientConfig(), runtimeOptions{skipStore: true, dialer: &replyDialer{}})
	require.NoError(t, err)
	require.NoError(t, rt.Close())

	var nilRuntime *clientRuntime
	require.NoError(t, nilRuntime.Close())
}

type completions struct {
	engine.NopObserver
	mu   sync.Mutex
	seen []core.Exchange
}

func (c *completions) Completed(ex core.Exchange, _ core.BucketSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, ex)
}

func (c *completions) exchanges() []core.Exchange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Exchange(nil), c.seen...)
}
