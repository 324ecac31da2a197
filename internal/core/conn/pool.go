package conn

import (
	"sync"

	"github.com/volscan/volscan/internal/core"
)

// Pool holds one Connection per workload type.
type Pool struct {
	dialer Dialer
	opts   Options

	mu    sync.Mutex
	conns map[core.WorkloadType]*Connection
}

// NewPool creates a pool that dials through dialer.
func NewPool(dialer Dialer, opts Options) *Pool {
	return &Pool{
		dialer: dialer,
		opts:   opts.withDefaults(),
		conns:  make(map[core.WorkloadType]*Connection),
	}
}

// Get returns the connection for t, creating it on first use. The reconnect
// counter restarts for every Get.
func (p *Pool) Get(t core.WorkloadType) *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.conns[t]
	if !ok {
		c = newConnection(t, p.dialer, p.opts)
		p.conns[t] = c
	}
	c.reconnectTries = 0
	return c
}

// Len returns the number of connections created so far.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Close disconnects every connection. Callers must not hold any bucket.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		c.Disconnect()
	}
}
