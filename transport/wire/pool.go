package wire

import (
	"net"
	"sync"
	"time"

	"scan-http/application/http"
	"scan-http/lib/ds/stack"
	"scan-http/transport"

	"github.com/benbjohnson/clock"
)

// poolKey identifies connections that can serve each other's requests.
type poolKey struct {
	scheme    string
	addr      string
	proxy     string
	proxyType transport.ProxyType
	proxyAuth string
	tls       transport.TLSOptions
}

type conn struct {
	net.Conn
	dec *http.ResponseDecoder

	idleSince time.Time
}

func (c *conn) idleTimeoutExceeded(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(c.idleSince) >= timeout
}

// connPool keeps idle connections per key, most recently used on top.
type connPool struct {
	mu   sync.Mutex
	idle map[poolKey]*stack.Stack[*conn]

	maxPerKey   uint
	idleTimeout time.Duration
	clock       clock.Clock
}

func newConnPool(maxPerKey uint, idleTimeout time.Duration, clock clock.Clock) *connPool {
	return &connPool{
		idle:        make(map[poolKey]*stack.Stack[*conn]),
		maxPerKey:   maxPerKey,
		idleTimeout: idleTimeout,
		clock:       clock,
	}
}

// get returns an idle connection for key, or nil.
func (pool *connPool) get(key poolKey) *conn {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	idle, ok := pool.idle[key]
	if !ok {
		return nil
	}

	c, err := idle.Pop()
	if err != nil {
		delete(pool.idle, key)
		return nil
	}

	if c.idleTimeoutExceeded(pool.clock.Now(), pool.idleTimeout) {
		// Everything below the top has been idle for longer.
		c.Close()
		for _, stale := range idle.Drain() {
			stale.Close()
		}
		delete(pool.idle, key)
		return nil
	}

	if idle.Len() == 0 {
		delete(pool.idle, key)
	}

	return c
}

func (pool *connPool) put(key poolKey, c *conn) {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	idle, ok := pool.idle[key]
	if !ok {
		idle = stack.New[*conn](0)
		pool.idle[key] = idle
	}

	if idle.Len() >= pool.maxPerKey {
		c.Close()
		if idle.Len() == 0 {
			delete(pool.idle, key)
		}
		return
	}

	c.idleSince = pool.clock.Now()
	idle.Push(c)
}

func (pool *connPool) len() int {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	n := 0
	for _, idle := range pool.idle {
		n += int(idle.Len())
	}
	return n
}

func (pool *connPool) closeIdle() {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	for key, idle := range pool.idle {
		for _, c := range idle.Drain() {
			c.Close()
		}
		delete(pool.idle, key)
	}
}
