package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// badQuarantine is how long a connection flagged bad is held before being
// disposed of; during that window the pool will not hand it out.
const badQuarantine = 30 * time.Second

// Pool hands out one healthy connection per Get call, creating new ones on
// demand bounded per endpoint, fanning out over endpoints round-robin.
// Safe for concurrent use.
type Pool struct {
	cfg       Config
	endpoints []Endpoint
	log       *logrus.Entry
	metrics   *poolMetrics
	rr        atomic.Uint64

	// dial is the connection factory; tests substitute it.
	dial func(ctx context.Context, ep Endpoint, cfg Config) (*Connection, error)

	mu      sync.Mutex
	conns   []*Connection // insertion order; scan prefers the earliest
	bad     map[*Connection]time.Time
	perHost map[string]int // live sockets per endpoint address
	closed  bool
}

// NewPool creates a pool over the given endpoints. A nil registerer
// disables metrics.
func NewPool(endpoints []Endpoint, cfg Config, reg prometheus.Registerer) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:       cfg,
		endpoints: endpoints,
		log:       cfg.Logger.WithField("component", "pool"),
		metrics:   newPoolMetrics(reg),
		dial:      Dial,
		bad:       make(map[*Connection]time.Time),
		perHost:   make(map[string]int),
	}
}

// Get returns a healthy connection for exclusive use; release it with
// Release when the request/reply cycle is done. Existing connections are
// preferred in creation order; otherwise a new one is dialed against the
// next endpoint in round-robin order.
func (p *Pool) Get(ctx context.Context) (*Connection, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.reapBad()

	for _, c := range p.conns {
		if c.Healthy() && c.tryAcquire() {
			p.mu.Unlock()
			return c, nil
		}
	}

	if len(p.endpoints) == 0 {
		p.mu.Unlock()
		return nil, ErrNoEndpoints
	}

	// The cursor advances even when the dial below fails, so failures
	// rotate away from a dead node.
	ep := p.endpoints[p.rr.Add(1)%uint64(len(p.endpoints))]
	addr := ep.Addr()
	if p.perHost[addr] >= p.cfg.MaxPendingPerHost {
		p.mu.Unlock()
		return nil, &ExhaustedError{Endpoint: ep}
	}
	p.perHost[addr]++ // reserve the slot while dialing outside the lock
	p.mu.Unlock()

	conn, err := p.dial(ctx, ep, p.cfg)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.perHost[addr]--
		return nil, err
	}
	if p.closed {
		p.perHost[addr]--
		conn.Close()
		return nil, ErrClosed
	}
	conn.metrics = p.metrics
	p.metrics.incCreated(ep)
	p.conns = append(p.conns, conn)
	conn.tryAcquire()
	p.log.WithField("endpoint", ep.String()).Debug("connection added to pool")
	return conn, nil
}

// Release returns a connection obtained from Get.
func (p *Pool) Release(c *Connection) {
	c.release()
}

// MarkBad removes the connection from circulation. It is held for the
// quarantine window and then closed.
func (p *Pool) MarkBad(c *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, held := range p.conns {
		if held == c {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			p.bad[c] = p.cfg.now()
			p.metrics.incBad()
			p.log.WithField("endpoint", c.endpoint.String()).Warn("connection marked bad")
			return
		}
	}
}

// reapBad closes quarantined connections whose window has passed. Caller
// holds p.mu.
func (p *Pool) reapBad() {
	now := p.cfg.now()
	for c, at := range p.bad {
		if now.Sub(at) >= badQuarantine {
			c.Close()
			p.perHost[c.endpoint.Addr()]--
			delete(p.bad, c)
		}
	}
}

// Len returns the number of connections in circulation.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Close closes every held connection, quarantined ones included, and marks
// the pool closed. Idempotent; subsequent Get calls fail with ErrClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for _, c := range p.conns {
		c.Close()
	}
	for c := range p.bad {
		c.Close()
	}
	p.conns = nil
	p.bad = make(map[*Connection]time.Time)
	p.perHost = make(map[string]int)
	return nil
}
