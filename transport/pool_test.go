package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNetConn satisfies net.Conn for connections that never touch the wire.
type fakeNetConn struct{}

func (fakeNetConn) Read([]byte) (int, error)         { return 0, net.ErrClosed }
func (fakeNetConn) Write(b []byte) (int, error)      { return len(b), nil }
func (fakeNetConn) Close() error                     { return nil }
func (fakeNetConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (fakeNetConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (fakeNetConn) SetDeadline(time.Time) error      { return nil }
func (fakeNetConn) SetReadDeadline(time.Time) error  { return nil }
func (fakeNetConn) SetWriteDeadline(time.Time) error { return nil }

func stubDial(dialed *[]string) func(context.Context, Endpoint, Config) (*Connection, error) {
	return func(_ context.Context, ep Endpoint, cfg Config) (*Connection, error) {
		if dialed != nil {
			*dialed = append(*dialed, ep.Addr())
		}
		c := &Connection{
			endpoint: ep,
			cfg:      cfg.withDefaults(),
			conn:     fakeNetConn{},
		}
		c.log = c.cfg.Logger.WithField("component", "conn")
		return c, nil
	}
}

func testEndpoints(hosts ...string) []Endpoint {
	eps := make([]Endpoint, len(hosts))
	for i, h := range hosts {
		eps[i] = Endpoint{Host: h, Port: DefaultPort}
	}
	return eps
}

func TestPoolGetDialsAndReuses(t *testing.T) {
	var dialed []string
	p := NewPool(testEndpoints("a"), Config{}, nil)
	p.dial = stubDial(&dialed)
	defer p.Close()

	c1, err := p.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, dialed, 1)

	p.Release(c1)
	c2, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, c1, c2, "released connection is reused")
	assert.Len(t, dialed, 1, "no second dial while one is idle")
	assert.Equal(t, 1, p.Len())
}

func TestPoolRoundRobin(t *testing.T) {
	var dialed []string
	p := NewPool(testEndpoints("a", "b", "c"), Config{}, nil)
	p.dial = stubDial(&dialed)
	defer p.Close()

	// Hold all three so each Get must dial a fresh endpoint.
	seen := make(map[string]int)
	for i := 0; i < 3; i++ {
		c, err := p.Get(context.Background())
		require.NoError(t, err)
		seen[c.Endpoint().Host]++
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, seen)
}

func TestPoolRotatesPastDialFailure(t *testing.T) {
	var dialed []string
	p := NewPool(testEndpoints("a", "b"), Config{}, nil)
	p.dial = func(_ context.Context, ep Endpoint, _ Config) (*Connection, error) {
		dialed = append(dialed, ep.Host)
		return nil, assert.AnError
	}
	defer p.Close()

	_, err := p.Get(context.Background())
	assert.Error(t, err)
	_, err = p.Get(context.Background())
	assert.Error(t, err)

	// The cursor advanced on the failure, so the second attempt moved on.
	require.Len(t, dialed, 2)
	assert.NotEqual(t, dialed[0], dialed[1])
}

func TestPoolPerHostCap(t *testing.T) {
	p := NewPool(testEndpoints("a"), Config{MaxPendingPerHost: 2}, nil)
	p.dial = stubDial(nil)
	defer p.Close()

	for i := 0; i < 2; i++ {
		_, err := p.Get(context.Background())
		require.NoError(t, err)
	}

	_, err := p.Get(context.Background())
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "a", exhausted.Endpoint.Host)
}

func TestPoolQuarantine(t *testing.T) {
	clock := newTestClock()
	p := NewPool(testEndpoints("a"), Config{MaxPendingPerHost: 1, now: clock.Now}, nil)
	p.dial = stubDial(nil)
	defer p.Close()

	c, err := p.Get(context.Background())
	require.NoError(t, err)
	p.MarkBad(c)
	assert.Equal(t, 0, p.Len())

	// The quarantined socket still counts against the per-host cap.
	_, err = p.Get(context.Background())
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)

	// Past the quarantine window it is reaped and the slot frees up.
	clock.advance(badQuarantine + time.Second)
	c2, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, c, c2)
}

func TestPoolSkipsUnhealthy(t *testing.T) {
	var dialed []string
	p := NewPool(testEndpoints("a"), Config{}, nil)
	p.dial = stubDial(&dialed)
	defer p.Close()

	c, err := p.Get(context.Background())
	require.NoError(t, err)
	c.unhealthy.Store(true)
	p.Release(c)

	c2, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, c, c2)
	assert.Len(t, dialed, 2)
}

func TestPoolNoEndpoints(t *testing.T) {
	p := NewPool(nil, Config{}, nil)
	defer p.Close()

	_, err := p.Get(context.Background())
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestPoolClose(t *testing.T) {
	p := NewPool(testEndpoints("a"), Config{}, nil)
	p.dial = stubDial(nil)

	c, err := p.Get(context.Background())
	require.NoError(t, err)
	p.Release(c)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "close is idempotent")
	assert.False(t, c.Healthy())

	_, err = p.Get(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
