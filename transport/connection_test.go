package transport

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasage/amazon-dax-client/auth"
	"github.com/datasage/amazon-dax-client/cbe"
	"github.com/datasage/amazon-dax-client/protocol"
)

type stubSigner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubSigner) Sign(context.Context) (*auth.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &auth.Signature{
		AccessKeyID:  "AKID",
		Signature:    "deadbeef",
		StringToSign: []byte("string-to-sign"),
	}, nil
}

func (s *stubSigner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakePeer plays the server end of a net.Pipe, decoding the client's value
// stream.
type fakePeer struct {
	t    *testing.T
	conn net.Conn
	buf  []byte

	mu         sync.Mutex
	authFrames int
}

func (p *fakePeer) readValue() cbe.Value {
	for {
		v, rest, err := cbe.DecodeValue(p.buf)
		if err == nil {
			p.buf = rest
			return v
		}
		require.ErrorIs(p.t, err, cbe.ErrUnexpectedEOF)
		chunk := make([]byte, 4096)
		n, err := p.conn.Read(chunk)
		require.NoError(p.t, err)
		p.buf = append(p.buf, chunk[:n]...)
	}
}

func (p *fakePeer) readHandshake() []cbe.Value {
	values := make([]cbe.Value, 5)
	for i := range values {
		values[i] = p.readValue()
	}
	return values
}

func (p *fakePeer) writeReply(desc cbe.Seq, body cbe.Value) {
	buf := cbe.AppendValue(nil, desc)
	buf = cbe.AppendValue(buf, body)
	_, err := p.conn.Write(buf)
	require.NoError(p.t, err)
}

// serveOne answers the next frame. Auth frames are acknowledged and counted,
// then the following application request is answered with body.
func (p *fakePeer) serveOne(body cbe.Value) {
	for {
		svc := p.readValue()
		require.Equal(p.t, cbe.Uint(protocol.ServiceID), svc)
		method := p.readValue().(cbe.Uint)
		if uint64(method) == protocol.MethodAuthorizeConnection {
			// access key, signature, string-to-sign, token, user agent
			for i := 0; i < 5; i++ {
				p.readValue()
			}
			p.mu.Lock()
			p.authFrames++
			p.mu.Unlock()
			p.writeReply(cbe.Seq{}, cbe.Null{})
			continue
		}
		p.readValue() // params
		p.writeReply(cbe.Seq{}, body)
		return
	}
}

func (p *fakePeer) authCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authFrames
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// dialFake dials a Connection whose peer is the returned fakePeer.
func dialFake(t *testing.T, cfg Config) (*Connection, *fakePeer) {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	peer := &fakePeer{t: t, conn: serverEnd}
	cfg.Dial = func(context.Context, string, string) (net.Conn, error) {
		return clientEnd, nil
	}

	handshake := make(chan []cbe.Value, 1)
	go func() {
		handshake <- peer.readHandshake()
	}()

	conn, err := Dial(context.Background(), Endpoint{Host: "node", Port: DefaultPort}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	select {
	case values := <-handshake:
		require.Len(t, values, 5)
	case <-time.After(5 * time.Second):
		t.Fatal("handshake not received")
	}
	return conn, peer
}

func TestDialHandshake(t *testing.T) {
	clientEnd, serverEnd := net.Pipe()
	peer := &fakePeer{t: t, conn: serverEnd}
	cfg := Config{
		UserAgent: "test-agent/1.0",
		Dial: func(context.Context, string, string) (net.Conn, error) {
			return clientEnd, nil
		},
	}

	type result struct {
		values []cbe.Value
	}
	done := make(chan result, 1)
	go func() {
		done <- result{values: peer.readHandshake()}
	}()

	conn, err := Dial(context.Background(), Endpoint{Host: "node", Port: DefaultPort}, cfg)
	require.NoError(t, err)
	defer conn.Close()

	res := <-done
	require.Len(t, res.values, 5)

	// Frame 1: the magic string.
	assert.Equal(t, cbe.String("J7yne5G"), res.values[0])
	assert.Len(t, cbe.EncodeToBytes(res.values[0]), 8)

	// Frame 2: layering marker, a single byte.
	assert.Equal(t, cbe.Uint(0), res.values[1])

	// Frame 3: the session id, decimal text, stable for the connection.
	session, ok := res.values[2].(cbe.String)
	require.True(t, ok)
	assert.Equal(t, conn.SessionID(), string(session))
	n, err := strconv.ParseInt(string(session), 10, 64)
	require.NoError(t, err)
	assert.Positive(t, n)
	assert.LessOrEqual(t, len(cbe.EncodeToBytes(res.values[2])), 21)

	// Frame 4: the user-agent map.
	m, ok := res.values[3].(cbe.Map)
	require.True(t, ok)
	ua, ok := m.Get("UserAgent")
	require.True(t, ok)
	assert.Equal(t, cbe.String("test-agent/1.0"), ua)
	assert.GreaterOrEqual(t, len(cbe.EncodeToBytes(res.values[3])), 18)

	// Frame 5: client mode, a single byte.
	assert.Equal(t, cbe.Uint(0), res.values[4])
}

func TestRoundTripAuthorizesFirst(t *testing.T) {
	signer := &stubSigner{}
	conn, peer := dialFake(t, Config{Signer: signer})

	go peer.serveOne(cbe.Map{{Key: cbe.String("Item"), Value: cbe.Null{}}})

	req, err := protocol.Serialize(protocol.OpGetItem, map[string]any{
		"TableName": "T",
		"Key":       map[string]any{"id": map[string]any{"S": "x"}},
	})
	require.NoError(t, err)

	reply, err := conn.RoundTrip(context.Background(), req)
	require.NoError(t, err)
	body, err := protocol.DecodeReply(reply)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Item": nil}, body)

	assert.Equal(t, 1, peer.authCount(), "auth frame precedes the first request")
	assert.Equal(t, 1, signer.count())
}

func TestReauthCadence(t *testing.T) {
	clock := newTestClock()
	signer := &stubSigner{}
	conn, peer := dialFake(t, Config{Signer: signer, now: clock.Now})

	do := func() {
		go peer.serveOne(cbe.Null{})
		req, err := protocol.Serialize(protocol.OpDescribeTable, map[string]any{"TableName": "T"})
		require.NoError(t, err)
		_, err = conn.RoundTrip(context.Background(), req)
		require.NoError(t, err)
	}

	do()
	assert.Equal(t, 1, peer.authCount())

	// 299 s after the first auth: still fresh.
	clock.advance(299 * time.Second)
	do()
	assert.Equal(t, 1, peer.authCount())

	// 301 s after the first auth: stale, re-auth precedes the request.
	clock.advance(2 * time.Second)
	do()
	assert.Equal(t, 2, peer.authCount())
}

func TestRoundTripSignerFailure(t *testing.T) {
	signer := &stubSigner{err: assert.AnError}
	conn, _ := dialFake(t, Config{Signer: signer})

	_, err := conn.RoundTrip(context.Background(), []byte{0x01})
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.False(t, conn.Healthy())
}

func TestRoundTripAuthRejected(t *testing.T) {
	signer := &stubSigner{}
	conn, peer := dialFake(t, Config{Signer: signer})

	go func() {
		// Consume the auth frame and reject it.
		for i := 0; i < 7; i++ {
			peer.readValue()
		}
		peer.writeReply(cbe.Seq{cbe.Uint(23), cbe.String("access denied")}, cbe.Null{})
	}()

	_, err := conn.RoundTrip(context.Background(), []byte{0x01})
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.False(t, conn.Healthy())
}

func TestRoundTripTimeout(t *testing.T) {
	signer := &stubSigner{}
	conn, peer := dialFake(t, Config{Signer: signer, RequestTimeout: 100 * time.Millisecond})

	go func() {
		// Answer the auth frame, swallow the request, never reply.
		for i := 0; i < 7; i++ {
			peer.readValue()
		}
		peer.writeReply(cbe.Seq{}, cbe.Null{})
		peer.readValue()
		peer.readValue()
		peer.readValue()
	}()

	req, err := protocol.Serialize(protocol.OpScan, map[string]any{"TableName": "T"})
	require.NoError(t, err)
	_, err = conn.RoundTrip(context.Background(), req)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, conn.Healthy(), "a timed-out connection has undefined wire state")
}

func TestRoundTripAfterClose(t *testing.T) {
	signer := &stubSigner{}
	conn, _ := dialFake(t, Config{Signer: signer})

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close(), "close is idempotent")

	_, err := conn.RoundTrip(context.Background(), []byte{0x01})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestIdle(t *testing.T) {
	clock := newTestClock()
	signer := &stubSigner{}
	conn, _ := dialFake(t, Config{Signer: signer, IdleTimeout: time.Minute, now: clock.Now})

	assert.False(t, conn.Idle())
	clock.advance(61 * time.Second)
	assert.True(t, conn.Idle())
}
