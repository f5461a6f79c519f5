package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/datasage/amazon-dax-client/auth"
	"github.com/datasage/amazon-dax-client/cbe"
	"github.com/datasage/amazon-dax-client/protocol"
)

// handshakeMagic opens every connection, before any application frame.
const handshakeMagic = "J7yne5G"

// authInterval is the freshness window of a connection's authorization.
// Re-auth is interleaved on the request path, never on a timer.
const authInterval = 300 * time.Second

// readChunkSize is the unit of reply reads.
const readChunkSize = 1024

// Config carries the transport knobs. Zero values take the defaults below.
type Config struct {
	ConnectTimeout           time.Duration
	RequestTimeout           time.Duration
	IdleTimeout              time.Duration
	MaxPendingPerHost        int
	SkipHostnameVerification bool
	UserAgent                string
	Signer                   auth.Signer
	Logger                   *logrus.Logger

	// Dial overrides the network dialer, for custom transports and tests.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)

	now func() time.Time
}

// Transport defaults.
const (
	DefaultConnectTimeout    = time.Second
	DefaultRequestTimeout    = 60 * time.Second
	DefaultIdleTimeout       = 30 * time.Second
	DefaultMaxPendingPerHost = 10
	DefaultUserAgent         = "amazon-dax-client-go"
)

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.MaxPendingPerHost <= 0 {
		c.MaxPendingPerHost = DefaultMaxPendingPerHost
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Connection owns one socket to one cluster node. A connection carries at
// most one request at a time; callers go through the pool, which enforces
// exclusive use.
type Connection struct {
	endpoint  Endpoint
	cfg       Config
	conn      net.Conn
	sessionID string
	log       *logrus.Entry
	metrics   *poolMetrics

	mu           sync.Mutex // serializes the request/reply (and auth) cycle
	lastAuth     time.Time  // zero until the first auth frame
	requestCount uint64

	busy         atomic.Bool
	closed       atomic.Bool
	unhealthy    atomic.Bool
	lastActivity atomic.Int64 // unix nanos
}

// Dial opens a socket to the endpoint, performs the TLS handshake when the
// scheme asks for one, and emits the five-frame protocol handshake. No
// acknowledgement is expected.
func Dial(ctx context.Context, endpoint Endpoint, cfg Config) (*Connection, error) {
	cfg = cfg.withDefaults()
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	dial := cfg.Dial
	if dial == nil {
		d := &net.Dialer{Timeout: cfg.ConnectTimeout}
		dial = d.DialContext
	}
	raw, err := dial(dialCtx, "tcp", endpoint.Addr())
	if err != nil {
		return nil, err
	}
	if endpoint.TLS {
		tlsConn := tls.Client(raw, &tls.Config{
			ServerName:         endpoint.Host,
			InsecureSkipVerify: cfg.SkipHostnameVerification,
		})
		if err := tlsConn.HandshakeContext(dialCtx); err != nil {
			raw.Close()
			return nil, err
		}
		raw = tlsConn
	}

	now := cfg.now()
	c := &Connection{
		endpoint:  endpoint,
		cfg:       cfg,
		conn:      raw,
		sessionID: newSessionID(now),
		log: cfg.Logger.WithFields(logrus.Fields{
			"component": "conn",
			"endpoint":  endpoint.String(),
		}),
	}
	c.lastActivity.Store(now.UnixNano())

	if err := c.writeHandshake(); err != nil {
		raw.Close()
		return nil, err
	}
	c.log.WithField("session", c.sessionID).Debug("connection established")
	return c, nil
}

// newSessionID derives the per-connection session id: milliseconds since
// epoch scaled by 1000 plus a random component, rendered as decimal text.
func newSessionID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli()*1000+rand.Int63n(1000), 10)
}

// writeHandshake emits the five opening frames: magic, layering marker,
// session id, user-agent map, client mode.
func (c *Connection) writeHandshake() error {
	buf := cbe.AppendValue(nil, cbe.String(handshakeMagic))
	buf = cbe.AppendValue(buf, cbe.Uint(0))
	buf = cbe.AppendValue(buf, cbe.String(c.sessionID))
	buf = cbe.AppendValue(buf, cbe.Map{
		{Key: cbe.String("UserAgent"), Value: cbe.String(c.cfg.UserAgent)},
	})
	buf = cbe.AppendValue(buf, cbe.Uint(0))
	return c.write(buf, c.cfg.ConnectTimeout)
}

// RoundTrip sends one serialized request and returns the raw reply bytes.
// If the connection's authorization is stale, the auth frame is emitted
// first on the same socket, before the application request.
func (c *Connection) RoundTrip(ctx context.Context, request []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.maybeAuthorize(ctx); err != nil {
		return nil, err
	}
	if err := c.write(request, c.cfg.RequestTimeout); err != nil {
		return nil, err
	}
	reply, err := c.readReply()
	if err != nil {
		return nil, err
	}
	c.requestCount++
	c.metrics.incRequests()
	c.touch()
	return reply, nil
}

// maybeAuthorize emits an auth frame when none has been sent yet or the
// last one is at least authInterval old. Caller holds c.mu, so no other
// request can interleave between the auth frame and its follow-up.
func (c *Connection) maybeAuthorize(ctx context.Context) error {
	now := c.cfg.now()
	if !c.lastAuth.IsZero() && now.Sub(c.lastAuth) < authInterval {
		return nil
	}
	if c.cfg.Signer == nil {
		return fmt.Errorf("%w: no signer configured", ErrAuthFailed)
	}
	sig, err := c.cfg.Signer.Sign(ctx)
	if err != nil {
		c.unhealthy.Store(true)
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	frame := cbe.AppendValue(nil, cbe.Uint(protocol.ServiceID))
	frame = cbe.AppendValue(frame, cbe.Uint(protocol.MethodAuthorizeConnection))
	frame = cbe.AppendValue(frame, cbe.String(sig.AccessKeyID))
	frame = cbe.AppendValue(frame, cbe.String(sig.Signature))
	frame = cbe.AppendValue(frame, cbe.Bytes(sig.StringToSign))
	if sig.SessionToken != "" {
		frame = cbe.AppendValue(frame, cbe.String(sig.SessionToken))
	} else {
		frame = cbe.AppendValue(frame, cbe.Null{})
	}
	if c.cfg.UserAgent != "" {
		frame = cbe.AppendValue(frame, cbe.String(c.cfg.UserAgent))
	} else {
		frame = cbe.AppendValue(frame, cbe.Null{})
	}

	if err := c.write(frame, c.cfg.RequestTimeout); err != nil {
		return err
	}
	reply, err := c.readReply()
	if err != nil {
		return err
	}
	if _, err := protocol.DecodeReply(reply); err != nil {
		c.unhealthy.Store(true)
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	c.lastAuth = now
	c.metrics.incAuthFrames()
	c.log.Debug("connection authorized")
	return nil
}

func (c *Connection) write(buf []byte, timeout time.Duration) error {
	if err := c.conn.SetWriteDeadline(c.cfg.now().Add(timeout)); err != nil {
		c.unhealthy.Store(true)
		return err
	}
	if _, err := c.conn.Write(buf); err != nil {
		c.unhealthy.Store(true)
		return c.ioError(err)
	}
	return nil
}

// readReply accumulates chunked reads until the buffer holds the two
// top-level values of a reply (error descriptor and body); the codec's
// self-delimitation decides the boundary.
func (c *Connection) readReply() ([]byte, error) {
	var buf []byte
	chunk := make([]byte, readChunkSize)
	for {
		if err := c.conn.SetReadDeadline(c.cfg.now().Add(c.cfg.RequestTimeout)); err != nil {
			c.unhealthy.Store(true)
			return nil, err
		}
		n, readErr := c.conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if n > 0 {
			complete, err := replyComplete(buf)
			if err != nil {
				c.unhealthy.Store(true)
				return nil, err
			}
			if complete {
				return buf, nil
			}
		}
		if readErr != nil {
			c.unhealthy.Store(true)
			return nil, c.ioError(readErr)
		}
	}
}

// replyComplete reports whether buf holds at least two complete top-level
// values. Truncation means keep reading; anything else is a codec error.
func replyComplete(buf []byte) (bool, error) {
	_, rest, err := cbe.DecodeValue(buf)
	if err == nil {
		_, _, err = cbe.DecodeValue(rest)
	}
	if err == nil {
		return true, nil
	}
	if errors.Is(err, cbe.ErrUnexpectedEOF) {
		return false, nil
	}
	return false, err
}

func (c *Connection) ioError(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func (c *Connection) touch() {
	c.lastActivity.Store(c.cfg.now().UnixNano())
}

// Endpoint returns the node this connection is attached to.
func (c *Connection) Endpoint() Endpoint { return c.endpoint }

// SessionID returns the per-connection session identifier.
func (c *Connection) SessionID() string { return c.sessionID }

// Healthy reports whether the connection is usable: open and with no I/O
// failure recorded.
func (c *Connection) Healthy() bool {
	return !c.closed.Load() && !c.unhealthy.Load()
}

// Idle reports whether the connection has been unused longer than the idle
// timeout.
func (c *Connection) Idle() bool {
	return c.cfg.now().Sub(time.Unix(0, c.lastActivity.Load())) > c.cfg.IdleTimeout
}

// tryAcquire claims exclusive use of the connection.
func (c *Connection) tryAcquire() bool {
	return c.busy.CompareAndSwap(false, true)
}

func (c *Connection) release() {
	c.busy.Store(false)
}

// Close shuts the socket down. It is idempotent; subsequent round trips
// fail with ErrClosed.
func (c *Connection) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}
