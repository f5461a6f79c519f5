// Package dax is a client for DAX clusters. A Client multiplexes operations
// over a pool of authenticated long-lived connections and keeps per-table
// metadata (key schemas, attribute lists) in local caches.
package dax

import (
	"context"
	"net"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Config selects the cluster and tunes the client. Zero values take the
// defaults documented per field.
type Config struct {
	// EndpointURL is a single cluster endpoint, dax:// or daxs://. Exactly
	// one of EndpointURL and Endpoints must be set.
	EndpointURL string

	// Endpoints lists the cluster node endpoints explicitly.
	Endpoints []string

	// Region the cluster lives in; required, used for request signing.
	Region string

	// Credentials signs the authorize-connection frames; required.
	Credentials aws.CredentialsProvider

	ConnectTimeout time.Duration // default 1s
	RequestTimeout time.Duration // default 60s
	IdleTimeout    time.Duration // default 30s

	// MaxPendingConnectionsPerHost caps live sockets per endpoint. Default 10.
	MaxPendingConnectionsPerHost int

	// MaxConcurrentRequestsPerConnection is accepted for forward
	// compatibility; connections currently carry one request at a time.
	MaxConcurrentRequestsPerConnection int

	// SkipHostnameVerification disables TLS certificate verification on
	// daxs:// endpoints.
	SkipHostnameVerification bool

	KeySchemaCacheSize int           // default 1000 tables
	KeySchemaCacheTTL  time.Duration // default 60s
	AttrListCacheSize  int           // default 1000 lists

	// DebugLogging raises the client's log level to Debug.
	DebugLogging bool

	// Logger receives the client's structured logs. Defaults to the logrus
	// standard logger.
	Logger *logrus.Logger

	// Registerer, when set, receives the client's Prometheus collectors.
	Registerer prometheus.Registerer

	// Dial overrides the network dialer, for custom transports and tests.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Client-side cache defaults.
const (
	DefaultKeySchemaCacheSize = 1000
	DefaultKeySchemaCacheTTL  = 60 * time.Second
	DefaultAttrListCacheSize  = 1000

	DefaultMaxConcurrentRequestsPerConnection = 1000
)

func (c Config) withDefaults() Config {
	if c.KeySchemaCacheSize <= 0 {
		c.KeySchemaCacheSize = DefaultKeySchemaCacheSize
	}
	if c.KeySchemaCacheTTL <= 0 {
		c.KeySchemaCacheTTL = DefaultKeySchemaCacheTTL
	}
	if c.AttrListCacheSize <= 0 {
		c.AttrListCacheSize = DefaultAttrListCacheSize
	}
	if c.MaxConcurrentRequestsPerConnection <= 0 {
		c.MaxConcurrentRequestsPerConnection = DefaultMaxConcurrentRequestsPerConnection
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.EndpointURL == "" && len(c.Endpoints) == 0:
		return invalidConfigf("one of EndpointURL or Endpoints is required")
	case c.EndpointURL != "" && len(c.Endpoints) > 0:
		return invalidConfigf("EndpointURL and Endpoints are mutually exclusive")
	case c.Region == "":
		return invalidConfigf("Region is required")
	case c.Credentials == nil:
		return invalidConfigf("Credentials are required")
	}
	return nil
}

// endpointURLs returns the configured endpoints, whichever field carries
// them.
func (c Config) endpointURLs() []string {
	if c.EndpointURL != "" {
		return []string{c.EndpointURL}
	}
	return c.Endpoints
}
