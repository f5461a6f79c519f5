// Package transport owns the sockets: endpoint addressing, the per-node
// connection with its handshake and periodic in-band authentication, and the
// pool that multiplexes request traffic across connections.
package transport

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Default ports for the two schemes.
const (
	DefaultPort    = 8111
	DefaultTLSPort = 9111
)

// Endpoint addresses one cluster node.
type Endpoint struct {
	Host string
	Port int
	TLS  bool
}

// ParseEndpoint parses a dax:// (plaintext) or daxs:// (TLS) URL. Missing
// ports take the scheme default.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, raw)
	}
	var ep Endpoint
	switch u.Scheme {
	case "dax":
		ep.Port = DefaultPort
	case "daxs":
		ep.TLS = true
		ep.Port = DefaultTLSPort
	default:
		return Endpoint{}, fmt.Errorf("%w: scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	ep.Host = u.Hostname()
	if ep.Host == "" {
		return Endpoint{}, fmt.Errorf("%w: missing host in %q", ErrInvalidEndpoint, raw)
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return Endpoint{}, fmt.Errorf("%w: port %q", ErrInvalidEndpoint, p)
		}
		ep.Port = port
	}
	return ep, nil
}

// ParseEndpoints parses a list of endpoint URLs.
func ParseEndpoints(raw []string) ([]Endpoint, error) {
	eps := make([]Endpoint, 0, len(raw))
	for _, r := range raw {
		ep, err := ParseEndpoint(r)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

// Addr returns the host:port dial target.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	scheme := "dax"
	if e.TLS {
		scheme = "daxs"
	}
	return scheme + "://" + e.Addr()
}
