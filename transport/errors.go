package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEndpoint rejects endpoint URLs outside the dax/daxs schemes.
	ErrInvalidEndpoint = errors.New("transport: invalid endpoint")

	// ErrClosed reports use of a closed connection or pool.
	ErrClosed = errors.New("transport: closed")

	// ErrNoEndpoints reports a pool with no endpoints configured.
	ErrNoEndpoints = errors.New("transport: no endpoints configured")

	// ErrTimeout reports an I/O deadline hit; the connection's wire state
	// is undefined afterwards and it is marked unhealthy.
	ErrTimeout = errors.New("transport: request timed out")

	// ErrAuthFailed reports a signer failure or a server-rejected auth
	// frame.
	ErrAuthFailed = errors.New("transport: connection authorization failed")
)

// ExhaustedError reports the per-endpoint connection cap being hit.
type ExhaustedError struct {
	Endpoint Endpoint
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("transport: connection limit reached for %s", e.Endpoint)
}
