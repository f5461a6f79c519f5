package dax

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("dax: client closed")

// ConfigError reports a configuration the client refuses to start with.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "dax: invalid configuration: " + e.Reason
}

func invalidConfigf(format string, args ...any) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// RequestError wraps a transport or codec failure of a single operation. The
// connection the failure happened on has been taken out of circulation.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("dax: %s failed: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }
