package protocol

import "fmt"

// ServerError is a non-zero status in a reply's error descriptor.
type ServerError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *ServerError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("protocol: server error %d: %s (request id %s)", e.Status, e.Message, e.RequestID)
	}
	return fmt.Sprintf("protocol: server error %d: %s", e.Status, e.Message)
}

// MissingKeyError reports a key attribute required by the table's key
// schema but absent from the request.
type MissingKeyError struct {
	Attribute string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("protocol: key is missing attribute %q", e.Attribute)
}

// ExtraKeyError reports a key attribute not part of the table's key schema.
type ExtraKeyError struct {
	Attribute string
}

func (e *ExtraKeyError) Error() string {
	return fmt.Sprintf("protocol: key has extra attribute %q", e.Attribute)
}

// MissingFieldError reports an absent required top-level parameter.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("protocol: required field %q is missing", e.Field)
}

// UnsupportedOperationError reports an operation name outside the method
// table.
type UnsupportedOperationError struct {
	Op string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("protocol: unsupported operation %q", e.Op)
}

// MalformedReplyError reports a reply stream that decoded but does not have
// the expected shape.
type MalformedReplyError struct {
	Reason string
}

func (e *MalformedReplyError) Error() string {
	return "protocol: malformed reply: " + e.Reason
}
