package protocol

import (
	"github.com/datasage/amazon-dax-client/cbe"
	"github.com/datasage/amazon-dax-client/document"
)

// DecodeReply decodes a complete reply buffer: the error descriptor followed
// by the method-specific body. A non-zero status in the descriptor surfaces
// as *ServerError without the body being decoded.
func DecodeReply(buf []byte) (any, error) {
	descVal, rest, err := cbe.DecodeValue(buf)
	if err != nil {
		return nil, err
	}
	desc, ok := descVal.(cbe.Seq)
	if !ok {
		return nil, &MalformedReplyError{Reason: "error descriptor is not a sequence"}
	}
	if serr := serverError(desc); serr != nil {
		return nil, serr
	}
	bodyVal, rest, err := cbe.DecodeValue(rest)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, &MalformedReplyError{Reason: "trailing bytes after body"}
	}
	return document.Decode(bodyVal), nil
}

// serverError interprets a non-empty error descriptor: status code, message,
// then an optional request id.
func serverError(desc cbe.Seq) *ServerError {
	if len(desc) == 0 {
		return nil
	}
	status, ok := descStatus(desc[0])
	if !ok || status == 0 {
		return nil
	}
	serr := &ServerError{Status: status}
	if len(desc) > 1 {
		if msg, ok := desc[1].(cbe.String); ok {
			serr.Message = string(msg)
		}
	}
	if len(desc) > 2 {
		if id, ok := desc[2].(cbe.String); ok {
			serr.RequestID = string(id)
		}
	}
	return serr
}

func descStatus(v cbe.Value) (int, bool) {
	switch n := v.(type) {
	case cbe.Uint:
		return int(n), true
	case cbe.Int:
		return int(n), true
	default:
		return 0, false
	}
}
