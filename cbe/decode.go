package cbe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

var (
	// ErrMalformed is the base error for any decode failure.
	ErrMalformed = errors.New("cbe: malformed encoding")

	// ErrUnexpectedEOF reports input that is a prefix of a valid encoding.
	// It matches ErrMalformed under errors.Is, but callers that accumulate
	// a stream can test for it specifically to keep reading.
	ErrUnexpectedEOF = fmt.Errorf("%w: unexpected end of input", ErrMalformed)
)

// DecodeValue decodes one value from the front of b and returns it together
// with the unconsumed remainder. Decoding is greedy: framing protocols that
// concatenate several top-level values call DecodeValue repeatedly on the
// remainder.
func DecodeValue(b []byte) (Value, []byte, error) {
	return decodeValue(b)
}

func decodeValue(b []byte) (Value, []byte, error) {
	if len(b) == 0 {
		return nil, b, ErrUnexpectedEOF
	}
	major, info := b[0]>>5, b[0]&0x1f
	if major == majorSimple {
		return decodeSimple(info, b[1:])
	}
	n, rest, err := decodeHeadArg(info, b[1:])
	if err != nil {
		return nil, b, err
	}
	switch major {
	case majorUint:
		return Uint(n), rest, nil
	case majorNegInt:
		if n > math.MaxInt64 {
			return nil, b, fmt.Errorf("%w: negative integer out of range", ErrMalformed)
		}
		return Int(-1 - int64(n)), rest, nil
	case majorBytes:
		data, rest, err := take(rest, n)
		if err != nil {
			return nil, b, err
		}
		return Bytes(append([]byte(nil), data...)), rest, nil
	case majorText:
		data, rest, err := take(rest, n)
		if err != nil {
			return nil, b, err
		}
		if !utf8.Valid(data) {
			return nil, b, fmt.Errorf("%w: text string is not valid UTF-8", ErrMalformed)
		}
		return String(data), rest, nil
	case majorSeq:
		if n > uint64(len(rest)) {
			return nil, b, ErrUnexpectedEOF
		}
		seq := make(Seq, 0, n)
		for i := uint64(0); i < n; i++ {
			var elem Value
			elem, rest, err = decodeValue(rest)
			if err != nil {
				return nil, b, err
			}
			seq = append(seq, elem)
		}
		return seq, rest, nil
	case majorMap:
		if n > uint64(len(rest)) {
			return nil, b, ErrUnexpectedEOF
		}
		m := make(Map, 0, n)
		for i := uint64(0); i < n; i++ {
			var key, val Value
			key, rest, err = decodeValue(rest)
			if err != nil {
				return nil, b, err
			}
			val, rest, err = decodeValue(rest)
			if err != nil {
				return nil, b, err
			}
			m = append(m, Entry{Key: key, Value: val})
		}
		return m, rest, nil
	default: // majorTag
		inner, rest, err := decodeValue(rest)
		if err != nil {
			return nil, b, err
		}
		return Tagged{Tag: n, Inner: inner}, rest, nil
	}
}

// decodeHeadArg reads the length/value argument that follows a head byte
// with the given additional info.
func decodeHeadArg(info byte, b []byte) (uint64, []byte, error) {
	switch {
	case info <= headImmediateMax:
		return uint64(info), b, nil
	case info == headUint8:
		if len(b) < 1 {
			return 0, b, ErrUnexpectedEOF
		}
		return uint64(b[0]), b[1:], nil
	case info == headUint16:
		if len(b) < 2 {
			return 0, b, ErrUnexpectedEOF
		}
		return uint64(binary.BigEndian.Uint16(b)), b[2:], nil
	case info == headUint32:
		if len(b) < 4 {
			return 0, b, ErrUnexpectedEOF
		}
		return uint64(binary.BigEndian.Uint32(b)), b[4:], nil
	case info == headUint64:
		if len(b) < 8 {
			return 0, b, ErrUnexpectedEOF
		}
		return binary.BigEndian.Uint64(b), b[8:], nil
	default:
		// 28-30 are reserved; 31 (indefinite length) is not part of
		// this dialect.
		return 0, b, fmt.Errorf("%w: reserved head form %d", ErrMalformed, info)
	}
}

func decodeSimple(info byte, b []byte) (Value, []byte, error) {
	switch info {
	case simpleFalse:
		return Bool(false), b, nil
	case simpleTrue:
		return Bool(true), b, nil
	case simpleNull:
		return Null{}, b, nil
	case simpleFloat32:
		if len(b) < 4 {
			return nil, b, ErrUnexpectedEOF
		}
		f := math.Float32frombits(binary.BigEndian.Uint32(b))
		return Float(f), b[4:], nil
	case simpleFloat64:
		if len(b) < 8 {
			return nil, b, ErrUnexpectedEOF
		}
		f := math.Float64frombits(binary.BigEndian.Uint64(b))
		return Float(f), b[8:], nil
	default:
		return nil, b, fmt.Errorf("%w: reserved simple value %d", ErrMalformed, info)
	}
}

func take(b []byte, n uint64) ([]byte, []byte, error) {
	if n > uint64(len(b)) {
		return nil, b, ErrUnexpectedEOF
	}
	return b[:n], b[n:], nil
}
