package cbe

import (
	"encoding/binary"
	"math"
)

// Major categories of the encoding.
const (
	majorUint   = 0
	majorNegInt = 1
	majorBytes  = 2
	majorText   = 3
	majorSeq    = 4
	majorMap    = 5
	majorTag    = 6
	majorSimple = 7
)

// Simple values within major category 7.
const (
	simpleFalse   = 20
	simpleTrue    = 21
	simpleNull    = 22
	simpleFloat32 = 26
	simpleFloat64 = 27
)

// Additional-info thresholds of the head byte.
const (
	headImmediateMax = 23
	headUint8        = 24
	headUint16       = 25
	headUint32       = 26
	headUint64       = 27
)

// appendHead appends the head of a value: the major category and the
// shortest of the five forms that fits n.
func appendHead(dst []byte, major byte, n uint64) []byte {
	switch {
	case n <= headImmediateMax:
		return append(dst, major<<5|byte(n))
	case n <= math.MaxUint8:
		return append(dst, major<<5|headUint8, byte(n))
	case n <= math.MaxUint16:
		return append(dst, major<<5|headUint16, byte(n>>8), byte(n))
	case n <= math.MaxUint32:
		dst = append(dst, major<<5|headUint32)
		return binary.BigEndian.AppendUint32(dst, uint32(n))
	default:
		dst = append(dst, major<<5|headUint64)
		return binary.BigEndian.AppendUint64(dst, n)
	}
}

// AppendValue appends the encoding of v to dst and returns the extended
// buffer. Encoding is total: every Value has an encoding. A nil Value
// encodes as null.
func AppendValue(dst []byte, v Value) []byte {
	switch val := v.(type) {
	case Uint:
		return appendHead(dst, majorUint, uint64(val))
	case Int:
		if val >= 0 {
			return appendHead(dst, majorUint, uint64(val))
		}
		return appendHead(dst, majorNegInt, uint64(-(val + 1)))
	case Float:
		dst = append(dst, majorSimple<<5|simpleFloat64)
		return binary.BigEndian.AppendUint64(dst, math.Float64bits(float64(val)))
	case Bytes:
		dst = appendHead(dst, majorBytes, uint64(len(val)))
		return append(dst, val...)
	case String:
		dst = appendHead(dst, majorText, uint64(len(val)))
		return append(dst, val...)
	case Seq:
		dst = appendHead(dst, majorSeq, uint64(len(val)))
		for _, elem := range val {
			dst = AppendValue(dst, elem)
		}
		return dst
	case Map:
		dst = appendHead(dst, majorMap, uint64(len(val)))
		for _, e := range val {
			dst = AppendValue(dst, e.Key)
			dst = AppendValue(dst, e.Value)
		}
		return dst
	case Bool:
		if val {
			return append(dst, majorSimple<<5|simpleTrue)
		}
		return append(dst, majorSimple<<5|simpleFalse)
	case Null:
		return append(dst, majorSimple<<5|simpleNull)
	case Tagged:
		dst = appendHead(dst, majorTag, val.Tag)
		return AppendValue(dst, val.Inner)
	}
	return append(dst, majorSimple<<5|simpleNull)
}

// EncodeToBytes returns the encoding of v.
func EncodeToBytes(v Value) []byte {
	return AppendValue(nil, v)
}
