// Package cbe implements the compact binary encoding used on the wire
// between the client and a DAX cluster node.
//
// The encoding is a CBOR-compatible dialect: every value is self-delimiting,
// with one initial byte carrying the major category and either an immediate
// small value or a 1, 2, 4 or 8 byte big-endian length. The package converts
// between byte strings and the Value union below; it never interprets tag
// numbers, that is left to the callers.
package cbe

// Value is the domain of the codec. It is a closed union: exactly the types
// in this file implement it.
type Value interface {
	isValue()
}

// Uint is a non-negative integer (major category 0).
type Uint uint64

// Int is a negative integer (major category 1). Non-negative Int values are
// valid input to the encoder and come out as Uint on the wire.
type Int int64

// Float is a 64-bit floating point value.
type Float float64

// Bytes is an opaque byte string.
type Bytes []byte

// String is a UTF-8 text string.
type String string

// Seq is a definite-length sequence of values.
type Seq []Value

// Map is a definite-length mapping. Entry order is whatever the producer
// chose; it is preserved by the codec and ignored by Equal.
type Map []Entry

// Entry is a single key/value pair of a Map.
type Entry struct {
	Key   Value
	Value Value
}

// Bool is a boolean value.
type Bool bool

// Null is the null value.
type Null struct{}

// Tagged wraps an inner value with a numeric tag (major category 6).
type Tagged struct {
	Tag   uint64
	Inner Value
}

func (Uint) isValue()   {}
func (Int) isValue()    {}
func (Float) isValue()  {}
func (Bytes) isValue()  {}
func (String) isValue() {}
func (Seq) isValue()    {}
func (Map) isValue()    {}
func (Bool) isValue()   {}
func (Null) isValue()   {}
func (Tagged) isValue() {}

// Get returns the value stored under the given text key.
func (m Map) Get(key string) (Value, bool) {
	for _, e := range m {
		if s, ok := e.Key.(String); ok && string(s) == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Equal reports whether two values are equal. Map entry order is irrelevant;
// all other comparisons are structural.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Uint:
		bv, ok := b.(Uint)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Bytes:
		bv, ok := b.(Bytes)
		return ok && string(av) == string(bv)
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Seq:
		bv, ok := b.(Seq)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Map:
		bv, ok := b.(Map)
		if !ok || len(av) != len(bv) {
			return false
		}
		used := make([]bool, len(bv))
	outer:
		for _, ae := range av {
			for i, be := range bv {
				if !used[i] && Equal(ae.Key, be.Key) && Equal(ae.Value, be.Value) {
					used[i] = true
					continue outer
				}
			}
			return false
		}
		return true
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Null:
		_, ok := b.(Null)
		return ok
	case Tagged:
		bv, ok := b.(Tagged)
		return ok && av.Tag == bv.Tag && Equal(av.Inner, bv.Inner)
	}
	return a == nil && b == nil
}
