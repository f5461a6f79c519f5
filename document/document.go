// Package document translates between the user-facing attribute-value model
// and the wire codec's value domain.
//
// Attribute data is treated as opaque nested key/value structure with two
// exceptions: set-typed attributes (SS/NS/BS) map to dedicated tagged
// encodings, and N scalars are carried as text in the attribute model but as
// numbers on the wire.
package document

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/datasage/amazon-dax-client/cbe"
)

// Wire tags for set-typed attribute values. 3324 tags a document path
// ordinal and is only ever received.
const (
	TagStringSet           = 3321
	TagNumberSet           = 3322
	TagBinarySet           = 3323
	TagDocumentPathOrdinal = 3324
)

// DocumentPathOrdinalKey is the key under which a received tag-3324 payload
// surfaces in decoded output. Callers treat it as structural.
const DocumentPathOrdinalKey = "_document_path_ordinal"

// Encode converts attribute-shaped Go data into a wire value.
//
// Maps recurse entry-wise with stable (sorted) key order. A single-entry map
// keyed SS, NS or BS becomes a tagged sequence of scalars; a single-entry
// map keyed N with a text value becomes a number. Everything else converts
// structurally.
func Encode(v any) (cbe.Value, error) {
	switch val := v.(type) {
	case nil:
		return cbe.Null{}, nil
	case cbe.Value:
		return val, nil
	case bool:
		return cbe.Bool(val), nil
	case string:
		return cbe.String(val), nil
	case []byte:
		return cbe.Bytes(val), nil
	case int:
		return encodeInt64(int64(val)), nil
	case int8:
		return encodeInt64(int64(val)), nil
	case int16:
		return encodeInt64(int64(val)), nil
	case int32:
		return encodeInt64(int64(val)), nil
	case int64:
		return encodeInt64(val), nil
	case uint:
		return cbe.Uint(val), nil
	case uint8:
		return cbe.Uint(val), nil
	case uint16:
		return cbe.Uint(val), nil
	case uint32:
		return cbe.Uint(val), nil
	case uint64:
		return cbe.Uint(val), nil
	case float32:
		return cbe.Float(val), nil
	case float64:
		return cbe.Float(val), nil
	case []string:
		seq := make(cbe.Seq, len(val))
		for i, s := range val {
			seq[i] = cbe.String(s)
		}
		return seq, nil
	case [][]byte:
		seq := make(cbe.Seq, len(val))
		for i, b := range val {
			seq[i] = cbe.Bytes(b)
		}
		return seq, nil
	case []any:
		seq := make(cbe.Seq, len(val))
		for i, elem := range val {
			enc, err := Encode(elem)
			if err != nil {
				return nil, err
			}
			seq[i] = enc
		}
		return seq, nil
	case map[string]any:
		return encodeMap(val)
	default:
		return nil, fmt.Errorf("document: cannot encode value of type %T", v)
	}
}

func encodeInt64(v int64) cbe.Value {
	if v >= 0 {
		return cbe.Uint(v)
	}
	return cbe.Int(v)
}

func encodeMap(m map[string]any) (cbe.Value, error) {
	if len(m) == 1 {
		for key, inner := range m {
			switch key {
			case "SS":
				return encodeSet(TagStringSet, inner, encodeStringScalar)
			case "NS":
				return encodeSet(TagNumberSet, inner, encodeNumberScalar)
			case "BS":
				return encodeSet(TagBinarySet, inner, encodeBinaryScalar)
			case "N":
				if text, ok := inner.(string); ok {
					return cbe.Map{{Key: cbe.String("N"), Value: encodeNumber(text)}}, nil
				}
			}
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(cbe.Map, 0, len(m))
	for _, k := range keys {
		enc, err := Encode(m[k])
		if err != nil {
			return nil, err
		}
		out = append(out, cbe.Entry{Key: cbe.String(k), Value: enc})
	}
	return out, nil
}

// encodeSet wraps the elements of a set attribute in the tagged form. A set
// with zero elements is still a tagged empty sequence.
func encodeSet(tag uint64, v any, scalar func(any) (cbe.Value, error)) (cbe.Value, error) {
	elems, err := setElements(v)
	if err != nil {
		return nil, err
	}
	seq := make(cbe.Seq, len(elems))
	for i, elem := range elems {
		enc, err := scalar(elem)
		if err != nil {
			return nil, err
		}
		seq[i] = enc
	}
	return cbe.Tagged{Tag: tag, Inner: seq}, nil
}

func setElements(v any) ([]any, error) {
	switch elems := v.(type) {
	case []any:
		return elems, nil
	case []string:
		out := make([]any, len(elems))
		for i, s := range elems {
			out[i] = s
		}
		return out, nil
	case [][]byte:
		out := make([]any, len(elems))
		for i, b := range elems {
			out[i] = b
		}
		return out, nil
	default:
		return nil, fmt.Errorf("document: set attribute holds %T, want a list", v)
	}
}

func encodeStringScalar(v any) (cbe.Value, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("document: string set element is %T", v)
	}
	return cbe.String(s), nil
}

func encodeNumberScalar(v any) (cbe.Value, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("document: number set element is %T", v)
	}
	return encodeNumber(s), nil
}

func encodeBinaryScalar(v any) (cbe.Value, error) {
	switch b := v.(type) {
	case []byte:
		return cbe.Bytes(b), nil
	case string:
		return cbe.Bytes(b), nil
	default:
		return nil, fmt.Errorf("document: binary set element is %T", v)
	}
}

// encodeNumber converts an N scalar. Text without a decimal point or
// exponent becomes an integer, otherwise a float; non-numeric text is
// retained as text.
func encodeNumber(text string) cbe.Value {
	if !strings.ContainsAny(text, ".eE") {
		if u, err := strconv.ParseUint(text, 10, 64); err == nil {
			return cbe.Uint(u)
		}
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return cbe.Int(i)
		}
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return cbe.Float(f)
	}
	return cbe.String(text)
}

// Decode converts a wire value back into attribute-shaped Go data.
func Decode(v cbe.Value) any {
	switch val := v.(type) {
	case cbe.Uint:
		return uint64(val)
	case cbe.Int:
		return int64(val)
	case cbe.Float:
		return float64(val)
	case cbe.Bytes:
		return []byte(val)
	case cbe.String:
		return string(val)
	case cbe.Bool:
		return bool(val)
	case cbe.Null:
		return nil
	case cbe.Seq:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Decode(elem)
		}
		return out
	case cbe.Map:
		return decodeMap(val)
	case cbe.Tagged:
		return decodeTagged(val)
	}
	return nil
}

func decodeMap(m cbe.Map) any {
	out := make(map[string]any, len(m))
	for _, e := range m {
		key := fmt.Sprint(Decode(e.Key))
		if len(m) == 1 && key == "N" {
			out[key] = renderNumber(e.Value)
			return out
		}
		out[key] = Decode(e.Value)
	}
	return out
}

func decodeTagged(t cbe.Tagged) any {
	switch t.Tag {
	case TagStringSet, TagBinarySet:
		key := "SS"
		if t.Tag == TagBinarySet {
			key = "BS"
		}
		seq, ok := t.Inner.(cbe.Seq)
		if !ok {
			return map[string]any{key: Decode(t.Inner)}
		}
		elems := make([]any, len(seq))
		for i, elem := range seq {
			elems[i] = Decode(elem)
		}
		return map[string]any{key: elems}
	case TagNumberSet:
		seq, ok := t.Inner.(cbe.Seq)
		if !ok {
			return map[string]any{"NS": Decode(t.Inner)}
		}
		elems := make([]any, len(seq))
		for i, elem := range seq {
			elems[i] = renderNumber(elem)
		}
		return map[string]any{"NS": elems}
	case TagDocumentPathOrdinal:
		return map[string]any{DocumentPathOrdinalKey: Decode(t.Inner)}
	default:
		// Unknown tags pass through as their payload; the tag number is
		// not preserved.
		return Decode(t.Inner)
	}
}

// renderNumber turns a wire number back into N's decimal-text form.
func renderNumber(v cbe.Value) any {
	switch n := v.(type) {
	case cbe.Uint:
		return strconv.FormatUint(uint64(n), 10)
	case cbe.Int:
		return strconv.FormatInt(int64(n), 10)
	case cbe.Float:
		return strconv.FormatFloat(float64(n), 'g', -1, 64)
	default:
		return Decode(v)
	}
}
