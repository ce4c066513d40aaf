package ffi

import (
	"fmt"
	"unsafe"
)

// OKResponse is the managed spelling of the engine's acknowledgement marker.
const OKResponse = "OK"

// DecodeError reports a response that cannot be parsed. It indicates version
// skew between the binding and the engine and is not recoverable locally.
type DecodeError struct {
	Msg string
}

func (e *DecodeError) Error() string {
	return "ffi: " + e.Msg
}

// Decode walks the tagged record at h and reconstructs an equivalent managed
// value. The result is a fully-owned copy: the engine may free the response
// memory as soon as Decode returns, and no further native access is needed.
//
// Managed shapes: nil, int64, float64, bool, string (both string spellings
// and the acknowledgement marker), []any, map[string]any, map[string]struct{}.
// Zero-length composites decode to empty containers, never nil.
func Decode(h unsafe.Pointer) (any, error) {
	if h == nil {
		return nil, nil
	}
	return decodeValue((*Value)(h))
}

func decodeValue(v *Value) (any, error) {
	switch v.Kind {
	case KindNil:
		return nil, nil
	case KindInt:
		return v.Int(), nil
	case KindFloat:
		return v.Float(), nil
	case KindBool:
		return v.Bool(), nil
	case KindBulkString, KindSimpleString:
		return decodeString(v), nil
	case KindOkay:
		return OKResponse, nil
	case KindArray:
		return decodeSequence(v.Pointer(), int(v.Len))
	case KindMap:
		return decodeMap(v)
	case KindSet:
		return decodeSet(v)
	default:
		return nil, &DecodeError{Msg: fmt.Sprintf("unknown response tag %d", uint32(v.Kind))}
	}
}

func decodeString(v *Value) string {
	p := v.Pointer()
	if p == nil || v.Len <= 0 {
		return ""
	}
	// Copies the bytes; embedded NULs survive.
	return string(unsafe.Slice((*byte)(p), v.Len))
}

// decodeSequence reads n consecutive tagged records starting at base.
func decodeSequence(base unsafe.Pointer, n int) ([]any, error) {
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		elem := (*Value)(unsafe.Add(base, uintptr(i)*ValueSize))
		decoded, err := decodeValue(elem)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	return out, nil
}

// decodeMap reads the payload as 2*Len consecutive records and folds them
// pairwise. Keys are re-typed to strings; a key that is not a string shape is
// a decode failure.
func decodeMap(v *Value) (map[string]any, error) {
	pairs := int(v.Len)
	flat, err := decodeSequence(v.Pointer(), pairs*2)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, pairs)
	for i := 0; i < pairs; i++ {
		key, ok := flat[2*i].(string)
		if !ok {
			return nil, &DecodeError{Msg: fmt.Sprintf("map key %d is %T, expected string", i, flat[2*i])}
		}
		out[key] = flat[2*i+1]
	}
	return out, nil
}

// decodeSet reads the payload as Len records and collects them into a
// duplicate-eliminating container of byte-strings.
func decodeSet(v *Value) (map[string]struct{}, error) {
	elems, err := decodeSequence(v.Pointer(), int(v.Len))
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(elems))
	for i, e := range elems {
		s, ok := e.(string)
		if !ok {
			return nil, &DecodeError{Msg: fmt.Sprintf("set member %d is %T, expected string", i, e)}
		}
		out[s] = struct{}{}
	}
	return out, nil
}
