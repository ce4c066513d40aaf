package ffi

import (
	"fmt"
	"math"
	"unsafe"
)

// Acknowledged encodes as the engine's literal acknowledgement marker.
type Acknowledged struct{}

// Simple encodes as the simple-string wire spelling instead of a bulk string.
type Simple string

// EncodeValue lays out v as a tree of tagged records inside the arena and
// returns the root record's address. This is the engine-side counterpart of
// Decode; the in-process test engine and the decoder tests use it to build
// response memory with the exact layout a native engine would produce.
func EncodeValue(a *Arena, v any) (unsafe.Pointer, error) {
	root := (*Value)(a.Alloc(int(ValueSize)))
	if err := encodeInto(a, root, v); err != nil {
		return nil, err
	}
	return unsafe.Pointer(root), nil
}

func encodeInto(a *Arena, dst *Value, v any) error {
	switch val := v.(type) {
	case nil:
		dst.Kind = KindNil
	case Acknowledged:
		dst.Kind = KindOkay
	case bool:
		dst.Kind = KindBool
		if val {
			dst.Data = 1
		}
	case int:
		dst.Kind = KindInt
		dst.Data = uint64(int64(val))
	case int64:
		dst.Kind = KindInt
		dst.Data = uint64(val)
	case float64:
		dst.Kind = KindFloat
		dst.Data = math.Float64bits(val)
	case string:
		dst.Kind = KindBulkString
		dst.Len = int64(len(val))
		dst.setPointer(a.String(val))
	case Simple:
		dst.Kind = KindSimpleString
		dst.Len = int64(len(val))
		dst.setPointer(a.String(string(val)))
	case []byte:
		dst.Kind = KindBulkString
		dst.Len = int64(len(val))
		dst.setPointer(a.Bytes(val))
	case []any:
		dst.Kind = KindArray
		dst.Len = int64(len(val))
		dst.setPointer(encodeRun(a, val))
	case []string:
		elems := make([]any, len(val))
		for i, s := range val {
			elems[i] = s
		}
		return encodeInto(a, dst, elems)
	case map[string]any:
		flat := make([]any, 0, len(val)*2)
		for k, mv := range val {
			flat = append(flat, k, mv)
		}
		dst.Kind = KindMap
		dst.Len = int64(len(val))
		dst.setPointer(encodeRun(a, flat))
	case map[string]struct{}:
		elems := make([]any, 0, len(val))
		for member := range val {
			elems = append(elems, member)
		}
		dst.Kind = KindSet
		dst.Len = int64(len(elems))
		dst.setPointer(encodeRun(a, elems))
	default:
		return fmt.Errorf("ffi: cannot encode %T as a wire value", v)
	}
	return nil
}

// encodeRun lays out elems as a contiguous run of records. Encoding errors in
// the run surface through the recorded error record, which Decode reports as
// an unknown tag; callers only feed shapes encodeInto supports.
func encodeRun(a *Arena, elems []any) unsafe.Pointer {
	block := a.Alloc(len(elems) * int(ValueSize))
	run := unsafe.Slice((*Value)(block), len(elems))
	for i, e := range elems {
		if err := encodeInto(a, &run[i], e); err != nil {
			run[i] = Value{Kind: Kind(math.MaxUint32)}
		}
	}
	return block
}
