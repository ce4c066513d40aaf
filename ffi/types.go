package ffi

import (
	"math"
	"unsafe"
)

// Kind is the discriminant of a Value record.
type Kind uint32

const (
	KindNil Kind = iota
	KindInt
	KindFloat
	KindBool
	KindBulkString
	KindSimpleString
	KindArray
	KindMap
	KindSet
	KindOkay
)

// String returns the wire name of the kind, used in contract-violation messages.
func (k Kind) String() string {
	switch k {
	case KindNil:
		return "Nil"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	case KindBulkString:
		return "BulkString"
	case KindSimpleString:
		return "SimpleString"
	case KindArray:
		return "Array"
	case KindMap:
		return "Map"
	case KindSet:
		return "Set"
	case KindOkay:
		return "Okay"
	default:
		return "Unknown"
	}
}

// ValueSize is the fixed size of one Value record. Sequences are laid out as
// contiguous runs of records this size apart.
const ValueSize = unsafe.Sizeof(Value{})

// Value is the tagged record produced by the engine for every response node.
// Data is a union: the integer value for KindInt, the raised bool for KindBool,
// the IEEE 754 bits for KindFloat, or the payload address for every pointer
// kind. Len is the payload size: byte count for strings, element count for
// arrays and sets, pair count for maps.
//
// The layout is order-significant and must match the engine side exactly.
type Value struct {
	Kind Kind
	_    uint32
	Data uint64
	Len  int64
}

func (v *Value) Int() int64 {
	return int64(v.Data)
}

func (v *Value) Float() float64 {
	return math.Float64frombits(v.Data)
}

func (v *Value) Bool() bool {
	return v.Data != 0
}

// Pointer returns the payload address for pointer kinds. The address is stored
// as a plain integer, exactly as a native union would hold it; the allocating
// side keeps the target alive and pinned.
func (v *Value) Pointer() unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&v.Data))
}

func (v *Value) setPointer(p unsafe.Pointer) {
	*(*unsafe.Pointer)(unsafe.Pointer(&v.Data)) = p
}

// ErrorKind mirrors the engine's request error classification.
type ErrorKind uint32

const (
	ErrorUnspecified ErrorKind = iota
	ErrorExecAbort
	ErrorTimeout
	ErrorDisconnect
)

// ErrorInfo is the error record delivered with a failed completion. Message
// points at engine-owned bytes that are only valid during the callback.
type ErrorInfo struct {
	Kind    ErrorKind
	_       uint32
	Message unsafe.Pointer
	Len     int64
}

// Text copies the error message out of engine memory.
func (e *ErrorInfo) Text() string {
	if e == nil || e.Message == nil || e.Len <= 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(e.Message), e.Len))
}

// CommandInfo is the projected form of one command: the verb code, a pinned
// array of per-argument byte pointers, and a parallel pinned array of
// argument byte lengths.
type CommandInfo struct {
	Verb     uint32
	_        uint32
	Args     unsafe.Pointer // *const *uint8, ArgCount elements
	ArgCount uint64
	ArgLens  unsafe.Pointer // *uintptr, ArgCount elements
}

// BatchInfo is the projected form of a batch: a pinned array of CommandInfo
// handles plus the atomicity flag.
type BatchInfo struct {
	CmdCount uint64
	Cmds     unsafe.Pointer // *const *CommandInfo, CmdCount elements
	IsAtomic uint32
	_        uint32
}

// BatchOptionsInfo carries batch-level options. Timeout is optional and is
// represented as a presence flag plus a value; the native layout has no null
// representation for scalars.
type BatchOptionsInfo struct {
	RetryServerError     uint32
	RetryConnectionError uint32
	RaiseOnError         uint32
	HasTimeout           uint32
	TimeoutMillis        uint32
	_                    uint32
	Route                unsafe.Pointer // *RouteInfo, nil when unrouted
}

// RouteType selects how the engine routes a request in cluster mode.
type RouteType uint32

const (
	RouteAllNodes RouteType = iota
	RouteAllPrimaries
	RouteRandom
	RouteSlotID
	RouteSlotKey
	RouteByAddress
)

// SlotType selects the node role for slot-addressed routes.
type SlotType uint32

const (
	SlotPrimary SlotType = iota
	SlotReplica
)

// RouteInfo has fields for every route type to avoid pointer mangling; which
// fields are meaningful depends on Type. SlotKey and Host are NUL-terminated,
// nil means not given.
type RouteInfo struct {
	Type     RouteType
	SlotID   int32
	SlotKey  unsafe.Pointer // *const char
	SlotType SlotType
	_        uint32
	Host     unsafe.Pointer // *const char
	Port     int32
	_        uint32
}

// NodeAddress is one entry of the connection request's address array.
type NodeAddress struct {
	Host unsafe.Pointer // *const char
	Port uint16
	_    [6]byte
}

// OptionalU32 is a scalar with a presence flag.
type OptionalU32 struct {
	HasValue uint32
	Value    uint32
}

// TLSMode mirrors the engine's TLS configuration. TLSNone means "not given".
type TLSMode uint32

const (
	TLSNone TLSMode = iota
	TLSNoTLS
	TLSInsecure
	TLSSecure
)

// ProtocolVersion selects the wire protocol. ProtocolNone means "not given".
type ProtocolVersion uint32

const (
	ProtocolNone ProtocolVersion = iota
	ProtocolRESP2
	ProtocolRESP3
)

// ReadFromKind mirrors the engine's read-from policy. Affinity kinds carry a
// value in ReadFromInfo.Value.
type ReadFromKind uint32

const (
	ReadFromNone ReadFromKind = iota
	ReadFromPrimary
	ReadFromPreferReplica
	ReadFromAZAffinity
	ReadFromAZAffinityReplicasAndPrimary
)

// ReadFromInfo is the projected read-from policy.
type ReadFromInfo struct {
	Kind  ReadFromKind
	_     uint32
	Value unsafe.Pointer // *const char, nil unless an affinity kind
}

// RetryStrategyInfo is the projected reconnect backoff strategy. Ignore != 0
// means "not given".
type RetryStrategyInfo struct {
	Ignore          uint32
	ExponentBase    uint32
	Factor          uint32
	NumberOfRetries uint32
}

// ConnectionRequest is the projected connection configuration block. The
// field order is significant and must match the engine side exactly.
type ConnectionRequest struct {
	ReadFrom          ReadFromInfo
	ClientName        unsafe.Pointer // *const char, nil when not given
	AuthUsername      unsafe.Pointer // *const char, nil when not given
	AuthPassword      unsafe.Pointer // *const char, nil when not given
	DatabaseID        int64
	Protocol          ProtocolVersion
	TLSMode           TLSMode
	Addresses         unsafe.Pointer // *NodeAddress, AddressCount elements
	AddressCount      uint32
	ClusterMode       uint32
	RequestTimeout    OptionalU32 // milliseconds
	ConnectionTimeout OptionalU32 // milliseconds
	RetryStrategy     RetryStrategyInfo
	InflightLimit     OptionalU32
}
