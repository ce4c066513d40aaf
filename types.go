package kvbridge

// Result holds a value that the server may report as missing. IsNil
// distinguishes "no value" from a zero value.
type Result[T any] struct {
	val   T
	isNil bool
}

func NewResult[T any](val T) Result[T] {
	return Result[T]{val: val}
}

func NilResult[T any]() Result[T] {
	return Result[T]{isNil: true}
}

func (r Result[T]) IsNil() bool {
	return r.isNil
}

// Value returns the held value, or the zero value when IsNil.
func (r Result[T]) Value() T {
	return r.val
}

// ClusterValueType distinguishes the two shapes a cluster result can take.
type ClusterValueType int

const (
	SingleValue ClusterValueType = iota
	MultiValue
)

// ClusterValue is a result that is either a single aggregate or a per-node
// mapping keyed by node identity, depending on how the request was routed.
type ClusterValue[T any] struct {
	kind   ClusterValueType
	single T
	multi  map[string]T
}

func SingleClusterValue[T any](val T) ClusterValue[T] {
	return ClusterValue[T]{kind: SingleValue, single: val}
}

func MultiClusterValue[T any](vals map[string]T) ClusterValue[T] {
	return ClusterValue[T]{kind: MultiValue, multi: vals}
}

func (v ClusterValue[T]) ValueType() ClusterValueType {
	return v.kind
}

func (v ClusterValue[T]) IsSingleValue() bool {
	return v.kind == SingleValue
}

func (v ClusterValue[T]) IsMultiValue() bool {
	return v.kind == MultiValue
}

// SingleValue returns the aggregate result; zero value when the result is
// per-node.
func (v ClusterValue[T]) SingleValue() T {
	return v.single
}

// MultiValue returns the per-node mapping; nil when the result is a single
// aggregate.
func (v ClusterValue[T]) MultiValue() map[string]T {
	return v.multi
}
