package kvbridge

import (
	"errors"
	"fmt"

	"github.com/kvbridge/kvbridge/ffi"
)

// ErrClientClosed is returned by operations on a closed client.
var ErrClientClosed = errors.New("kvbridge: client is closed")

// ContractViolationError reports a response whose decoded shape does not
// match what the command promises. Hitting one means either a server protocol
// deviation or a bug in a command's converter.
type ContractViolationError struct {
	Expected string
	Actual   any
}

func (e *ContractViolationError) Error() string {
	if e.Actual == nil {
		return fmt.Sprintf("unexpected nil response, expected %s", e.Expected)
	}
	return fmt.Sprintf("unexpected response type %T, expected %s", e.Actual, e.Expected)
}

func nilViolation(expected string) error {
	return &ContractViolationError{Expected: expected}
}

func typeViolation(expected string, actual any) error {
	return &ContractViolationError{Expected: expected, Actual: actual}
}

// ClosingError resolves requests that were still pending when the client shut
// down.
type ClosingError struct {
	Cause error
}

func (e *ClosingError) Error() string {
	if e.Cause == nil {
		return "kvbridge: client closed with request pending"
	}
	return fmt.Sprintf("kvbridge: client closed with request pending: %v", e.Cause)
}

func (e *ClosingError) Unwrap() error { return e.Cause }

// RequestError carries a failure reported by the engine for one request.
type RequestError struct {
	Kind ffi.ErrorKind
	Msg  string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("kvbridge: %s error: %s", errorKindName(e.Kind), e.Msg)
}

func errorKindName(k ffi.ErrorKind) string {
	switch k {
	case ffi.ErrorExecAbort:
		return "exec abort"
	case ffi.ErrorTimeout:
		return "timeout"
	case ffi.ErrorDisconnect:
		return "disconnect"
	default:
		return "request"
	}
}
