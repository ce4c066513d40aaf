package ffi

import "unsafe"

// ClientHandle identifies one engine-side client instance.
type ClientHandle uint64

// CompletionFunc is the inbound entry point the engine invokes when a
// submitted request finishes. It runs on a thread of the engine's choosing
// and may be invoked concurrently for distinct slots, exactly once per slot.
//
// The response and error records are only valid for the duration of the call;
// anything needed afterwards must be copied before returning. On failure,
// errInfo is non-nil and response must be ignored.
type CompletionFunc func(slot uint64, response *Value, errInfo *ErrorInfo)

// Engine is the native core this binding drives. It owns connections, retries
// and protocol framing; the binding only hands it projected memory blocks and
// receives completions.
//
// Handles passed to Submit and SubmitBatch are valid until the call returns;
// the engine copies what it needs before returning.
type Engine interface {
	// CreateClient consumes a projected ConnectionRequest block and returns a
	// handle for the established client. Completions for every request
	// submitted on the handle are delivered through complete.
	CreateClient(request unsafe.Pointer, complete CompletionFunc) (ClientHandle, error)

	// Submit hands a projected CommandInfo block to the engine under the
	// given slot. route is a projected RouteInfo block or nil. A nil error
	// guarantees a later completion for the slot; a non-nil error means no
	// completion will ever arrive and the caller keeps ownership of the slot.
	Submit(client ClientHandle, slot uint64, command unsafe.Pointer, route unsafe.Pointer) error

	// SubmitBatch hands a projected BatchInfo block plus a projected
	// BatchOptionsInfo block (or nil) to the engine under the given slot.
	// Completion contract is the same as Submit.
	SubmitBatch(client ClientHandle, slot uint64, batch unsafe.Pointer, options unsafe.Pointer) error

	// CloseClient tears the client down. In-flight requests may or may not
	// still complete; the binding cancels whatever remains pending.
	CloseClient(client ClientHandle)
}
