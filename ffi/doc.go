// Package ffi implements the boundary between the managed client and the
// native key-value engine: fixed-layout data shapes, the projection layer
// that mirrors managed objects into pinned memory, the decoder that copies
// tagged response records back into managed values, and the Engine interface
// the native core is consumed through.
//
// # Projections
//
// A projection is the unmanaged mirror of one managed object (a command, a
// batch, a route, a connection request). Allocation is lazy: nothing is
// allocated until Handle is first called, and the handle is cached for
// subsequent calls. Release is idempotent, frees exactly what Handle
// allocated in the mirror of the allocation order, and cascades through
// composite projections children-last so no handle dangles while something
// still references it:
//
//	proj := ffi.NewCommandProjection(verb, args)
//	defer proj.Release()
//	h, err := proj.Handle()
//	if err != nil {
//	    return err
//	}
//	engine.Submit(client, slot, h, nil)
//
// # Responses
//
// The engine delivers each completion as a pointer to a fixed-size tagged
// record. Decode walks the record tree and produces a fully-owned managed
// copy, so response memory can be freed the moment the callback returns:
//
//	raw, err := ffi.Decode(response)
//
// EncodeValue is the inverse, used by in-process engines and tests to build
// response memory with the exact native layout.
package ffi
