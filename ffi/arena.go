package ffi

import (
	"runtime"
	"sync"
	"unsafe"
)

// Arena owns a set of pinned allocations that mirror managed data for the
// duration of a native call. Everything an arena hands out stays reachable
// through the arena itself, so the collector keeps it alive, and pinned, so
// the collector cannot move it while the engine holds raw addresses.
//
// Release drops allocations in reverse allocation order and is idempotent.
type Arena struct {
	pin      runtime.Pinner
	blocks   [][]byte
	released bool
}

func NewArena() *Arena {
	return &Arena{}
}

// Alloc returns a pinned, zeroed block of n bytes. Zero-sized payloads still
// get a one-byte block so that every projection has a stable address.
func (a *Arena) Alloc(n int) unsafe.Pointer {
	if n < 1 {
		n = 1
	}
	b := make([]byte, n)
	a.pin.Pin(&b[0])
	a.blocks = append(a.blocks, b)
	return unsafe.Pointer(&b[0])
}

// Bytes copies src into a fresh pinned block.
func (a *Arena) Bytes(src []byte) unsafe.Pointer {
	p := a.Alloc(len(src))
	copy(unsafe.Slice((*byte)(p), len(src)), src)
	return p
}

// String copies s into a fresh pinned block, without a terminator.
func (a *Arena) String(s string) unsafe.Pointer {
	p := a.Alloc(len(s))
	copy(unsafe.Slice((*byte)(p), len(s)), s)
	return p
}

// CString copies s into a fresh pinned block with a trailing NUL.
func (a *Arena) CString(s string) unsafe.Pointer {
	p := a.Alloc(len(s) + 1)
	b := unsafe.Slice((*byte)(p), len(s)+1)
	copy(b, s)
	b[len(s)] = 0
	return p
}

// Released reports whether Release has run.
func (a *Arena) Released() bool {
	return a.released
}

// Release unpins and drops every allocation, newest first. Safe to call more
// than once and safe to call on an arena that never allocated.
func (a *Arena) Release() {
	if a.released {
		return
	}
	a.released = true
	a.pin.Unpin()
	for i := len(a.blocks) - 1; i >= 0; i-- {
		a.blocks[i] = nil
	}
	a.blocks = nil
}

// Pointer-array and length-array buffers are recycled between projections.
// Classes cover the overwhelming share of commands; oversized requests fall
// back to plain allocation.
var wordPoolClasses = [...]int{8, 32, 128, 1024}

var wordPools = func() [len(wordPoolClasses)]*sync.Pool {
	var pools [len(wordPoolClasses)]*sync.Pool
	for i, size := range wordPoolClasses {
		size := size
		pools[i] = &sync.Pool{
			New: func() any {
				b := make([]uint64, size)
				return &b
			},
		}
	}
	return pools
}()

// getWordArray returns a zeroed buffer of at least n words.
func getWordArray(n int) *[]uint64 {
	for i, size := range wordPoolClasses {
		if n <= size {
			buf := wordPools[i].Get().(*[]uint64)
			clear(*buf)
			return buf
		}
	}
	b := make([]uint64, n)
	return &b
}

func putWordArray(buf *[]uint64) {
	if buf == nil {
		return
	}
	n := len(*buf)
	for i, size := range wordPoolClasses {
		if n == size {
			wordPools[i].Put(buf)
			return
		}
	}
	// Oversized buffers are not retained.
}
