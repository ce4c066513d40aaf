package kvbridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jackc/puddle/v2"
)

// Slot lifecycle. Transitions: idle -> pending (reserve), pending -> resolved
// (completion, error, or cancellation), pending -> abandoned (awaiter gave
// up), abandoned -> resolved (late completion), resolved -> idle (release
// after the completion was observed).
const (
	slotIdle uint32 = iota
	slotPending
	slotResolved
	slotAbandoned
)

// pendingSlot correlates one in-flight request with its completion. The
// integer index is the only thing that crosses the native boundary; a
// completion carrying just that integer routes back here in O(1).
type pendingSlot struct {
	index uint64
	state atomic.Uint32

	// Decoder context captured at submission time.
	cmd *Command

	done  chan struct{}
	value any
	err   error

	res *puddle.Resource[*pendingSlot]
}

// registry is the request correlation table: a growable slot table indexed by
// plain integers plus an idle-slot pool. The table is the only cross-thread
// mutable state in the binding; growth is serialized by mu while the
// reserve/release hot path goes through the pool without touching the lock.
type registry struct {
	mu     sync.Mutex
	slots  []*pendingSlot
	closed bool

	pool *puddle.Pool[*pendingSlot]
}

func newRegistry(maxInflight int32) (*registry, error) {
	r := &registry{}
	pool, err := puddle.NewPool(&puddle.Config[*pendingSlot]{
		Constructor: func(ctx context.Context) (*pendingSlot, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.closed {
				return nil, ErrClientClosed
			}
			s := &pendingSlot{index: uint64(len(r.slots))}
			r.slots = append(r.slots, s)
			return s, nil
		},
		Destructor: func(*pendingSlot) {},
		MaxSize:    maxInflight,
	})
	if err != nil {
		return nil, err
	}
	r.pool = pool
	return r, nil
}

// reserve obtains a slot, preferring an idle one over minting a new entry,
// and arms it with the command whose completion it will correlate. Blocks
// when maxInflight slots are already pending.
func (r *registry) reserve(ctx context.Context, cmd *Command) (*pendingSlot, error) {
	res, err := r.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, puddle.ErrClosedPool) {
			return nil, ErrClientClosed
		}
		return nil, err
	}
	s := res.Value()
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		res.Release()
		return nil, ErrClientClosed
	}
	s.res = res
	s.cmd = cmd
	s.value = nil
	s.err = nil
	s.done = make(chan struct{})
	s.state.Store(slotPending)
	return s, nil
}

// commandAt returns the decoder context for a pending slot, nil when the
// index is unknown or the slot is not armed.
func (r *registry) commandAt(index uint64) *Command {
	s := r.at(index)
	if s == nil {
		return nil
	}
	return s.cmd
}

// resolve completes the slot at index exactly once. Late duplicates, and
// completions racing a cancellation for the same slot, lose the state CAS
// and no-op.
func (r *registry) resolve(index uint64, value any, err error) {
	s := r.at(index)
	if s == nil {
		slog.Warn("kvbridge: completion for unknown slot", "slot", index)
		return
	}
	r.complete(s, value, err)
}

func (r *registry) complete(s *pendingSlot, value any, err error) {
	if s.state.CompareAndSwap(slotPending, slotResolved) {
		s.value = value
		s.err = err
		close(s.done)
		return
	}
	if s.state.CompareAndSwap(slotAbandoned, slotResolved) {
		// Nobody is awaiting anymore; the resolver returns the slot to the
		// pool on the awaiter's behalf. Resolution still strictly precedes
		// reuse.
		r.release(s)
		return
	}
	slog.Debug("kvbridge: duplicate completion ignored", "slot", s.index)
}

// await blocks until the slot resolves, then observes the result and returns
// the slot for reuse. When ctx expires first the slot is marked abandoned and
// stays out of the idle pool until its resolution eventually arrives.
func (r *registry) await(ctx context.Context, s *pendingSlot) (any, error) {
	select {
	case <-s.done:
		value, err := s.value, s.err
		r.release(s)
		return value, err
	case <-ctx.Done():
		if s.state.CompareAndSwap(slotPending, slotAbandoned) {
			return nil, ctx.Err()
		}
		// A resolution won the race; observe it normally.
		<-s.done
		value, err := s.value, s.err
		r.release(s)
		return value, err
	}
}

// release returns an observed slot to the idle pool. Only the awaiter that
// observed the completion (or the resolver acting for an abandoned awaiter)
// calls this, which is what keeps a slot from ever being reused while its
// resolution could still be in flight.
func (r *registry) release(s *pendingSlot) {
	s.cmd = nil
	s.value = nil
	s.err = nil
	s.state.Store(slotIdle)
	res := s.res
	s.res = nil
	res.Release()
}

// cancelAll resolves every slot not yet completed with a cancellation
// failure carrying cause, then shuts the pool down. The sweep snapshots the
// table under the growth lock so no slot can be minted mid-sweep; a native
// completion racing the sweep loses the per-slot CAS and no-ops.
func (r *registry) cancelAll(cause error) int {
	r.mu.Lock()
	r.closed = true
	slots := make([]*pendingSlot, len(r.slots))
	copy(slots, r.slots)
	r.mu.Unlock()

	cancelled := 0
	for _, s := range slots {
		if s.state.CompareAndSwap(slotPending, slotResolved) {
			s.value = nil
			s.err = &ClosingError{Cause: cause}
			close(s.done)
			cancelled++
		} else if s.state.CompareAndSwap(slotAbandoned, slotResolved) {
			r.release(s)
			cancelled++
		}
	}
	if cancelled > 0 {
		// A pending slot at teardown usually means an abrupt close; the
		// cancellation itself is still correct.
		slog.Warn("kvbridge: connection closed with requests still pending", "count", cancelled)
	}
	// Close waits for awaiters to hand their cancelled slots back, so it
	// must not run on the caller's goroutine.
	go r.pool.Close()
	return cancelled
}

func (r *registry) at(index uint64) *pendingSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index >= uint64(len(r.slots)) {
		return nil
	}
	return r.slots[index]
}
