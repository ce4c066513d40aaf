package kvbridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReserveResolveAwait(t *testing.T) {
	r, err := newRegistry(16)
	require.NoError(t, err)

	ctx := context.Background()
	slot, err := r.reserve(ctx, getCommand("k"))
	require.NoError(t, err)

	r.resolve(slot.index, "value", nil)

	v, err := r.await(ctx, slot)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
}

func TestRegistrySlotReuseAfterRelease(t *testing.T) {
	r, err := newRegistry(16)
	require.NoError(t, err)
	ctx := context.Background()

	slot, err := r.reserve(ctx, getCommand("k"))
	require.NoError(t, err)
	first := slot.index
	r.resolve(first, nil, nil)
	_, err = r.await(ctx, slot)
	require.NoError(t, err)

	// The released slot comes back instead of a fresh entry.
	slot, err = r.reserve(ctx, getCommand("k"))
	require.NoError(t, err)
	assert.Equal(t, first, slot.index)
}

func TestRegistryDistinctSlotsWhilePending(t *testing.T) {
	r, err := newRegistry(16)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := r.reserve(ctx, getCommand("a"))
	require.NoError(t, err)
	b, err := r.reserve(ctx, getCommand("b"))
	require.NoError(t, err)
	assert.NotEqual(t, a.index, b.index)
}

func TestRegistryOutOfOrderResolution(t *testing.T) {
	r, err := newRegistry(16)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := r.reserve(ctx, getCommand("first"))
	require.NoError(t, err)
	second, err := r.reserve(ctx, getCommand("second"))
	require.NoError(t, err)

	// The later submission resolves first; each awaiter still gets its own
	// value.
	r.resolve(second.index, "second-value", nil)
	r.resolve(first.index, "first-value", nil)

	v2, err := r.await(ctx, second)
	require.NoError(t, err)
	v1, err := r.await(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "second-value", v2)
	assert.Equal(t, "first-value", v1)
}

func TestRegistryCommandAt(t *testing.T) {
	r, err := newRegistry(16)
	require.NoError(t, err)
	ctx := context.Background()

	cmd := incrCommand("counter")
	slot, err := r.reserve(ctx, cmd)
	require.NoError(t, err)

	assert.Same(t, cmd, r.commandAt(slot.index))
	assert.Nil(t, r.commandAt(9999))
}

func TestRegistryResolveUnknownSlot(t *testing.T) {
	r, err := newRegistry(4)
	require.NoError(t, err)

	// Must not panic or corrupt anything.
	r.resolve(42, "ghost", nil)
}

func TestRegistryDuplicateResolveIgnored(t *testing.T) {
	r, err := newRegistry(4)
	require.NoError(t, err)
	ctx := context.Background()

	slot, err := r.reserve(ctx, getCommand("k"))
	require.NoError(t, err)

	r.resolve(slot.index, "first", nil)
	r.resolve(slot.index, "second", nil)

	v, err := r.await(ctx, slot)
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestRegistryAwaitContextCancelled(t *testing.T) {
	r, err := newRegistry(4)
	require.NoError(t, err)

	slot, err := r.reserve(context.Background(), getCommand("k"))
	require.NoError(t, err)
	index := slot.index

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.await(ctx, slot)
	assert.ErrorIs(t, err, context.Canceled)

	// The late resolution finds the abandoned slot and returns it to the
	// pool, so the index becomes reusable.
	r.resolve(index, "late", nil)

	slot, err = r.reserve(context.Background(), getCommand("k"))
	require.NoError(t, err)
	assert.Equal(t, index, slot.index)
}

func TestRegistryInflightLimit(t *testing.T) {
	r, err := newRegistry(1)
	require.NoError(t, err)

	slot, err := r.reserve(context.Background(), getCommand("k"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.reserve(ctx, getCommand("blocked"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	r.resolve(slot.index, nil, nil)
	_, err = r.await(context.Background(), slot)
	require.NoError(t, err)

	slot, err = r.reserve(context.Background(), getCommand("k"))
	require.NoError(t, err)
	assert.NotNil(t, slot)
}

func TestRegistryCancelAll(t *testing.T) {
	r, err := newRegistry(8)
	require.NoError(t, err)
	ctx := context.Background()

	var slots []*pendingSlot
	for i := 0; i < 3; i++ {
		slot, err := r.reserve(ctx, pingCommand(""))
		require.NoError(t, err)
		slots = append(slots, slot)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(slots))
	for i, slot := range slots {
		i, slot := i, slot
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = r.await(ctx, slot)
		}()
	}

	cancelled := r.cancelAll(ErrClientClosed)
	wg.Wait()

	assert.Equal(t, 3, cancelled)
	for _, err := range errs {
		var closing *ClosingError
		require.ErrorAs(t, err, &closing)
		assert.ErrorIs(t, err, ErrClientClosed)
	}

	// Resolutions arriving after teardown are dropped quietly.
	r.resolve(slots[0].index, "late", nil)

	_, err = r.reserve(ctx, pingCommand(""))
	assert.ErrorIs(t, err, ErrClientClosed)
}
