package ffi

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandProjectionRoundTrip(t *testing.T) {
	proj := NewCommandProjection(1517, []string{"key", "value with spaces", ""})
	defer proj.Release()

	h, err := proj.Handle()
	require.NoError(t, err)

	verb, args := ReadCommandInfo(h)
	assert.Equal(t, uint32(1517), verb)
	require.Len(t, args, 3)
	assert.Equal(t, "key", string(args[0]))
	assert.Equal(t, "value with spaces", string(args[1]))
	assert.Empty(t, args[2])
}

func TestCommandProjectionNoArgs(t *testing.T) {
	proj := NewCommandProjection(322, nil)
	defer proj.Release()

	h, err := proj.Handle()
	require.NoError(t, err)

	verb, args := ReadCommandInfo(h)
	assert.Equal(t, uint32(322), verb)
	assert.Empty(t, args)
}

func TestCommandProjectionBinaryArgs(t *testing.T) {
	arg := string([]byte{0x00, 0xFF, 0x01, 0x00})
	proj := NewCommandProjection(1517, []string{arg})
	defer proj.Release()

	h, err := proj.Handle()
	require.NoError(t, err)

	_, args := ReadCommandInfo(h)
	require.Len(t, args, 1)
	assert.Equal(t, []byte(arg), args[0])
}

func TestCommandProjectionHandleCached(t *testing.T) {
	proj := NewCommandProjection(1504, []string{"k"})
	defer proj.Release()

	h1, err := proj.Handle()
	require.NoError(t, err)
	h2, err := proj.Handle()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestCommandProjectionUseAfterRelease(t *testing.T) {
	proj := NewCommandProjection(1504, []string{"k"})
	proj.Release()

	_, err := proj.Handle()
	assert.ErrorIs(t, err, ErrReleased)

	// Release stays idempotent.
	proj.Release()
}

func TestBatchProjectionRoundTrip(t *testing.T) {
	proj := NewBatchProjection(true)
	proj.Append(1517, []string{"k", "v"})
	proj.Append(1504, []string{"k"})
	defer proj.Release()

	h, err := proj.Handle()
	require.NoError(t, err)

	atomic, cmds := ReadBatchInfo(h)
	assert.True(t, atomic)
	require.Len(t, cmds, 2)

	verb, args := ReadCommandInfo(cmds[0])
	assert.Equal(t, uint32(1517), verb)
	assert.Equal(t, "v", string(args[1]))

	verb, _ = ReadCommandInfo(cmds[1])
	assert.Equal(t, uint32(1504), verb)
}

func TestBatchProjectionReleaseCascades(t *testing.T) {
	proj := NewBatchProjection(false)
	proj.Append(1504, []string{"a"})
	proj.Append(1504, []string{"b"})

	_, err := proj.Handle()
	require.NoError(t, err)

	proj.Release()
	_, err = proj.Handle()
	assert.ErrorIs(t, err, ErrReleased)
	proj.Release()
}

func TestRouteProjectionRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		proj *RouteProjection
		want RouteView
	}{
		{
			name: "all nodes",
			proj: NewRouteProjection(RouteAllNodes, 0, "", SlotPrimary, "", 0),
			want: RouteView{Type: RouteAllNodes},
		},
		{
			name: "slot id replica",
			proj: NewRouteProjection(RouteSlotID, 12182, "", SlotReplica, "", 0),
			want: RouteView{Type: RouteSlotID, SlotID: 12182, SlotType: SlotReplica},
		},
		{
			name: "slot key",
			proj: NewRouteProjection(RouteSlotKey, 0, "user:42", SlotPrimary, "", 0),
			want: RouteView{Type: RouteSlotKey, SlotKey: "user:42"},
		},
		{
			name: "by address",
			proj: NewRouteProjection(RouteByAddress, 0, "", SlotPrimary, "node-1.internal", 6380),
			want: RouteView{Type: RouteByAddress, Host: "node-1.internal", Port: 6380},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer tt.proj.Release()
			h, err := tt.proj.Handle()
			require.NoError(t, err)
			assert.Equal(t, tt.want, ReadRouteInfo(h))
		})
	}
}

func TestBatchOptionsProjectionRoundTrip(t *testing.T) {
	route := NewRouteProjection(RouteRandom, 0, "", SlotPrimary, "", 0)
	proj := NewBatchOptionsProjection(true, false, true, true, 2500, route)
	defer proj.Release()

	h, err := proj.Handle()
	require.NoError(t, err)

	view := ReadBatchOptions(h)
	assert.True(t, view.RetryServerError)
	assert.False(t, view.RetryConnectionError)
	assert.True(t, view.RaiseOnError)
	assert.True(t, view.HasTimeout)
	assert.Equal(t, uint32(2500), view.TimeoutMillis)
	require.NotNil(t, view.Route)
	assert.Equal(t, RouteRandom, view.Route.Type)
}

func TestBatchOptionsProjectionNoRoute(t *testing.T) {
	proj := NewBatchOptionsProjection(false, false, false, false, 0, nil)
	defer proj.Release()

	h, err := proj.Handle()
	require.NoError(t, err)

	view := ReadBatchOptions(h)
	assert.False(t, view.HasTimeout)
	assert.Nil(t, view.Route)
}

func TestConnectionProjectionRoundTrip(t *testing.T) {
	params := ConnectionParams{
		Addresses:         []HostPort{{Host: "a.internal", Port: 6379}, {Host: "b.internal", Port: 6380}},
		TLSMode:           TLSSecure,
		ClusterMode:       true,
		RequestTimeout:    OptionalU32{HasValue: 1, Value: 250},
		ConnectionTimeout: OptionalU32{HasValue: 1, Value: 5000},
		ReadFrom:          ReadFromPreferReplica,
		HasRetryStrategy:  true,
		RetryExponentBase: 2,
		RetryFactor:       100,
		RetryCount:        5,
		AuthUsername:      "svc",
		AuthPassword:      "hunter2",
		DatabaseID:        3,
		Protocol:          ProtocolRESP3,
		ClientName:        "kvbridge-test",
		InflightLimit:     OptionalU32{HasValue: 1, Value: 500},
	}
	proj := NewConnectionProjection(params)
	defer proj.Release()

	h, err := proj.Handle()
	require.NoError(t, err)

	view := ReadConnectionRequest(h)
	assert.Equal(t, params.Addresses, view.Addresses)
	assert.Equal(t, TLSSecure, view.TLSMode)
	assert.True(t, view.ClusterMode)
	assert.Equal(t, uint32(250), view.RequestTimeout.Value)
	assert.Equal(t, ReadFromPreferReplica, view.ReadFrom)
	assert.True(t, view.HasRetryStrategy)
	assert.Equal(t, uint32(100), view.RetryFactor)
	assert.Equal(t, "svc", view.AuthUsername)
	assert.Equal(t, "hunter2", view.AuthPassword)
	assert.Equal(t, int64(3), view.DatabaseID)
	assert.Equal(t, ProtocolRESP3, view.Protocol)
	assert.Equal(t, "kvbridge-test", view.ClientName)
	assert.Equal(t, uint32(500), view.InflightLimit.Value)
}

func TestConnectionProjectionDefaults(t *testing.T) {
	proj := NewConnectionProjection(ConnectionParams{
		Addresses: []HostPort{{Host: "localhost", Port: 6379}},
	})
	defer proj.Release()

	h, err := proj.Handle()
	require.NoError(t, err)

	view := ReadConnectionRequest(h)
	assert.False(t, view.ClusterMode)
	assert.False(t, view.HasRetryStrategy)
	assert.Empty(t, view.ClientName)
	assert.Zero(t, view.RequestTimeout.HasValue)
}

func TestArenaReleaseIdempotent(t *testing.T) {
	a := NewArena()
	p := a.Alloc(16)
	require.NotNil(t, p)

	a.Release()
	assert.True(t, a.Released())
	a.Release()
}

func TestArenaCString(t *testing.T) {
	a := NewArena()
	defer a.Release()

	p := a.CString("hello")
	require.NotNil(t, p)
	got := unsafe.Slice((*byte)(p), 6)
	assert.Equal(t, []byte("hello\x00"), got)
}
