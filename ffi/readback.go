package ffi

import "unsafe"

// Engine-side views of the projected blocks. Engines (and the projection
// round-trip tests) read handles back through these instead of hand-rolling
// pointer arithmetic. Every function copies: nothing retains projection
// memory past the call.

// ReadCommandInfo copies the verb and arguments out of a command handle.
func ReadCommandInfo(h unsafe.Pointer) (verb uint32, args [][]byte) {
	info := (*CommandInfo)(h)
	n := int(info.ArgCount)
	args = make([][]byte, n)
	if n == 0 {
		return info.Verb, args
	}
	ptrs := unsafe.Slice((*uint64)(info.Args), n)
	lens := unsafe.Slice((*uint64)(info.ArgLens), n)
	for i := 0; i < n; i++ {
		arg := make([]byte, lens[i])
		if lens[i] > 0 {
			src := *(*unsafe.Pointer)(unsafe.Pointer(&ptrs[i]))
			copy(arg, unsafe.Slice((*byte)(src), lens[i]))
		}
		args[i] = arg
	}
	return info.Verb, args
}

// ReadBatchInfo returns the atomicity flag and the child command handles.
func ReadBatchInfo(h unsafe.Pointer) (atomic bool, cmds []unsafe.Pointer) {
	info := (*BatchInfo)(h)
	n := int(info.CmdCount)
	cmds = make([]unsafe.Pointer, n)
	if n > 0 {
		words := unsafe.Slice((*uint64)(info.Cmds), n)
		for i := range words {
			cmds[i] = *(*unsafe.Pointer)(unsafe.Pointer(&words[i]))
		}
	}
	return info.IsAtomic != 0, cmds
}

// BatchOptionsView is the managed copy of a batch options handle.
type BatchOptionsView struct {
	RetryServerError     bool
	RetryConnectionError bool
	RaiseOnError         bool
	HasTimeout           bool
	TimeoutMillis        uint32
	Route                *RouteView
}

func ReadBatchOptions(h unsafe.Pointer) BatchOptionsView {
	info := (*BatchOptionsInfo)(h)
	view := BatchOptionsView{
		RetryServerError:     info.RetryServerError != 0,
		RetryConnectionError: info.RetryConnectionError != 0,
		RaiseOnError:         info.RaiseOnError != 0,
		HasTimeout:           info.HasTimeout != 0,
		TimeoutMillis:        info.TimeoutMillis,
	}
	if info.Route != nil {
		route := ReadRouteInfo(info.Route)
		view.Route = &route
	}
	return view
}

// RouteView is the managed copy of a route handle.
type RouteView struct {
	Type     RouteType
	SlotID   int32
	SlotKey  string
	SlotType SlotType
	Host     string
	Port     int32
}

func ReadRouteInfo(h unsafe.Pointer) RouteView {
	info := (*RouteInfo)(h)
	return RouteView{
		Type:     info.Type,
		SlotID:   info.SlotID,
		SlotKey:  readCString(info.SlotKey),
		SlotType: info.SlotType,
		Host:     readCString(info.Host),
		Port:     info.Port,
	}
}

// ConnectionView is the managed copy of a connection request handle.
type ConnectionView struct {
	Addresses         []HostPort
	TLSMode           TLSMode
	ClusterMode       bool
	RequestTimeout    OptionalU32
	ConnectionTimeout OptionalU32
	ReadFrom          ReadFromKind
	ReadFromValue     string
	HasRetryStrategy  bool
	RetryExponentBase uint32
	RetryFactor       uint32
	RetryCount        uint32
	AuthUsername      string
	AuthPassword      string
	DatabaseID        int64
	Protocol          ProtocolVersion
	ClientName        string
	InflightLimit     OptionalU32
}

func ReadConnectionRequest(h unsafe.Pointer) ConnectionView {
	req := (*ConnectionRequest)(h)
	view := ConnectionView{
		TLSMode:           req.TLSMode,
		ClusterMode:       req.ClusterMode != 0,
		RequestTimeout:    req.RequestTimeout,
		ConnectionTimeout: req.ConnectionTimeout,
		ReadFrom:          req.ReadFrom.Kind,
		ReadFromValue:     readCString(req.ReadFrom.Value),
		HasRetryStrategy:  req.RetryStrategy.Ignore == 0,
		RetryExponentBase: req.RetryStrategy.ExponentBase,
		RetryFactor:       req.RetryStrategy.Factor,
		RetryCount:        req.RetryStrategy.NumberOfRetries,
		AuthUsername:      readCString(req.AuthUsername),
		AuthPassword:      readCString(req.AuthPassword),
		DatabaseID:        req.DatabaseID,
		Protocol:          req.Protocol,
		ClientName:        readCString(req.ClientName),
		InflightLimit:     req.InflightLimit,
	}
	n := int(req.AddressCount)
	if n > 0 {
		addrs := unsafe.Slice((*NodeAddress)(req.Addresses), n)
		view.Addresses = make([]HostPort, n)
		for i, a := range addrs {
			view.Addresses[i] = HostPort{Host: readCString(a.Host), Port: a.Port}
		}
	}
	return view
}

func readCString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	var n int
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n))
}
