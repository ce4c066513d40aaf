package ffi

import (
	"errors"
	"runtime"
	"unsafe"
)

// ErrReleased is returned when a projection handle is requested after the
// projection was released.
var ErrReleased = errors.New("ffi: projection already released")

// A projection is the unmanaged mirror of one managed object. Allocation
// happens at most once, on the first Handle call; Release is idempotent, frees
// exactly what Handle allocated, and is a no-op when Handle never ran.
//
// A projection is owned by a single request and is not safe for concurrent
// use. The handle must stay unreleased while the engine can still read it.

// CommandProjection mirrors one command: verb code, per-argument byte
// buffers, and the pinned pointer/length arrays referencing them.
type CommandProjection struct {
	verb uint32
	args []string

	info     *CommandInfo
	arena    *Arena
	ptrBuf   *[]uint64
	lenBuf   *[]uint64
	arrayPin runtime.Pinner
	released bool
}

func NewCommandProjection(verb uint32, args []string) *CommandProjection {
	return &CommandProjection{verb: verb, args: args}
}

// Handle returns the address of the populated CommandInfo struct, allocating
// it on the first call and caching it afterwards.
func (p *CommandProjection) Handle() (unsafe.Pointer, error) {
	if p.released {
		return nil, ErrReleased
	}
	if p.info != nil {
		return unsafe.Pointer(p.info), nil
	}

	arena := NewArena()
	// The struct is allocated first so the arena's newest-first release frees
	// every argument buffer before the struct that references them.
	info := (*CommandInfo)(arena.Alloc(int(unsafe.Sizeof(CommandInfo{}))))

	n := len(p.args)
	ptrBuf := getWordArray(n)
	lenBuf := getWordArray(n)
	for i, arg := range p.args {
		(*ptrBuf)[i] = uint64(uintptr(arena.String(arg)))
		(*lenBuf)[i] = uint64(len(arg))
	}
	p.arrayPin.Pin(&(*ptrBuf)[0])
	p.arrayPin.Pin(&(*lenBuf)[0])

	info.Verb = p.verb
	info.ArgCount = uint64(n)
	info.Args = unsafe.Pointer(&(*ptrBuf)[0])
	info.ArgLens = unsafe.Pointer(&(*lenBuf)[0])

	p.arena = arena
	p.ptrBuf = ptrBuf
	p.lenBuf = lenBuf
	p.info = info
	return unsafe.Pointer(info), nil
}

// Release frees in the mirror of the allocation order: unpin and recycle the
// length array, unpin and recycle the pointer array, then drop the argument
// buffers and finally the struct.
func (p *CommandProjection) Release() {
	if p.released {
		return
	}
	p.released = true
	if p.info == nil {
		return
	}
	p.arrayPin.Unpin()
	putWordArray(p.lenBuf)
	p.lenBuf = nil
	putWordArray(p.ptrBuf)
	p.ptrBuf = nil
	p.arena.Release()
	p.arena = nil
	p.info = nil
}

// BatchProjection mirrors an ordered batch of commands. It owns the child
// command projections and releases them only after the aggregate struct that
// references their handles is gone.
type BatchProjection struct {
	children []*CommandProjection
	atomic   bool

	info     *BatchInfo
	arena    *Arena
	cmdBuf   *[]uint64
	arrayPin runtime.Pinner
	released bool
}

func NewBatchProjection(atomic bool) *BatchProjection {
	return &BatchProjection{atomic: atomic}
}

// Append adds one command to the batch. Must not be called after Handle.
func (p *BatchProjection) Append(verb uint32, args []string) {
	p.children = append(p.children, NewCommandProjection(verb, args))
}

func (p *BatchProjection) Len() int {
	return len(p.children)
}

func (p *BatchProjection) Handle() (unsafe.Pointer, error) {
	if p.released {
		return nil, ErrReleased
	}
	if p.info != nil {
		return unsafe.Pointer(p.info), nil
	}

	arena := NewArena()
	info := (*BatchInfo)(arena.Alloc(int(unsafe.Sizeof(BatchInfo{}))))

	n := len(p.children)
	cmdBuf := getWordArray(n)
	for i, child := range p.children {
		h, err := child.Handle()
		if err != nil {
			// Unwind everything this call allocated so a failure partway
			// through composite construction leaks nothing.
			for j := 0; j <= i; j++ {
				p.children[j].Release()
			}
			putWordArray(cmdBuf)
			arena.Release()
			return nil, err
		}
		(*cmdBuf)[i] = uint64(uintptr(h))
	}
	p.arrayPin.Pin(&(*cmdBuf)[0])

	info.CmdCount = uint64(n)
	info.Cmds = unsafe.Pointer(&(*cmdBuf)[0])
	if p.atomic {
		info.IsAtomic = 1
	}

	p.arena = arena
	p.cmdBuf = cmdBuf
	p.info = info
	return unsafe.Pointer(info), nil
}

// Release drops the aggregate struct and handle array first, then cascades to
// the children; the strict aggregate-before-children order keeps child
// handles valid for as long as anything references them.
func (p *BatchProjection) Release() {
	if p.released {
		return
	}
	p.released = true
	if p.info != nil {
		p.arrayPin.Unpin()
		putWordArray(p.cmdBuf)
		p.cmdBuf = nil
		p.arena.Release()
		p.arena = nil
		p.info = nil
	}
	for i := len(p.children) - 1; i >= 0; i-- {
		p.children[i].Release()
	}
	p.children = nil
}

// RouteProjection mirrors a routing directive.
type RouteProjection struct {
	routeType RouteType
	slotID    int32
	slotKey   string
	slotType  SlotType
	host      string
	port      int32

	info     *RouteInfo
	arena    *Arena
	released bool
}

func NewRouteProjection(t RouteType, slotID int32, slotKey string, slotType SlotType, host string, port int32) *RouteProjection {
	return &RouteProjection{
		routeType: t,
		slotID:    slotID,
		slotKey:   slotKey,
		slotType:  slotType,
		host:      host,
		port:      port,
	}
}

func (p *RouteProjection) Handle() (unsafe.Pointer, error) {
	if p.released {
		return nil, ErrReleased
	}
	if p.info != nil {
		return unsafe.Pointer(p.info), nil
	}

	arena := NewArena()
	info := (*RouteInfo)(arena.Alloc(int(unsafe.Sizeof(RouteInfo{}))))
	info.Type = p.routeType
	info.SlotID = p.slotID
	info.SlotType = p.slotType
	info.Port = p.port
	if p.routeType == RouteSlotKey {
		info.SlotKey = arena.CString(p.slotKey)
	}
	if p.routeType == RouteByAddress {
		info.Host = arena.CString(p.host)
	}

	p.arena = arena
	p.info = info
	return unsafe.Pointer(info), nil
}

func (p *RouteProjection) Release() {
	if p.released {
		return
	}
	p.released = true
	if p.info == nil {
		return
	}
	p.arena.Release()
	p.arena = nil
	p.info = nil
}

// BatchOptionsProjection mirrors batch-level options, owning an optional
// child route projection.
type BatchOptionsProjection struct {
	retryServerError     bool
	retryConnectionError bool
	raiseOnError         bool
	hasTimeout           bool
	timeoutMillis        uint32
	route                *RouteProjection

	info     *BatchOptionsInfo
	arena    *Arena
	released bool
}

func NewBatchOptionsProjection(retryServer, retryConnection, raiseOnError bool, hasTimeout bool, timeoutMillis uint32, route *RouteProjection) *BatchOptionsProjection {
	return &BatchOptionsProjection{
		retryServerError:     retryServer,
		retryConnectionError: retryConnection,
		raiseOnError:         raiseOnError,
		hasTimeout:           hasTimeout,
		timeoutMillis:        timeoutMillis,
		route:                route,
	}
}

func (p *BatchOptionsProjection) Handle() (unsafe.Pointer, error) {
	if p.released {
		return nil, ErrReleased
	}
	if p.info != nil {
		return unsafe.Pointer(p.info), nil
	}

	arena := NewArena()
	info := (*BatchOptionsInfo)(arena.Alloc(int(unsafe.Sizeof(BatchOptionsInfo{}))))
	info.RetryServerError = boolWord(p.retryServerError)
	info.RetryConnectionError = boolWord(p.retryConnectionError)
	info.RaiseOnError = boolWord(p.raiseOnError)
	info.HasTimeout = boolWord(p.hasTimeout)
	info.TimeoutMillis = p.timeoutMillis
	if p.route != nil {
		h, err := p.route.Handle()
		if err != nil {
			arena.Release()
			return nil, err
		}
		info.Route = h
	}

	p.arena = arena
	p.info = info
	return unsafe.Pointer(info), nil
}

func (p *BatchOptionsProjection) Release() {
	if p.released {
		return
	}
	p.released = true
	if p.info != nil {
		p.arena.Release()
		p.arena = nil
		p.info = nil
	}
	if p.route != nil {
		p.route.Release()
		p.route = nil
	}
}

// HostPort is the managed form of one engine address.
type HostPort struct {
	Host string
	Port uint16
}

// ConnectionParams is the managed form of the connection configuration block,
// consumed by ConnectionProjection. Optional scalars use OptionalU32 since
// the projected layout has no null representation for them.
type ConnectionParams struct {
	Addresses         []HostPort
	TLSMode           TLSMode
	ClusterMode       bool
	RequestTimeout    OptionalU32 // milliseconds
	ConnectionTimeout OptionalU32 // milliseconds
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

// ConnectionProjection mirrors ConnectionParams as a ConnectionRequest block.
type ConnectionProjection struct {
	params ConnectionParams

	info     *ConnectionRequest
	arena    *Arena
	released bool
}

func NewConnectionProjection(params ConnectionParams) *ConnectionProjection {
	return &ConnectionProjection{params: params}
}

func (p *ConnectionProjection) Handle() (unsafe.Pointer, error) {
	if p.released {
		return nil, ErrReleased
	}
	if p.info != nil {
		return unsafe.Pointer(p.info), nil
	}

	arena := NewArena()
	req := (*ConnectionRequest)(arena.Alloc(int(unsafe.Sizeof(ConnectionRequest{}))))

	n := len(p.params.Addresses)
	if n > 0 {
		addrBlock := arena.Alloc(n * int(unsafe.Sizeof(NodeAddress{})))
		addrs := unsafe.Slice((*NodeAddress)(addrBlock), n)
		for i, hp := range p.params.Addresses {
			addrs[i].Host = arena.CString(hp.Host)
			addrs[i].Port = hp.Port
		}
		req.Addresses = addrBlock
		req.AddressCount = uint32(n)
	}

	req.ReadFrom.Kind = p.params.ReadFrom
	if p.params.ReadFrom == ReadFromAZAffinity || p.params.ReadFrom == ReadFromAZAffinityReplicasAndPrimary {
		req.ReadFrom.Value = arena.CString(p.params.ReadFromValue)
	}
	if p.params.ClientName != "" {
		req.ClientName = arena.CString(p.params.ClientName)
	}
	if p.params.AuthUsername != "" || p.params.AuthPassword != "" {
		req.AuthUsername = arena.CString(p.params.AuthUsername)
		req.AuthPassword = arena.CString(p.params.AuthPassword)
	}
	req.DatabaseID = p.params.DatabaseID
	req.Protocol = p.params.Protocol
	req.TLSMode = p.params.TLSMode
	req.ClusterMode = boolWord(p.params.ClusterMode)
	req.RequestTimeout = p.params.RequestTimeout
	req.ConnectionTimeout = p.params.ConnectionTimeout
	if p.params.HasRetryStrategy {
		req.RetryStrategy = RetryStrategyInfo{
			ExponentBase:    p.params.RetryExponentBase,
			Factor:          p.params.RetryFactor,
			NumberOfRetries: p.params.RetryCount,
		}
	} else {
		req.RetryStrategy.Ignore = 1
	}
	req.InflightLimit = p.params.InflightLimit

	p.arena = arena
	p.info = req
	return unsafe.Pointer(req), nil
}

func (p *ConnectionProjection) Release() {
	if p.released {
		return
	}
	p.released = true
	if p.info == nil {
		return
	}
	p.arena.Release()
	p.arena = nil
	p.info = nil
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
