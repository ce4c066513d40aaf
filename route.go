package kvbridge

import (
	"fmt"
	"net"
	"strconv"

	"github.com/kvbridge/kvbridge/ffi"
)

// Route tells a cluster client which node or node set a request targets.
// Implementations are the route types below; a nil Route lets the engine pick
// based on the command's keys.
type Route interface {
	projection() (*ffi.RouteProjection, error)

	// multiNode reports whether responses come back as one entry per node.
	multiNode() bool
}

// SimpleNodeRoute addresses a fixed node set without any key information.
type SimpleNodeRoute int

const (
	// AllNodes fans the request out to every node, primaries and replicas.
	AllNodes SimpleNodeRoute = iota
	// AllPrimaries fans the request out to every primary.
	AllPrimaries
	// RandomRoute sends the request to one arbitrary node.
	RandomRoute
)

func (r SimpleNodeRoute) projection() (*ffi.RouteProjection, error) {
	var t ffi.RouteType
	switch r {
	case AllNodes:
		t = ffi.RouteAllNodes
	case AllPrimaries:
		t = ffi.RouteAllPrimaries
	case RandomRoute:
		t = ffi.RouteRandom
	default:
		return nil, fmt.Errorf("unknown simple node route %d", int(r))
	}
	return ffi.NewRouteProjection(t, 0, "", ffi.SlotPrimary, "", 0), nil
}

func (r SimpleNodeRoute) multiNode() bool {
	return r == AllNodes || r == AllPrimaries
}

// SlotIDRoute targets the node owning a hash slot by its number.
type SlotIDRoute struct {
	SlotID   int32
	SlotType ffi.SlotType
}

func NewSlotIDRoute(slotID int32, slotType ffi.SlotType) *SlotIDRoute {
	return &SlotIDRoute{SlotID: slotID, SlotType: slotType}
}

func (r *SlotIDRoute) projection() (*ffi.RouteProjection, error) {
	return ffi.NewRouteProjection(ffi.RouteSlotID, r.SlotID, "", r.SlotType, "", 0), nil
}

func (r *SlotIDRoute) multiNode() bool { return false }

// SlotKeyRoute targets the node owning the hash slot of a key.
type SlotKeyRoute struct {
	SlotKey  string
	SlotType ffi.SlotType
}

func NewSlotKeyRoute(slotKey string, slotType ffi.SlotType) *SlotKeyRoute {
	return &SlotKeyRoute{SlotKey: slotKey, SlotType: slotType}
}

func (r *SlotKeyRoute) projection() (*ffi.RouteProjection, error) {
	return ffi.NewRouteProjection(ffi.RouteSlotKey, 0, r.SlotKey, r.SlotType, "", 0), nil
}

func (r *SlotKeyRoute) multiNode() bool { return false }

// ByAddressRoute targets one node by its address.
type ByAddressRoute struct {
	Host string
	Port int32
}

// NewByAddressRoute builds a route from separate host and port.
func NewByAddressRoute(host string, port int32) *ByAddressRoute {
	return &ByAddressRoute{Host: host, Port: port}
}

// NewByAddressRouteWithHost builds a route from a combined "host:port".
func NewByAddressRouteWithHost(addr string) (*ByAddressRoute, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid route address %q: %w", addr, err)
	}
	port, err := strconv.ParseInt(portStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid port in route address %q: %w", addr, err)
	}
	return &ByAddressRoute{Host: host, Port: int32(port)}, nil
}

func (r *ByAddressRoute) projection() (*ffi.RouteProjection, error) {
	if r.Host == "" {
		return nil, fmt.Errorf("route address requires a host")
	}
	return ffi.NewRouteProjection(ffi.RouteByAddress, 0, "", ffi.SlotPrimary, r.Host, r.Port), nil
}

func (r *ByAddressRoute) multiNode() bool { return false }
