package kvbridge

import "github.com/kvbridge/kvbridge/ffi"

// OKResponse is the acknowledgement string successful writes resolve to.
const OKResponse = ffi.OKResponse

// Request type codes understood by the engine. The numbering follows the
// engine's request table; gaps are intentional. Only the verbs the typed
// helpers use are listed here; any code the engine knows can be passed to
// NewCommand directly.
const (
	CustomCommand uint32 = 1

	Echo   uint32 = 320
	Ping   uint32 = 322
	Select uint32 = 325

	Del    uint32 = 402
	Exists uint32 = 404
	TTL    uint32 = 428

	DBSize   uint32 = 1126
	FlushAll uint32 = 1128
	Info     uint32 = 1130
	Time     uint32 = 1162

	SMembers uint32 = 1209

	Append uint32 = 1501
	Decr   uint32 = 1502
	DecrBy uint32 = 1503
	Get    uint32 = 1504
	Incr   uint32 = 1509
	IncrBy uint32 = 1510
	MGet   uint32 = 1513
	MSet   uint32 = 1514
	Set    uint32 = 1517
	Strlen uint32 = 1521
)
