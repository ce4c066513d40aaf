// Package enginetest provides an in-process engine for exercising the
// binding without a native core. It consumes projected request blocks the
// way a real engine would: reading them back through the ffi views, building
// projected responses, invoking the completion callback, and freeing the
// response memory as soon as the callback returns.
package enginetest

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/kvbridge/kvbridge"
	"github.com/kvbridge/kvbridge/ffi"
)

// Engine is a deterministic ffi.Engine backed by an in-memory store. All
// methods are safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	clients map[ffi.ClientHandle]*clientState
	next    uint64

	strings *xsync.MapOf[string, string]
	sets    *xsync.MapOf[string, map[string]struct{}]

	nodes []string

	held   bool
	queue  []func()
	forced []forcedError
}

type clientState struct {
	complete ffi.CompletionFunc
	view     ffi.ConnectionView
	closed   bool
}

type forcedError struct {
	kind ffi.ErrorKind
	msg  string
}

// engineError is an execution failure that becomes an ErrorInfo completion.
type engineError struct {
	kind ffi.ErrorKind
	msg  string
}

func New() *Engine {
	return &Engine{
		clients: make(map[ffi.ClientHandle]*clientState),
		strings: xsync.NewMapOf[string, string](),
		sets:    xsync.NewMapOf[string, map[string]struct{}](),
		nodes:   []string{"10.0.0.1:6379", "10.0.0.2:6379", "10.0.0.3:6379"},
	}
}

var _ ffi.Engine = (*Engine)(nil)

func (e *Engine) CreateClient(request unsafe.Pointer, complete ffi.CompletionFunc) (ffi.ClientHandle, error) {
	view := ffi.ReadConnectionRequest(request)
	if len(view.Addresses) == 0 {
		return 0, fmt.Errorf("enginetest: connection request has no addresses")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	handle := ffi.ClientHandle(e.next)
	e.clients[handle] = &clientState{complete: complete, view: view}
	return handle, nil
}

func (e *Engine) Submit(client ffi.ClientHandle, slot uint64, command unsafe.Pointer, route unsafe.Pointer) error {
	cs, err := e.lookup(client)
	if err != nil {
		return err
	}
	if f, ok := e.takeForced(); ok {
		e.deliverError(cs, slot, f.kind, f.msg)
		return nil
	}
	verb, args := ffi.ReadCommandInfo(command)
	var routeView *ffi.RouteView
	if route != nil {
		v := ffi.ReadRouteInfo(route)
		routeView = &v
	}
	resp, eerr := e.run(verb, args, routeView)
	if eerr != nil {
		e.deliverError(cs, slot, eerr.kind, eerr.msg)
		return nil
	}
	e.deliverValue(cs, slot, resp)
	return nil
}

func (e *Engine) SubmitBatch(client ffi.ClientHandle, slot uint64, batch unsafe.Pointer, options unsafe.Pointer) error {
	cs, err := e.lookup(client)
	if err != nil {
		return err
	}
	if f, ok := e.takeForced(); ok {
		e.deliverError(cs, slot, f.kind, f.msg)
		return nil
	}
	atomic, cmds := ffi.ReadBatchInfo(batch)
	raiseOnError := true
	if options != nil {
		raiseOnError = ffi.ReadBatchOptions(options).RaiseOnError
	}
	entries := make([]any, len(cmds))
	for i, h := range cmds {
		verb, args := ffi.ReadCommandInfo(h)
		v, eerr := e.runSingle(verb, args)
		if eerr != nil {
			if atomic || raiseOnError {
				e.deliverError(cs, slot, ffi.ErrorExecAbort, eerr.msg)
				return nil
			}
			entries[i] = ffi.Simple("ERR " + eerr.msg)
			continue
		}
		entries[i] = v
	}
	e.deliverValue(cs, slot, entries)
	return nil
}

func (e *Engine) CloseClient(client ffi.ClientHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cs, ok := e.clients[client]; ok {
		cs.closed = true
	}
}

// Hold buffers completions instead of delivering them, until one of the
// Flush methods runs.
func (e *Engine) Hold() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.held = true
}

// FlushFIFO delivers buffered completions in submission order and stops
// holding new ones.
func (e *Engine) FlushFIFO() {
	for _, fn := range e.drain(false) {
		fn()
	}
}

// FlushLIFO delivers buffered completions newest first and stops holding new
// ones.
func (e *Engine) FlushLIFO() {
	for _, fn := range e.drain(true) {
		fn()
	}
}

// Pending reports how many completions are buffered.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// FailNext makes the next submission complete with the given error instead
// of executing.
func (e *Engine) FailNext(kind ffi.ErrorKind, msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forced = append(e.forced, forcedError{kind: kind, msg: msg})
}

// SetValue seeds the store directly, bypassing the request path.
func (e *Engine) SetValue(key, value string) {
	e.strings.Store(key, value)
}

// Value reads the stored bytes for key directly.
func (e *Engine) Value(key string) (string, bool) {
	return e.strings.Load(key)
}

// AddSetMembers seeds a set directly.
func (e *Engine) AddSetMembers(key string, members ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, _ := e.sets.Load(key)
	next := make(map[string]struct{}, len(set)+len(members))
	for m := range set {
		next[m] = struct{}{}
	}
	for _, m := range members {
		next[m] = struct{}{}
	}
	e.sets.Store(key, next)
}

func (e *Engine) lookup(client ffi.ClientHandle) (*clientState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cs, ok := e.clients[client]
	if !ok {
		return nil, fmt.Errorf("enginetest: unknown client handle %d", client)
	}
	if cs.closed {
		return nil, fmt.Errorf("enginetest: client %d is closed", client)
	}
	return cs, nil
}

func (e *Engine) takeForced() (forcedError, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.forced) == 0 {
		return forcedError{}, false
	}
	f := e.forced[0]
	e.forced = e.forced[1:]
	return f, true
}

func (e *Engine) drain(reverse bool) []func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.held = false
	out := e.queue
	e.queue = nil
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// deliverValue projects value and invokes the completion. The projection is
// freed right after the callback returns, so a binding that retains native
// memory instead of copying fails loudly under the race detector.
func (e *Engine) deliverValue(cs *clientState, slot uint64, value any) {
	e.deliver(func() {
		arena := ffi.NewArena()
		h, err := ffi.EncodeValue(arena, value)
		if err != nil {
			arena.Release()
			e.completeError(cs, slot, ffi.ErrorUnspecified, err.Error())
			return
		}
		cs.complete(slot, (*ffi.Value)(h), nil)
		arena.Release()
	})
}

func (e *Engine) deliverError(cs *clientState, slot uint64, kind ffi.ErrorKind, msg string) {
	e.deliver(func() {
		e.completeError(cs, slot, kind, msg)
	})
}

func (e *Engine) completeError(cs *clientState, slot uint64, kind ffi.ErrorKind, msg string) {
	arena := ffi.NewArena()
	info := ffi.ErrorInfo{
		Kind:    kind,
		Message: arena.String(msg),
		Len:     int64(len(msg)),
	}
	cs.complete(slot, nil, &info)
	arena.Release()
}

func (e *Engine) deliver(fn func()) {
	e.mu.Lock()
	if e.held {
		e.queue = append(e.queue, fn)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	fn()
}

// run executes one command, fanning out per node when the route says so.
func (e *Engine) run(verb uint32, args [][]byte, route *ffi.RouteView) (any, *engineError) {
	if route != nil && (route.Type == ffi.RouteAllNodes || route.Type == ffi.RouteAllPrimaries) {
		nodes := e.nodes
		if route.Type == ffi.RouteAllPrimaries {
			nodes = e.nodes[:2]
		}
		out := make(map[string]any, len(nodes))
		for _, node := range nodes {
			v, eerr := e.runSingle(verb, args)
			if eerr != nil {
				return nil, eerr
			}
			out[node] = v
		}
		return out, nil
	}
	return e.runSingle(verb, args)
}

func (e *Engine) runSingle(verb uint32, args [][]byte) (any, *engineError) {
	switch verb {
	case kvbridge.Ping:
		if len(args) == 0 {
			return ffi.Simple("PONG"), nil
		}
		return string(args[0]), nil
	case kvbridge.Echo:
		return string(args[0]), nil
	case kvbridge.Get:
		v, ok := e.strings.Load(string(args[0]))
		if !ok {
			return nil, nil
		}
		return v, nil
	case kvbridge.Set:
		e.strings.Store(string(args[0]), string(args[1]))
		return ffi.Acknowledged{}, nil
	case kvbridge.Del:
		var n int64
		for _, key := range args {
			if _, ok := e.strings.LoadAndDelete(string(key)); ok {
				n++
			}
			if _, ok := e.sets.LoadAndDelete(string(key)); ok {
				n++
			}
		}
		return n, nil
	case kvbridge.Exists:
		var n int64
		for _, key := range args {
			if _, ok := e.strings.Load(string(key)); ok {
				n++
			} else if _, ok := e.sets.Load(string(key)); ok {
				n++
			}
		}
		return n, nil
	case kvbridge.TTL:
		if _, ok := e.strings.Load(string(args[0])); ok {
			return int64(-1), nil
		}
		return int64(-2), nil
	case kvbridge.MGet:
		out := make([]any, len(args))
		for i, key := range args {
			if v, ok := e.strings.Load(string(key)); ok {
				out[i] = v
			}
		}
		return out, nil
	case kvbridge.MSet:
		for i := 0; i+1 < len(args); i += 2 {
			e.strings.Store(string(args[i]), string(args[i+1]))
		}
		return ffi.Acknowledged{}, nil
	case kvbridge.Incr:
		return e.addToKey(string(args[0]), 1)
	case kvbridge.IncrBy:
		n, err := parseInt(args[1])
		if err != nil {
			return nil, err
		}
		return e.addToKey(string(args[0]), n)
	case kvbridge.Decr:
		return e.addToKey(string(args[0]), -1)
	case kvbridge.DecrBy:
		n, err := parseInt(args[1])
		if err != nil {
			return nil, err
		}
		return e.addToKey(string(args[0]), -n)
	case kvbridge.Append:
		key := string(args[0])
		var appended string
		e.strings.Compute(key, func(old string, _ bool) (string, bool) {
			appended = old + string(args[1])
			return appended, false
		})
		return int64(len(appended)), nil
	case kvbridge.Strlen:
		v, _ := e.strings.Load(string(args[0]))
		return int64(len(v)), nil
	case kvbridge.SMembers:
		set, _ := e.sets.Load(string(args[0]))
		out := make(map[string]struct{}, len(set))
		for m := range set {
			out[m] = struct{}{}
		}
		return out, nil
	case kvbridge.Info:
		return e.infoText(), nil
	case kvbridge.Time:
		now := time.Now()
		return []any{
			strconv.FormatInt(now.Unix(), 10),
			strconv.FormatInt(int64(now.Nanosecond()/1000), 10),
		}, nil
	case kvbridge.DBSize:
		return int64(e.strings.Size() + e.sets.Size()), nil
	case kvbridge.FlushAll:
		e.strings.Clear()
		e.sets.Clear()
		return ffi.Acknowledged{}, nil
	case kvbridge.Select:
		if _, err := parseInt(args[0]); err != nil {
			return nil, err
		}
		return ffi.Acknowledged{}, nil
	case kvbridge.CustomCommand:
		return e.runCustom(args)
	default:
		return nil, &engineError{kind: ffi.ErrorUnspecified, msg: fmt.Sprintf("unsupported request type %d", verb)}
	}
}

// runCustom maps a textual command name onto the verb table, plus the few
// write commands tests need that have no typed helper.
func (e *Engine) runCustom(args [][]byte) (any, *engineError) {
	if len(args) == 0 {
		return nil, &engineError{kind: ffi.ErrorUnspecified, msg: "empty command"}
	}
	name := strings.ToUpper(string(args[0]))
	rest := args[1:]
	switch name {
	case "SADD":
		if len(rest) < 2 {
			return nil, &engineError{kind: ffi.ErrorUnspecified, msg: "wrong number of arguments for 'sadd'"}
		}
		key := string(rest[0])
		e.mu.Lock()
		set, _ := e.sets.Load(key)
		next := make(map[string]struct{}, len(set)+len(rest)-1)
		for m := range set {
			next[m] = struct{}{}
		}
		var added int64
		for _, m := range rest[1:] {
			if _, ok := next[string(m)]; !ok {
				next[string(m)] = struct{}{}
				added++
			}
		}
		e.sets.Store(key, next)
		e.mu.Unlock()
		return added, nil
	case "CONFIG":
		// CONFIG GET <param> answers with a flat field-value map.
		if len(rest) == 2 && strings.ToUpper(string(rest[0])) == "GET" {
			return map[string]any{string(rest[1]): "default"}, nil
		}
		return ffi.Acknowledged{}, nil
	}
	if verb, ok := customVerbs[name]; ok {
		return e.runSingle(verb, rest)
	}
	return nil, &engineError{kind: ffi.ErrorUnspecified, msg: fmt.Sprintf("unknown command '%s'", strings.ToLower(name))}
}

var customVerbs = map[string]uint32{
	"PING":     kvbridge.Ping,
	"ECHO":     kvbridge.Echo,
	"GET":      kvbridge.Get,
	"SET":      kvbridge.Set,
	"DEL":      kvbridge.Del,
	"EXISTS":   kvbridge.Exists,
	"TTL":      kvbridge.TTL,
	"MGET":     kvbridge.MGet,
	"MSET":     kvbridge.MSet,
	"INCR":     kvbridge.Incr,
	"INCRBY":   kvbridge.IncrBy,
	"DECR":     kvbridge.Decr,
	"DECRBY":   kvbridge.DecrBy,
	"APPEND":   kvbridge.Append,
	"STRLEN":   kvbridge.Strlen,
	"SMEMBERS": kvbridge.SMembers,
	"INFO":     kvbridge.Info,
	"TIME":     kvbridge.Time,
	"DBSIZE":   kvbridge.DBSize,
	"FLUSHALL": kvbridge.FlushAll,
}

func (e *Engine) addToKey(key string, delta int64) (any, *engineError) {
	var (
		result   int64
		parseErr *engineError
	)
	e.strings.Compute(key, func(old string, loaded bool) (string, bool) {
		var cur int64
		if loaded {
			var err error
			cur, err = strconv.ParseInt(old, 10, 64)
			if err != nil {
				parseErr = &engineError{kind: ffi.ErrorUnspecified, msg: "value is not an integer or out of range"}
				return old, false
			}
		}
		result = cur + delta
		return strconv.FormatInt(result, 10), false
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return result, nil
}

func (e *Engine) infoText() string {
	var b strings.Builder
	b.WriteString("# Server\r\n")
	b.WriteString("engine_version:1.0.0\r\n")
	b.WriteString("# Keyspace\r\n")
	fmt.Fprintf(&b, "db0:keys=%d\r\n", e.strings.Size()+e.sets.Size())
	return b.String()
}

func parseInt(arg []byte) (int64, *engineError) {
	n, err := strconv.ParseInt(string(arg), 10, 64)
	if err != nil {
		return 0, &engineError{kind: ffi.ErrorUnspecified, msg: "value is not an integer or out of range"}
	}
	return n, nil
}
