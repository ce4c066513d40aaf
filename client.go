package kvbridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/sony/gobreaker/v2"

	"github.com/kvbridge/kvbridge/ffi"
)

// baseClient carries everything shared between the standalone and cluster
// clients: the engine handle, the correlation table, counters, and the
// optional compression and breaker layers.
type baseClient struct {
	engine ffi.Engine
	handle ffi.ClientHandle
	reg    *registry
	stats  *Stats
	comp   *compressor
	brk    *gobreaker.CircuitBreaker[any]
	logger *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

func newBaseClient(engine ffi.Engine, cfg *Config, clusterMode bool) (*baseClient, error) {
	cfg.setDefaults()
	params, err := cfg.connectionParams(clusterMode)
	if err != nil {
		return nil, err
	}
	reg, err := newRegistry(int32(cfg.InflightLimit))
	if err != nil {
		return nil, err
	}
	b := &baseClient{
		engine: engine,
		reg:    reg,
		stats:  &Stats{},
		logger: cfg.Logger,
	}
	if cfg.Compression != nil {
		b.comp, err = newCompressor(*cfg.Compression, b.stats)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Breaker != nil {
		name := cfg.ClientName
		if name == "" {
			name = "kvbridge"
		}
		b.brk = newBreaker(name, *cfg.Breaker)
	}

	proj := ffi.NewConnectionProjection(params)
	h, err := proj.Handle()
	if err != nil {
		return nil, err
	}
	handle, err := engine.CreateClient(h, b.onCompletion)
	proj.Release()
	if err != nil {
		return nil, err
	}
	b.handle = handle
	b.logger.Debug("kvbridge: client connected", "addresses", cfg.Addresses, "cluster", clusterMode)
	return b, nil
}

// onCompletion is the single entry point for engine completions. It runs on
// whatever thread the engine invokes it from, so it only decodes, converts,
// and hands the result to the correlation table.
func (b *baseClient) onCompletion(slot uint64, resp *ffi.Value, errInfo *ffi.ErrorInfo) {
	if errInfo != nil {
		b.stats.recordFailed()
		b.reg.resolve(slot, nil, &RequestError{Kind: errInfo.Kind, Msg: errInfo.Text()})
		return
	}
	raw, err := ffi.Decode(unsafe.Pointer(resp))
	if err == nil {
		if cmd := b.reg.commandAt(slot); cmd != nil {
			raw, err = cmd.Convert(raw)
		}
	}
	if err != nil {
		b.stats.recordFailed()
		b.reg.resolve(slot, nil, err)
		return
	}
	b.stats.recordCompleted()
	b.reg.resolve(slot, raw, nil)
}

// execute runs one command end to end: reserve a slot, project, submit,
// await, with the breaker wrapped around the whole exchange when configured.
func (b *baseClient) execute(ctx context.Context, cmd *Command, route Route) (any, error) {
	if b.closed.Load() {
		return nil, ErrClientClosed
	}
	if b.brk != nil {
		return b.brk.Execute(func() (any, error) {
			return b.submit(ctx, cmd, route)
		})
	}
	return b.submit(ctx, cmd, route)
}

func (b *baseClient) submit(ctx context.Context, cmd *Command, route Route) (any, error) {
	slot, err := b.reg.reserve(ctx, cmd)
	if err != nil {
		return nil, err
	}

	proj := ffi.NewCommandProjection(cmd.Verb(), cmd.Args())
	handle, err := proj.Handle()

	var routeProj *ffi.RouteProjection
	var routeHandle unsafe.Pointer
	if err == nil && route != nil {
		routeProj, err = route.projection()
		if err == nil {
			routeHandle, err = routeProj.Handle()
		}
	}
	if err == nil {
		b.stats.recordSubmitted()
		err = b.engine.Submit(b.handle, slot.index, handle, routeHandle)
		if err != nil {
			b.stats.recordFailed()
		}
	}
	// The engine copies what it needs before Submit returns; the projected
	// blocks are dead weight from here on.
	proj.Release()
	if routeProj != nil {
		routeProj.Release()
	}
	if err != nil {
		// No completion will arrive for this slot; resolve it ourselves.
		b.reg.complete(slot, nil, err)
	}
	return b.reg.await(ctx, slot)
}

// executeBatch mirrors execute for a command batch. The per-entry conversion
// happens in the callback through the synthetic batch descriptor.
func (b *baseClient) executeBatch(ctx context.Context, batch *Batch, raiseOnError bool, opts *BatchOptions) ([]any, error) {
	if b.closed.Load() {
		return nil, ErrClientClosed
	}
	run := func() (any, error) {
		return b.submitBatch(ctx, batch, raiseOnError, opts)
	}
	var (
		raw any
		err error
	)
	if b.brk != nil {
		raw, err = b.brk.Execute(run)
	} else {
		raw, err = run()
	}
	if err != nil {
		return nil, err
	}
	out, ok := raw.([]any)
	if !ok {
		return nil, typeViolation("Array", raw)
	}
	return out, nil
}

func (b *baseClient) submitBatch(ctx context.Context, batch *Batch, raiseOnError bool, opts *BatchOptions) (any, error) {
	slot, err := b.reg.reserve(ctx, batch.command(raiseOnError))
	if err != nil {
		return nil, err
	}

	proj := ffi.NewBatchProjection(batch.atomic)
	for _, cmd := range batch.cmds {
		proj.Append(cmd.Verb(), cmd.Args())
	}
	handle, err := proj.Handle()

	// raiseOnError travels inside the options block, so one is always
	// projected even when the caller gave no options.
	if opts == nil {
		opts = &BatchOptions{}
	}
	var optsProj *ffi.BatchOptionsProjection
	var optsHandle unsafe.Pointer
	if err == nil {
		optsProj, err = opts.projection(raiseOnError)
		if err == nil {
			optsHandle, err = optsProj.Handle()
		}
	}
	if err == nil {
		b.stats.recordSubmitted()
		err = b.engine.SubmitBatch(b.handle, slot.index, handle, optsHandle)
		if err != nil {
			b.stats.recordFailed()
		}
	}
	proj.Release()
	if optsProj != nil {
		optsProj.Release()
	}
	if err != nil {
		b.reg.complete(slot, nil, err)
	}
	return b.reg.await(ctx, slot)
}

// Close tears the connection down. Requests still pending afterwards resolve
// with a ClosingError. Safe to call more than once.
func (b *baseClient) Close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.engine.CloseClient(b.handle)
		n := b.reg.cancelAll(ErrClientClosed)
		b.stats.recordCancelled(n)
		b.logger.Debug("kvbridge: client closed", "cancelled", n)
	})
}

// Stats returns a snapshot of the client's counters.
func (b *baseClient) Stats() ClientStats {
	return b.stats.Snapshot()
}

// storeValue applies value compression on the write path.
func (b *baseClient) storeValue(v string) string {
	if b.comp == nil {
		return v
	}
	return b.comp.compress(v)
}

// loadValue reverses storeValue on the read path.
func (b *baseClient) loadValue(v string) (string, error) {
	if b.comp == nil {
		return v, nil
	}
	return b.comp.decompress(v)
}

// Client is a standalone (non-cluster) client. All operations are safe for
// concurrent use; each call occupies one correlation slot for its duration.
type Client struct {
	*baseClient
}

// NewClient connects engine to the configured standalone deployment.
func NewClient(engine ffi.Engine, cfg Config) (*Client, error) {
	base, err := newBaseClient(engine, &cfg, false)
	if err != nil {
		return nil, err
	}
	return &Client{baseClient: base}, nil
}

// Get fetches the value of key. A missing key yields a nil result, not an
// error.
func (c *Client) Get(ctx context.Context, key string) (Result[string], error) {
	res, err := nullableString(c.execute(ctx, getCommand(key), nil))
	if err != nil || res.IsNil() {
		return res, err
	}
	plain, err := c.loadValue(res.Value())
	if err != nil {
		return NilResult[string](), err
	}
	return NewResult(plain), nil
}

// Set stores value under key, replacing any previous value.
func (c *Client) Set(ctx context.Context, key, value string) (string, error) {
	return stringOf(c.execute(ctx, setCommand(key, c.storeValue(value)), nil))
}

// Del removes the given keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	return intOf(c.execute(ctx, delCommand(keys), nil))
}

// Exists returns how many of the given keys exist.
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	return intOf(c.execute(ctx, existsCommand(keys), nil))
}

// TTL returns the remaining time to live of key in seconds, -1 when the key
// has no expiry, -2 when it does not exist.
func (c *Client) TTL(ctx context.Context, key string) (int64, error) {
	return intOf(c.execute(ctx, ttlCommand(key), nil))
}

// MGet fetches multiple keys in one round trip. Missing keys come back as
// nil results at their position.
func (c *Client) MGet(ctx context.Context, keys ...string) ([]Result[string], error) {
	raw, err := c.execute(ctx, mgetCommand(keys), nil)
	if err != nil {
		return nil, err
	}
	out, ok := raw.([]Result[string])
	if !ok {
		return nil, typeViolation("Array", raw)
	}
	for i, r := range out {
		if r.IsNil() {
			continue
		}
		plain, err := c.loadValue(r.Value())
		if err != nil {
			return nil, err
		}
		out[i] = NewResult(plain)
	}
	return out, nil
}

// MSet stores all given key-value pairs in one round trip.
func (c *Client) MSet(ctx context.Context, pairs map[string]string) (string, error) {
	stored := make(map[string]string, len(pairs))
	for k, v := range pairs {
		stored[k] = c.storeValue(v)
	}
	return stringOf(c.execute(ctx, msetCommand(stored), nil))
}

// Incr increments the integer stored at key by one and returns the new value.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return intOf(c.execute(ctx, incrCommand(key), nil))
}

// IncrBy increments the integer stored at key by amount.
func (c *Client) IncrBy(ctx context.Context, key string, amount int64) (int64, error) {
	return intOf(c.execute(ctx, incrByCommand(key, amount), nil))
}

// Decr decrements the integer stored at key by one.
func (c *Client) Decr(ctx context.Context, key string) (int64, error) {
	return intOf(c.execute(ctx, decrCommand(key), nil))
}

// DecrBy decrements the integer stored at key by amount.
func (c *Client) DecrBy(ctx context.Context, key string, amount int64) (int64, error) {
	return intOf(c.execute(ctx, decrByCommand(key, amount), nil))
}

// Append appends value to the string at key and returns the new length.
// Incompatible with value compression; the append applies to the stored
// bytes as is.
func (c *Client) Append(ctx context.Context, key, value string) (int64, error) {
	return intOf(c.execute(ctx, appendCommand(key, value), nil))
}

// Strlen returns the length of the string stored at key, zero when missing.
func (c *Client) Strlen(ctx context.Context, key string) (int64, error) {
	return intOf(c.execute(ctx, strlenCommand(key), nil))
}

// SMembers returns all members of the set stored at key.
func (c *Client) SMembers(ctx context.Context, key string) (map[string]struct{}, error) {
	raw, err := c.execute(ctx, smembersCommand(key), nil)
	if err != nil {
		return nil, err
	}
	set, ok := raw.(map[string]struct{})
	if !ok {
		return nil, typeViolation("Set", raw)
	}
	return set, nil
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) (string, error) {
	return stringOf(c.execute(ctx, pingCommand(""), nil))
}

// PingWithMessage checks the connection and returns the message back.
func (c *Client) PingWithMessage(ctx context.Context, message string) (string, error) {
	return stringOf(c.execute(ctx, pingCommand(message), nil))
}

// Echo returns message as the server saw it.
func (c *Client) Echo(ctx context.Context, message string) (string, error) {
	return stringOf(c.execute(ctx, echoCommand(message), nil))
}

// Select switches the connection to another logical database.
func (c *Client) Select(ctx context.Context, index int64) (string, error) {
	return stringOf(c.execute(ctx, selectCommand(index), nil))
}

// DBSize returns the number of keys in the current database.
func (c *Client) DBSize(ctx context.Context) (int64, error) {
	return intOf(c.execute(ctx, dbsizeCommand(), nil))
}

// FlushAll removes all keys from all databases.
func (c *Client) FlushAll(ctx context.Context) (string, error) {
	return stringOf(c.execute(ctx, flushAllCommand(), nil))
}

// Info returns the server's status and statistics text.
func (c *Client) Info(ctx context.Context) (string, error) {
	return stringOf(c.execute(ctx, infoCommand(), nil))
}

// Time returns the server time as unix seconds and microseconds.
func (c *Client) Time(ctx context.Context) ([]string, error) {
	raw, err := c.execute(ctx, timeCommand(), nil)
	if err != nil {
		return nil, err
	}
	out, ok := raw.([]string)
	if !ok {
		return nil, typeViolation("Array", raw)
	}
	return out, nil
}

// Do submits a caller-built descriptor and returns its converted result.
// The typed methods above are thin wrappers over the same path.
func (c *Client) Do(ctx context.Context, cmd *Command) (any, error) {
	return c.execute(ctx, cmd, nil)
}

// CustomCommand sends an arbitrary command and returns the decoded response
// without any conversion. args[0] is the command name.
func (c *Client) CustomCommand(ctx context.Context, args ...string) (any, error) {
	return c.execute(ctx, NewRawCommand(CustomCommand, args...), nil)
}

// Exec runs the batch and returns one entry per command. When raiseOnError
// is false, a command that failed contributes its error as the entry instead
// of aborting the whole batch.
func (c *Client) Exec(ctx context.Context, batch *Batch, raiseOnError bool) ([]any, error) {
	return c.executeBatch(ctx, batch, raiseOnError, nil)
}

// ExecWithOptions is Exec with an explicit timeout and retry policy.
func (c *Client) ExecWithOptions(ctx context.Context, batch *Batch, raiseOnError bool, opts BatchOptions) ([]any, error) {
	return c.executeBatch(ctx, batch, raiseOnError, &opts)
}
