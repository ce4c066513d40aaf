package kvbridge

import (
	"time"

	"github.com/kvbridge/kvbridge/ffi"
)

// Batch accumulates commands for a single round trip. A plain batch is a
// pipeline; an atomic batch runs as a transaction. Builder methods return the
// batch for chaining and are not safe for concurrent use.
type Batch struct {
	atomic bool
	cmds   []*Command
}

// NewBatch returns a pipeline batch.
func NewBatch() *Batch {
	return &Batch{}
}

// NewAtomicBatch returns a transactional batch.
func NewAtomicBatch() *Batch {
	return &Batch{atomic: true}
}

// Len reports how many commands the batch holds.
func (b *Batch) Len() int {
	return len(b.cmds)
}

func (b *Batch) add(cmd *Command) *Batch {
	b.cmds = append(b.cmds, cmd)
	return b
}

func (b *Batch) Get(key string) *Batch                { return b.add(getCommand(key)) }
func (b *Batch) Set(key, value string) *Batch         { return b.add(setCommand(key, value)) }
func (b *Batch) Del(keys ...string) *Batch            { return b.add(delCommand(keys)) }
func (b *Batch) Exists(keys ...string) *Batch         { return b.add(existsCommand(keys)) }
func (b *Batch) TTL(key string) *Batch                { return b.add(ttlCommand(key)) }
func (b *Batch) MGet(keys ...string) *Batch           { return b.add(mgetCommand(keys)) }
func (b *Batch) MSet(pairs map[string]string) *Batch  { return b.add(msetCommand(pairs)) }
func (b *Batch) Incr(key string) *Batch               { return b.add(incrCommand(key)) }
func (b *Batch) IncrBy(key string, n int64) *Batch    { return b.add(incrByCommand(key, n)) }
func (b *Batch) Decr(key string) *Batch               { return b.add(decrCommand(key)) }
func (b *Batch) DecrBy(key string, n int64) *Batch    { return b.add(decrByCommand(key, n)) }
func (b *Batch) Append(key, value string) *Batch      { return b.add(appendCommand(key, value)) }
func (b *Batch) Strlen(key string) *Batch             { return b.add(strlenCommand(key)) }
func (b *Batch) SMembers(key string) *Batch           { return b.add(smembersCommand(key)) }
func (b *Batch) Ping() *Batch                         { return b.add(pingCommand("")) }
func (b *Batch) Echo(message string) *Batch           { return b.add(echoCommand(message)) }
func (b *Batch) Info() *Batch                         { return b.add(infoCommand()) }
func (b *Batch) CustomCommand(args ...string) *Batch  { return b.add(NewRawCommand(CustomCommand, args...)) }

// command wraps the batch as a synthetic descriptor whose conversion applies
// each entry's own converter to the matching response position. With
// raiseOnError off, a failed entry contributes its error as the value.
func (b *Batch) command(raiseOnError bool) *Command {
	cmds := b.cmds
	return NewCommand(0, nil, false, "Array", func(raw any) (any, error) {
		entries, ok := raw.([]any)
		if !ok {
			return nil, typeViolation("Array", raw)
		}
		if len(entries) != len(cmds) {
			return nil, typeViolation("Array", raw)
		}
		out := make([]any, len(entries))
		for i, entry := range entries {
			v, err := cmds[i].Convert(entry)
			if err != nil {
				if raiseOnError {
					return nil, err
				}
				out[i] = err
				continue
			}
			out[i] = v
		}
		return out, nil
	})
}

// BatchOptions tunes a single Exec call.
type BatchOptions struct {
	// Timeout bounds the batch once submitted. Nil leaves the client
	// default in place.
	Timeout *time.Duration

	// Route targets the whole batch at a specific node. Cluster mode only.
	Route Route

	// RetryServerError resubmits entries that failed with a retriable
	// server error. RetryConnectionError resubmits after a reconnect.
	// Only meaningful for non-atomic batches.
	RetryServerError     bool
	RetryConnectionError bool
}

func (o *BatchOptions) projection(raiseOnError bool) (*ffi.BatchOptionsProjection, error) {
	var route *ffi.RouteProjection
	if o.Route != nil {
		var err error
		route, err = o.Route.projection()
		if err != nil {
			return nil, err
		}
	}
	hasTimeout := o.Timeout != nil
	var millis uint32
	if hasTimeout {
		millis = uint32(o.Timeout.Milliseconds())
	}
	return ffi.NewBatchOptionsProjection(o.RetryServerError, o.RetryConnectionError, raiseOnError, hasTimeout, millis, route), nil
}
