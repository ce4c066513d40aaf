package kvbridge

import (
	"context"

	"github.com/kvbridge/kvbridge/ffi"
)

// ClusterClient targets a cluster deployment. Key-addressed operations route
// by hash slot inside the engine; the *WithRoute variants override that and
// may fan out to several nodes, in which case the result is a per-node
// mapping wrapped in a ClusterValue.
type ClusterClient struct {
	*baseClient
}

// NewClusterClient connects engine to the configured cluster deployment.
func NewClusterClient(engine ffi.Engine, cfg Config) (*ClusterClient, error) {
	base, err := newBaseClient(engine, &cfg, true)
	if err != nil {
		return nil, err
	}
	return &ClusterClient{baseClient: base}, nil
}

// Get fetches the value of key from the node owning its slot.
func (c *ClusterClient) Get(ctx context.Context, key string) (Result[string], error) {
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

// Set stores value under key on the node owning its slot.
func (c *ClusterClient) Set(ctx context.Context, key, value string) (string, error) {
	return stringOf(c.execute(ctx, setCommand(key, c.storeValue(value)), nil))
}

// Del removes the given keys and returns how many existed.
func (c *ClusterClient) Del(ctx context.Context, keys ...string) (int64, error) {
	return intOf(c.execute(ctx, delCommand(keys), nil))
}

// Exists returns how many of the given keys exist.
func (c *ClusterClient) Exists(ctx context.Context, keys ...string) (int64, error) {
	return intOf(c.execute(ctx, existsCommand(keys), nil))
}

// Incr increments the integer stored at key by one.
func (c *ClusterClient) Incr(ctx context.Context, key string) (int64, error) {
	return intOf(c.execute(ctx, incrCommand(key), nil))
}

// Strlen returns the length of the string stored at key.
func (c *ClusterClient) Strlen(ctx context.Context, key string) (int64, error) {
	return intOf(c.execute(ctx, strlenCommand(key), nil))
}

// SMembers returns all members of the set stored at key.
func (c *ClusterClient) SMembers(ctx context.Context, key string) (map[string]struct{}, error) {
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

// Ping checks the connection against a random node.
func (c *ClusterClient) Ping(ctx context.Context) (string, error) {
	return stringOf(c.execute(ctx, pingCommand(""), nil))
}

// PingWithRoute checks the targeted nodes. With a multi-node route every
// node must answer; the single reply string is returned either way.
func (c *ClusterClient) PingWithRoute(ctx context.Context, route Route) (ClusterValue[any], error) {
	return c.routedValue(ctx, pingCommand(""), route)
}

// Info returns the status text of every node, keyed by node address.
func (c *ClusterClient) Info(ctx context.Context) (map[string]string, error) {
	raw, err := c.execute(ctx, infoCommand().ForMultiNode(), AllPrimaries)
	if err != nil {
		return nil, err
	}
	nodes, ok := raw.(map[string]any)
	if !ok {
		return nil, typeViolation("Map", raw)
	}
	out := make(map[string]string, len(nodes))
	for addr, v := range nodes {
		s, ok := v.(string)
		if !ok {
			return nil, typeViolation("String", v)
		}
		out[addr] = s
	}
	return out, nil
}

// InfoWithRoute returns status text for the targeted nodes.
func (c *ClusterClient) InfoWithRoute(ctx context.Context, route Route) (ClusterValue[any], error) {
	return c.routedValue(ctx, infoCommand(), route)
}

// FlushAllWithRoute removes all keys on the targeted nodes.
func (c *ClusterClient) FlushAllWithRoute(ctx context.Context, route Route) (string, error) {
	cmd := flushAllCommand()
	if route != nil && route.multiNode() {
		// Every node answers OK or the whole call fails; collapse to one.
		raw, err := c.execute(ctx, cmd.ForMultiNode(), route)
		if err != nil {
			return "", err
		}
		return OKResponse, assertAllOK(raw)
	}
	return stringOf(c.execute(ctx, cmd, route))
}

// Do submits a caller-built descriptor routed to a random node.
func (c *ClusterClient) Do(ctx context.Context, cmd *Command) (any, error) {
	return c.execute(ctx, cmd, RandomRoute)
}

// DoWithRoute submits a caller-built descriptor to the targeted nodes. The
// caller is responsible for promoting the descriptor with ForMultiNode or
// ForClusterValue when the route fans out.
func (c *ClusterClient) DoWithRoute(ctx context.Context, cmd *Command, route Route) (any, error) {
	return c.execute(ctx, cmd, route)
}

// CustomCommand sends an arbitrary command to a random node.
func (c *ClusterClient) CustomCommand(ctx context.Context, args ...string) (ClusterValue[any], error) {
	return c.routedValue(ctx, NewRawCommand(CustomCommand, args...), RandomRoute)
}

// CustomCommandWithRoute sends an arbitrary command to the targeted nodes.
func (c *ClusterClient) CustomCommandWithRoute(ctx context.Context, args []string, route Route) (ClusterValue[any], error) {
	return c.routedValue(ctx, NewRawCommand(CustomCommand, args...), route)
}

// Exec runs the batch, routed by the keys it touches.
func (c *ClusterClient) Exec(ctx context.Context, batch *Batch, raiseOnError bool) ([]any, error) {
	return c.executeBatch(ctx, batch, raiseOnError, nil)
}

// ExecWithOptions is Exec with an explicit route, timeout and retry policy.
func (c *ClusterClient) ExecWithOptions(ctx context.Context, batch *Batch, raiseOnError bool, opts BatchOptions) ([]any, error) {
	return c.executeBatch(ctx, batch, raiseOnError, &opts)
}

// routedValue promotes the command's result into a ClusterValue whose shape
// follows the route: single-node routes yield a single value, fan-out routes
// yield a per-node mapping.
func (c *ClusterClient) routedValue(ctx context.Context, cmd *Command, route Route) (ClusterValue[any], error) {
	multi := route != nil && route.multiNode()
	raw, err := c.execute(ctx, cmd.ForClusterValue(multi), route)
	if err != nil {
		return ClusterValue[any]{}, err
	}
	if raw == nil {
		// Nullable command, nil reply: a single value holding nil.
		return SingleClusterValue[any](nil), nil
	}
	v, ok := raw.(ClusterValue[any])
	if !ok {
		return ClusterValue[any]{}, typeViolation("ClusterValue", raw)
	}
	return v, nil
}

func assertAllOK(raw any) error {
	nodes, ok := raw.(map[string]any)
	if !ok {
		return typeViolation("Map", raw)
	}
	for _, v := range nodes {
		if s, ok := v.(string); !ok || s != OKResponse {
			return typeViolation(`"OK"`, v)
		}
	}
	return nil
}
