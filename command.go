package kvbridge

// ConverterFunc turns a decoded raw value into the caller-visible result.
// It is only ever invoked with a non-nil value; nil handling happens before
// the converter per the descriptor's nullability flag.
type ConverterFunc func(raw any) (any, error)

// Command is an immutable description of one outbound operation: the
// protocol verb, the ordered argument vector, whether a nil response is part
// of the contract, and the conversion from the decoded raw value to the
// final result. A command is consumed once by the projection layer and once
// by Convert.
type Command struct {
	verb     uint32
	args     []string
	nullable bool
	expects  string
	convert  ConverterFunc
}

// NewCommand builds a descriptor. expects names the raw shape the converter
// was written against and is quoted in contract-violation failures. A nil
// converter passes the raw value through unchanged.
func NewCommand(verb uint32, args []string, nullable bool, expects string, convert ConverterFunc) *Command {
	return &Command{
		verb:     verb,
		args:     args,
		nullable: nullable,
		expects:  expects,
		convert:  convert,
	}
}

// NewRawCommand builds a descriptor for a caller-defined command: nullable,
// no conversion.
func NewRawCommand(verb uint32, args ...string) *Command {
	return NewCommand(verb, args, true, "any", nil)
}

func (c *Command) Verb() uint32 {
	return c.verb
}

func (c *Command) Args() []string {
	return c.args
}

func (c *Command) Nullable() bool {
	return c.nullable
}

// Convert applies the descriptor's conversion to a decoded raw value:
//
//   - nil raw and a nullable descriptor yield nil without invoking the
//     converter;
//   - nil raw and a non-nullable descriptor is a contract violation naming
//     the expected shape;
//   - a raw value that already represents a failure propagates unchanged;
//   - anything else goes through the typed converter, which asserts the
//     runtime shape itself.
func (c *Command) Convert(raw any) (any, error) {
	if err, ok := raw.(error); ok {
		return nil, err
	}
	if raw == nil {
		if c.nullable {
			return nil, nil
		}
		return nil, nilViolation(c.expects)
	}
	if c.convert == nil {
		return raw, nil
	}
	return c.convert(raw)
}

// ForMultiNode derives a descriptor that interprets the raw value as a
// per-node mapping: each node's value goes through this descriptor's
// conversion (nullability included) and the node identities delivered by the
// engine become plain string keys.
func (c *Command) ForMultiNode() *Command {
	inner := c
	return &Command{
		verb:     c.verb,
		args:     c.args,
		nullable: c.nullable,
		expects:  "Map",
		convert: func(raw any) (any, error) {
			m, ok := raw.(map[string]any)
			if !ok {
				return nil, typeViolation("Map", raw)
			}
			converted := make(map[string]any, len(m))
			for node, nodeRaw := range m {
				v, err := inner.Convert(nodeRaw)
				if err != nil {
					return nil, err
				}
				converted[node] = v
			}
			return converted, nil
		},
	}
}

// ForClusterValue derives a descriptor whose result is a ClusterValue[any].
// multiNode is the routing shape decided at call time: true means the request
// fanned out and the raw value is a per-node mapping, false means it targeted
// exactly one node and the raw value is a single aggregate.
func (c *Command) ForClusterValue(multiNode bool) *Command {
	inner := c
	if multiNode {
		multi := c.ForMultiNode()
		return &Command{
			verb:     c.verb,
			args:     c.args,
			nullable: c.nullable,
			expects:  multi.expects,
			convert: func(raw any) (any, error) {
				v, err := multi.Convert(raw)
				if err != nil {
					return nil, err
				}
				return MultiClusterValue[any](v.(map[string]any)), nil
			},
		}
	}
	return &Command{
		verb:     c.verb,
		args:     c.args,
		nullable: c.nullable,
		expects:  c.expects,
		convert: func(raw any) (any, error) {
			v, err := inner.Convert(raw)
			if err != nil {
				return nil, err
			}
			return SingleClusterValue[any](v), nil
		},
	}
}

// Shared typed converters. Each asserts the decoded shape it was written
// against and reports a contract violation otherwise.

func toString(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, typeViolation("String", raw)
	}
	return s, nil
}

func toInt(raw any) (any, error) {
	n, ok := raw.(int64)
	if !ok {
		return nil, typeViolation("Int", raw)
	}
	return n, nil
}

func toOK(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok || s != "OK" {
		return nil, typeViolation(`"OK"`, raw)
	}
	return s, nil
}

func toStringOrNilArray(raw any) (any, error) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, typeViolation("Array", raw)
	}
	out := make([]Result[string], len(arr))
	for i, e := range arr {
		if e == nil {
			out[i] = NilResult[string]()
			continue
		}
		s, ok := e.(string)
		if !ok {
			return nil, typeViolation("String", e)
		}
		out[i] = NewResult(s)
	}
	return out, nil
}

func toStringSet(raw any) (any, error) {
	set, ok := raw.(map[string]struct{})
	if !ok {
		return nil, typeViolation("Set", raw)
	}
	return set, nil
}
