package kvbridge

import "strconv"

// Descriptor builders for the supported commands. Each one pins down the
// verb, the argument layout, whether a nil response is legitimate, and the
// converter that narrows the decoded value to the operation's return type.

func getCommand(key string) *Command {
	return NewCommand(Get, []string{key}, true, "String", toString)
}

func setCommand(key, value string) *Command {
	return NewCommand(Set, []string{key, value}, false, `"OK"`, toOK)
}

func delCommand(keys []string) *Command {
	return NewCommand(Del, keys, false, "Int", toInt)
}

func existsCommand(keys []string) *Command {
	return NewCommand(Exists, keys, false, "Int", toInt)
}

func ttlCommand(key string) *Command {
	return NewCommand(TTL, []string{key}, false, "Int", toInt)
}

func mgetCommand(keys []string) *Command {
	return NewCommand(MGet, keys, false, "Array", toStringOrNilArray)
}

func msetCommand(pairs map[string]string) *Command {
	args := make([]string, 0, 2*len(pairs))
	for k, v := range pairs {
		args = append(args, k, v)
	}
	return NewCommand(MSet, args, false, `"OK"`, toOK)
}

func incrCommand(key string) *Command {
	return NewCommand(Incr, []string{key}, false, "Int", toInt)
}

func incrByCommand(key string, amount int64) *Command {
	return NewCommand(IncrBy, []string{key, strconv.FormatInt(amount, 10)}, false, "Int", toInt)
}

func decrCommand(key string) *Command {
	return NewCommand(Decr, []string{key}, false, "Int", toInt)
}

func decrByCommand(key string, amount int64) *Command {
	return NewCommand(DecrBy, []string{key, strconv.FormatInt(amount, 10)}, false, "Int", toInt)
}

func appendCommand(key, value string) *Command {
	return NewCommand(Append, []string{key, value}, false, "Int", toInt)
}

func strlenCommand(key string) *Command {
	return NewCommand(Strlen, []string{key}, false, "Int", toInt)
}

func smembersCommand(key string) *Command {
	return NewCommand(SMembers, []string{key}, false, "Set", toStringSet)
}

func pingCommand(message string) *Command {
	if message == "" {
		return NewCommand(Ping, nil, false, "String", toString)
	}
	return NewCommand(Ping, []string{message}, false, "String", toString)
}

func echoCommand(message string) *Command {
	return NewCommand(Echo, []string{message}, false, "String", toString)
}

func selectCommand(index int64) *Command {
	return NewCommand(Select, []string{strconv.FormatInt(index, 10)}, false, `"OK"`, toOK)
}

func dbsizeCommand() *Command {
	return NewCommand(DBSize, nil, false, "Int", toInt)
}

func flushAllCommand() *Command {
	return NewCommand(FlushAll, nil, false, `"OK"`, toOK)
}

func infoCommand(sections ...string) *Command {
	return NewCommand(Info, sections, false, "String", toString)
}

func timeCommand() *Command {
	return NewCommand(Time, nil, false, "Array", toStringArray)
}

func toStringArray(raw any) (any, error) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, typeViolation("Array", raw)
	}
	out := make([]string, len(arr))
	for i, e := range arr {
		s, ok := e.(string)
		if !ok {
			return nil, typeViolation("String", e)
		}
		out[i] = s
	}
	return out, nil
}

// Typed narrowing of execute results. Conversion already happened in the
// completion path; these only peel the any back off.

func stringOf(raw any, err error) (string, error) {
	if err != nil {
		return "", err
	}
	s, ok := raw.(string)
	if !ok {
		return "", typeViolation("String", raw)
	}
	return s, nil
}

func intOf(raw any, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	n, ok := raw.(int64)
	if !ok {
		return 0, typeViolation("Int", raw)
	}
	return n, nil
}

func nullableString(raw any, err error) (Result[string], error) {
	if err != nil {
		return NilResult[string](), err
	}
	if raw == nil {
		return NilResult[string](), nil
	}
	s, ok := raw.(string)
	if !ok {
		return NilResult[string](), typeViolation("String", raw)
	}
	return NewResult(s), nil
}
