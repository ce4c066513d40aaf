// Package kvbridge is a client binding for a native key-value engine core.
// The engine owns connections, cluster topology and protocol framing; this
// package owns everything managed: command descriptors, projection of
// requests into fixed-layout memory blocks, correlation of asynchronous
// completions back to callers, and decoding plus conversion of responses
// into typed Go values.
//
// A Client (or ClusterClient for cluster deployments) is built over any
// ffi.Engine implementation:
//
//	client, err := kvbridge.NewClient(engine, kvbridge.Config{
//		Addresses: []string{"localhost:6379"},
//	})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	if _, err := client.Set(ctx, "greeting", "hello"); err != nil {
//		return err
//	}
//	value, err := client.Get(ctx, "greeting")
//
// Every operation takes a context and occupies one correlation slot until the
// engine completes it. Missing keys come back as nil Results rather than
// errors; malformed responses surface as ContractViolationError.
package kvbridge
