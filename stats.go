package kvbridge

import "sync/atomic"

// ClientStats is a point-in-time snapshot of client counters.
//
// For Prometheus integration, expose these as:
//   - Counters: Submitted, Completed, Failed, Cancelled
//   - Counters: TotalOriginalBytes, TotalBytesCompressed, TotalValuesCompressed
type ClientStats struct {
	Submitted uint64 // Requests handed to the engine
	Completed uint64 // Requests resolved with a value
	Failed    uint64 // Requests resolved with an error
	Cancelled uint64 // Requests cancelled at teardown

	// Compression counters. Original vs compressed bytes give the ratio.
	TotalOriginalBytes    uint64
	TotalBytesCompressed  uint64
	TotalValuesCompressed uint64
}

// Stats accumulates client counters. All methods are safe for concurrent use.
type Stats struct {
	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64

	originalBytes    atomic.Uint64
	compressedBytes  atomic.Uint64
	compressedValues atomic.Uint64
}

func (s *Stats) recordSubmitted() { s.submitted.Add(1) }
func (s *Stats) recordCompleted() { s.completed.Add(1) }
func (s *Stats) recordFailed()    { s.failed.Add(1) }

func (s *Stats) recordCancelled(n int) {
	if n > 0 {
		s.cancelled.Add(uint64(n))
	}
}

// Snapshot returns a consistent-enough copy of the counters for reporting.
func (s *Stats) Snapshot() ClientStats {
	return ClientStats{
		Submitted:             s.submitted.Load(),
		Completed:             s.completed.Load(),
		Failed:                s.failed.Load(),
		Cancelled:             s.cancelled.Load(),
		TotalOriginalBytes:    s.originalBytes.Load(),
		TotalBytesCompressed:  s.compressedBytes.Load(),
		TotalValuesCompressed: s.compressedValues.Load(),
	}
}
