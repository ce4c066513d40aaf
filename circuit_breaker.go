package kvbridge

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig wraps every submission in a circuit breaker so a dead engine
// connection fails fast instead of queueing requests until they time out.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open. Zero means one.
	MaxRequests uint32

	// Interval resets the failure counts while closed. Zero never resets.
	Interval time.Duration

	// Timeout before a tripped breaker probes again. Zero means the
	// gobreaker default of 60 seconds.
	Timeout time.Duration

	// ReadyToTrip decides when the breaker opens. Nil uses a 60% failure
	// ratio over at least 3 requests.
	ReadyToTrip func(counts gobreaker.Counts) bool
}

func newBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker[any] {
	readyToTrip := cfg.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		}
	}
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: readyToTrip,
	})
}
