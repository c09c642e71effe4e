package transport

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// newBreaker trips after threshold consecutive failures inside one interval
// and stays open for interval before letting a single trial request through.
// A non-positive threshold disables the breaker.
func newBreaker(threshold int, interval time.Duration, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	if threshold <= 0 {
		return nil
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "platform",
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     interval,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state change")
		},
	})
}
