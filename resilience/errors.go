package resilience

import (
	"context"
	"errors"
)

// Sentinel errors returned instead of running a producer.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRateLimited is returned when no token is available in time.
	ErrRateLimited = errors.New("resilience: rate limit exceeded")

	// ErrBulkheadFull is returned when every producer slot is taken.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when a producer run exceeds its time limit.
	ErrTimeout = errors.New("resilience: producer timed out")
)

// isContextErr reports whether err comes from a canceled or expired context.
func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
