package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/jonwraymond/memocache/observe"
)

// Executor guards producer runs on a cache miss. Each configured pattern
// wraps the next in a fixed order, whatever order the options are given in.
type Executor struct {
	circuitBreaker *CircuitBreaker
	retry          *Retry
	rateLimiter    *RateLimiter
	bulkhead       *Bulkhead
	timeout        *Timeout
	logger         observe.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an executor. With no options it calls the producer
// directly.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{logger: observe.NopLogger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker stops calling a producer whose backend keeps failing.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		e.circuitBreaker = cb
	}
}

// WithRetry reruns a failed producer before the miss is reported.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) {
		e.retry = r
	}
}

// WithRateLimiter caps how often misses may reach the producer.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) {
		e.rateLimiter = rl
	}
}

// WithBulkhead caps how many producers may run at once.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) {
		e.bulkhead = b
	}
}

// WithTimeout bounds each producer attempt to the given duration.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = NewTimeout(TimeoutConfig{Timeout: timeout})
	}
}

// WithTimeoutConfig is WithTimeout with a shared Timeout.
func WithTimeoutConfig(t *Timeout) ExecutorOption {
	return func(e *Executor) {
		e.timeout = t
	}
}

// WithLogger logs runs that were rejected before reaching the producer.
func WithLogger(logger observe.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// guard is one protection layer around a producer run.
type guard interface {
	Execute(ctx context.Context, op func(context.Context) error) error
}

// guards lists the configured layers, outermost first: rate limiter,
// bulkhead, circuit breaker, retry, timeout. A call that is throttled or
// shed never counts against the breaker, the breaker sees one outcome per
// producer call rather than one per attempt, and the timeout bounds each
// attempt.
func (e *Executor) guards() []guard {
	var gs []guard
	if e.rateLimiter != nil {
		gs = append(gs, e.rateLimiter)
	}
	if e.bulkhead != nil {
		gs = append(gs, e.bulkhead)
	}
	if e.circuitBreaker != nil {
		gs = append(gs, e.circuitBreaker)
	}
	if e.retry != nil {
		gs = append(gs, e.retry)
	}
	if e.timeout != nil {
		gs = append(gs, e.timeout)
	}
	return gs
}

// Execute runs op inside every configured guard. Rejections by the rate
// limiter, bulkhead or breaker are logged; producer errors are returned
// untouched for the cache to report.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	run := op
	gs := e.guards()
	for i := len(gs) - 1; i >= 0; i-- {
		g, next := gs[i], run
		run = func(ctx context.Context) error {
			return g.Execute(ctx, next)
		}
	}

	err := run(ctx)
	if isRejection(err) {
		e.logger.Warn(ctx, "producer rejected", observe.Field{Key: "error", Value: err})
	}
	return err
}

func isRejection(err error) bool {
	return errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrBulkheadFull)
}
