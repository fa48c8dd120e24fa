package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// BackoffStrategy defines how delays grow between attempts.
type BackoffStrategy int

const (
	// BackoffExponential multiplies the delay by Multiplier each attempt.
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear grows the delay by InitialDelay each attempt.
	BackoffLinear
	// BackoffConstant waits InitialDelay between every attempt.
	BackoffConstant
)

// String returns the strategy name.
func (s BackoffStrategy) String() string {
	switch s {
	case BackoffExponential:
		return "exponential"
	case BackoffLinear:
		return "linear"
	case BackoffConstant:
		return "constant"
	default:
		return "unknown"
	}
}

// jitterFactor is the randomization applied when Jitter is set.
const jitterFactor = 0.25

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	// Default: 100ms
	InitialDelay time.Duration

	// MaxDelay caps the delay between attempts.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier is the growth factor for exponential backoff.
	// Default: 2.0
	Multiplier float64

	// Strategy is the backoff strategy.
	// Default: BackoffExponential
	Strategy BackoffStrategy

	// Jitter randomizes each delay by up to 25% in either direction.
	Jitter bool

	// RetryIf reports whether an error is worth another attempt. Context
	// errors are never retried, whatever RetryIf says.
	// Default: every other non-nil error is retried.
	RetryIf func(err error) bool

	// OnRetry is called before sleeping ahead of attempt+1.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry reruns a failing producer with backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a retry handler, filling in defaults.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = func(err error) bool { return err != nil }
	}

	return &Retry{config: config}
}

// Execute runs op until it succeeds, fails with a non-retryable error, or
// MaxAttempts is reached. It returns the last error. If ctx ends while waiting
// between attempts, the context error is returned.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := op(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if isContextErr(err) || !r.config.RetryIf(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.config.MaxAttempts)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			if r.config.OnRetry != nil {
				r.config.OnRetry(attempt, err, delay)
			}
		}),
	)
	return err
}

// newBackOff builds a fresh backoff sequence for one Execute call.
func (r *Retry) newBackOff() backoff.BackOff {
	var jitter float64
	if r.config.Jitter {
		jitter = jitterFactor
	}

	switch r.config.Strategy {
	case BackoffConstant:
		return &linearBackOff{initial: r.config.InitialDelay, max: r.config.MaxDelay, jitter: jitter}
	case BackoffLinear:
		return &linearBackOff{initial: r.config.InitialDelay, step: r.config.InitialDelay, max: r.config.MaxDelay, jitter: jitter}
	default:
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = r.config.InitialDelay
		b.MaxInterval = r.config.MaxDelay
		b.Multiplier = r.config.Multiplier
		b.RandomizationFactor = jitter
		b.Reset()
		return b
	}
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

// linearBackOff yields initial, initial+step, initial+2*step, ... capped at
// max. A zero step gives a constant delay.
type linearBackOff struct {
	initial time.Duration
	step    time.Duration
	max     time.Duration
	jitter  float64
	n       int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	delay := b.initial + time.Duration(b.n)*b.step
	b.n++
	if delay > b.max {
		delay = b.max
	}
	return jittered(delay, b.jitter)
}

func (b *linearBackOff) Reset() {
	b.n = 0
}

// jittered spreads d uniformly over [d*(1-factor), d*(1+factor)].
func jittered(d time.Duration, factor float64) time.Duration {
	if factor <= 0 || d <= 0 {
		return d
	}
	// #nosec G404 -- jitter is non-cryptographic timing variance.
	delta := factor * float64(d)
	return time.Duration(float64(d) - delta + rand.Float64()*2*delta)
}
