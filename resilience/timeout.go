package resilience

import (
	"context"
	"errors"
	"time"
)

// TimeoutConfig configures the timeout wrapper.
type TimeoutConfig struct {
	// Timeout bounds a single producer run.
	// Default: 30 seconds
	Timeout time.Duration
}

// Timeout bounds how long one producer run may take.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout creates a timeout wrapper, filling in defaults.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Timeout{config: config}
}

// Execute runs op with a derived deadline. If the deadline passes first it
// returns ErrTimeout without waiting for op; a done parent ctx is reported as
// the parent's error. A panic in op is raised again on the caller's goroutine.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	runCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	done := make(chan error, 1)
	panicked := make(chan any, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				panicked <- r
			}
		}()
		done <- op(runCtx)
	}()

	select {
	case r := <-panicked:
		panic(r)
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrTimeout
		}
		return err
	case <-runCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrTimeout
	}
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}
