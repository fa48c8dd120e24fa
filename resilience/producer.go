package resilience

import (
	"context"
	"sync"

	"github.com/jonwraymond/memocache/cache"
)

// Wrap returns a producer that runs p through exec. Only the result of the
// attempt that succeeded is returned; an attempt abandoned by a timeout
// cannot overwrite it.
func Wrap[T any](exec *Executor, p cache.Producer[T]) cache.Producer[T] {
	return func(ctx context.Context) (T, error) {
		var (
			mu  sync.Mutex
			out T
		)

		err := exec.Execute(ctx, func(ctx context.Context) error {
			v, err := p(ctx)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if err := ctx.Err(); err != nil {
				return err
			}
			out = v
			return nil
		})
		if err != nil {
			var zero T
			return zero, err
		}

		mu.Lock()
		defer mu.Unlock()
		return out, nil
	}
}
