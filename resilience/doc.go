// Package resilience hardens cache producers against a failing backend.
//
// The cache itself never retries, times out, or throttles a producer: whatever
// the producer returns is what Remember returns. Callers that load from a slow
// or flaky backend wrap their producer here before handing it to the cache.
//
// # Patterns
//
//   - Retry: reruns a failed producer with exponential, linear, or constant
//     backoff. Context errors are never retried.
//   - Timeout: bounds a single producer run.
//   - CircuitBreaker: stops calling a backend after repeated failures and
//     probes it again after a cool-down.
//   - RateLimiter: caps how often producers may hit the backend.
//   - Bulkhead: caps how many producers run at once.
//
// # Usage
//
//	exec := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	        MaxFailures:  5,
//	        ResetTimeout: time.Minute,
//	    })),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 3})),
//	    resilience.WithTimeout(2*time.Second),
//	)
//
//	user, err := cache.Remember(ctx, c, "user:42", 1,
//	    resilience.Wrap(exec, func(ctx context.Context) (User, error) {
//	        return repo.FindUser(ctx, 42)
//	    }))
//
// A failure that survives every layer reaches the cache as the producer's
// error and is reported as a *cache.ExternalError; nothing is stored.
package resilience
