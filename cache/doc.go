// Package cache provides an in-process memoization cache with optional TTL
// expiration and group tagging for bulk invalidation.
//
// Values are stored as opaque payloads produced by a Codec (JSON by default)
// and decoded into the caller's type on read. The main entry points are the
// generic memoizers:
//
//	c := cache.New(cache.WithName("users"))
//
//	user, err := cache.Remember(ctx, c, "user:42", 1, func(ctx context.Context) (User, error) {
//	    return repo.FindUser(ctx, 42)
//	})
//
// Remember serves unexpired entries without calling the producer; on a miss it
// runs the producer outside the lock and stores the result with the given TTL
// in hours. RememberFor takes a time.Duration instead, and RememberForever
// stores without expiration.
//
// # Expiration
//
// Expiration is lazy. Only Remember and RememberFor consult an entry's expiry;
// Get and RememberForever return whatever payload is mapped. Expired entries
// stay in memory until Purge, Forget, ForgetGroup, ForgetAll, or an overwrite
// removes them. There is no background sweeper and no size bound.
//
// # Groups
//
// SetGroup tags an existing entry; ForgetGroup removes every entry carrying a
// tag under a single write lock.
//
// # Concurrency
//
// All methods are safe for concurrent use. Producers never run under the lock,
// so two concurrent misses on the same key may both run their producers and
// the last write wins. WithSingleFlight coalesces such misses into one run.
package cache
