// Package health reports whether memoization caches are in good shape.
//
// The cache purges expired entries only when asked, so a cache that is never
// purged keeps growing with entries Remember will never serve again.
// CacheChecker turns that into a health signal: the share of mapped entries
// that are past their expiry. It can also purge on every check, which makes a
// periodic health probe double as the sweeper.
//
// # Usage
//
//	c := cache.New(cache.WithName("users"))
//
//	agg := health.NewAggregator()
//	agg.Register("users", health.NewCacheChecker(c, health.CacheCheckerConfig{
//	    DegradedStaleRatio:  0.5,
//	    UnhealthyStaleRatio: 0.9,
//	    PurgeOnCheck:        true,
//	}))
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg)
//
// RegisterHandlers serves /healthz (liveness), /readyz (plain-text readiness)
// and /health (JSON detail for every registered checker).
package health
