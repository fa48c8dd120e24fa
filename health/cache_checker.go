package health

import (
	"context"
	"fmt"
)

// CacheStats is the view of a cache the checker needs. *cache.Cache
// satisfies it.
type CacheStats interface {
	Len() int
	Stale() int
	Purge(ctx context.Context) int
}

// CacheCheckerConfig configures the cache health checker.
type CacheCheckerConfig struct {
	// Name is the checker name.
	// Default: "cache"
	Name string

	// DegradedStaleRatio is the share of stale entries at which the cache is
	// reported degraded. Value between 0 and 1. Default: 0.5
	DegradedStaleRatio float64

	// UnhealthyStaleRatio is the share of stale entries at which the cache is
	// reported unhealthy. Value between 0 and 1. Default: 0.9
	UnhealthyStaleRatio float64

	// MaxEntries reports the cache degraded once it holds more entries.
	// Default: 0 (no limit)
	MaxEntries int

	// PurgeOnCheck purges expired entries before measuring.
	PurgeOnCheck bool
}

// CacheChecker reports how much of a cache is dead weight: entries past
// their expiry that no TTL-checking read will serve.
type CacheChecker struct {
	cache  CacheStats
	config CacheCheckerConfig
}

// NewCacheChecker creates a checker for c, filling in defaults.
func NewCacheChecker(c CacheStats, config CacheCheckerConfig) *CacheChecker {
	if config.Name == "" {
		config.Name = "cache"
	}
	if config.DegradedStaleRatio <= 0 || config.DegradedStaleRatio > 1 {
		config.DegradedStaleRatio = 0.5
	}
	if config.UnhealthyStaleRatio <= 0 || config.UnhealthyStaleRatio > 1 {
		config.UnhealthyStaleRatio = 0.9
	}
	if config.UnhealthyStaleRatio < config.DegradedStaleRatio {
		config.UnhealthyStaleRatio = config.DegradedStaleRatio
	}

	return &CacheChecker{cache: c, config: config}
}

// Name returns the checker name.
func (c *CacheChecker) Name() string {
	return c.config.Name
}

// Check measures the stale ratio, purging first if configured.
func (c *CacheChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	purged := 0
	if c.config.PurgeOnCheck {
		purged = c.cache.Purge(ctx)
	}

	entries := c.cache.Len()
	stale := c.cache.Stale()
	ratio := 0.0
	if entries > 0 {
		ratio = float64(stale) / float64(entries)
	}

	details := map[string]any{
		"entries":     entries,
		"stale":       stale,
		"stale_ratio": ratio,
		"purged":      purged,
	}
	if c.config.MaxEntries > 0 {
		details["max_entries"] = c.config.MaxEntries
	}

	switch {
	case entries > 0 && ratio >= c.config.UnhealthyStaleRatio:
		return Unhealthy(fmt.Sprintf("%d of %d entries expired", stale, entries), ErrCheckFailed).WithDetails(details)
	case entries > 0 && ratio >= c.config.DegradedStaleRatio:
		return Degraded(fmt.Sprintf("%d of %d entries expired", stale, entries)).WithDetails(details)
	case c.config.MaxEntries > 0 && entries > c.config.MaxEntries:
		return Degraded(fmt.Sprintf("%d entries exceeds limit of %d", entries, c.config.MaxEntries)).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("%d entries, %d expired", entries, stale)).WithDetails(details)
	}
}

// Config returns the checker configuration.
func (c *CacheChecker) Config() CacheCheckerConfig {
	return c.config
}
