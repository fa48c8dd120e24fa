package cache

import "time"

// Policy configures memoization TTLs for a Memoizer.
type Policy struct {
	// DefaultTTL is the TTL to use when none is specified.
	// If zero, memoization is disabled.
	DefaultTTL time.Duration

	// MaxTTL caps override TTLs. If zero, no maximum is enforced.
	MaxTTL time.Duration

	// AllowUnsafe permits memoizing calls tagged as side-effecting.
	AllowUnsafe bool
}

// DefaultPolicy returns a one-hour TTL capped at one day.
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL: time.Hour,
		MaxTTL:     24 * time.Hour,
	}
}

// NoCachePolicy returns a policy that disables memoization.
func NoCachePolicy() Policy {
	return Policy{}
}

// ShouldCache reports whether memoization is enabled.
func (p Policy) ShouldCache() bool {
	return p.DefaultTTL > 0
}

// EffectiveTTL returns override when positive, DefaultTTL otherwise, clamped
// to MaxTTL.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := override
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	return ttl
}
