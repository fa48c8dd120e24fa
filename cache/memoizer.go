package cache

import (
	"context"
	"slices"
	"strings"
)

// SkipRule reports whether a call should bypass memoization.
type SkipRule func(namespace string, tags []string) bool

// UnsafeTags mark calls with side effects; their results are never memoized.
var UnsafeTags = []string{"write", "danger", "unsafe", "mutation", "delete"}

// DefaultSkipRule skips calls carrying any of UnsafeTags, case-insensitively.
func DefaultSkipRule(_ string, tags []string) bool {
	for _, tag := range tags {
		if slices.Contains(UnsafeTags, strings.ToLower(tag)) {
			return true
		}
	}
	return false
}

// LoadFunc performs the call being memoized.
type LoadFunc[T any] func(ctx context.Context, namespace string, input any) (T, error)

// Memoizer memoizes calls keyed by namespace and input. Results are stored
// in the namespace's group, so ForgetGroup(namespace) drops every memoized
// call of that namespace. Errors are never cached; a load error on a miss
// comes back as an *ExternalError.
type Memoizer[T any] struct {
	cache    *Cache
	keyer    Keyer
	policy   Policy
	skipRule SkipRule
}

// NewMemoizer creates a memoizer over c. A nil keyer uses DefaultKeyer and a
// nil skipRule uses DefaultSkipRule.
func NewMemoizer[T any](c *Cache, keyer Keyer, policy Policy, skipRule SkipRule) *Memoizer[T] {
	if keyer == nil {
		keyer = NewDefaultKeyer()
	}
	if skipRule == nil {
		skipRule = DefaultSkipRule
	}
	return &Memoizer[T]{
		cache:    c,
		keyer:    keyer,
		policy:   policy,
		skipRule: skipRule,
	}
}

// Do returns the memoized result of load for (namespace, input), calling
// load on a miss. Calls skipped by the skip rule or the policy, and calls
// whose input cannot be keyed, run load directly.
func (m *Memoizer[T]) Do(ctx context.Context, namespace string, input any, tags []string, load LoadFunc[T]) (T, error) {
	if !m.policy.AllowUnsafe && m.skipRule(namespace, tags) {
		return load(ctx, namespace, input)
	}
	if !m.policy.ShouldCache() {
		return load(ctx, namespace, input)
	}

	key, err := m.keyer.Key(namespace, input)
	if err != nil {
		return load(ctx, namespace, input)
	}

	return remember(ctx, m.cache, memo[T]{
		op:          opRemember,
		key:         key,
		ttl:         m.policy.EffectiveTTL(0),
		group:       namespace,
		checkExpiry: true,
		producer: func(ctx context.Context) (T, error) {
			return load(ctx, namespace, input)
		},
	})
}

// Invalidate drops every memoized result of namespace.
func (m *Memoizer[T]) Invalidate(ctx context.Context, namespace string) int {
	return m.cache.ForgetGroup(ctx, namespace)
}
