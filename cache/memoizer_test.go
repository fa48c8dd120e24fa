package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func countingLoad(calls *int) LoadFunc[int] {
	return func(_ context.Context, _ string, input any) (int, error) {
		*calls++
		return len(input.(map[string]any)), nil
	}
}

func TestMemoizer_CachesByInput(t *testing.T) {
	c := New()
	m := NewMemoizer[int](c, nil, DefaultPolicy(), nil)
	ctx := context.Background()

	calls := 0
	load := countingLoad(&calls)

	for i := 0; i < 3; i++ {
		got, err := m.Do(ctx, "users", map[string]any{"a": 1, "b": 2}, nil, load)
		if err != nil || got != 2 {
			t.Fatalf("Do = (%d, %v), want (2, nil)", got, err)
		}
	}
	if calls != 1 {
		t.Errorf("load ran %d times, want 1", calls)
	}

	_, _ = m.Do(ctx, "users", map[string]any{"a": 1}, nil, load)
	if calls != 2 {
		t.Errorf("different input should miss, load ran %d times", calls)
	}
}

func TestMemoizer_StoresInNamespaceGroup(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	m := NewMemoizer[int](c, nil, DefaultPolicy(), nil)
	ctx := context.Background()

	calls := 0
	_, _ = m.Do(ctx, "users", map[string]any{"a": 1}, nil, countingLoad(&calls))

	keys := c.Keys()
	if len(keys) != 1 {
		t.Fatalf("Keys = %v, want one key", keys)
	}
	e, _ := c.Lookup(keys[0])
	if e.Group != "users" {
		t.Errorf("Group = %q, want users", e.Group)
	}
	if want := clock.Now().Add(time.Hour); !e.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", e.ExpiresAt, want)
	}
}

func TestMemoizer_Invalidate(t *testing.T) {
	c := New()
	m := NewMemoizer[int](c, nil, DefaultPolicy(), nil)
	ctx := context.Background()

	calls := 0
	load := countingLoad(&calls)
	_, _ = m.Do(ctx, "users", map[string]any{"a": 1}, nil, load)
	_, _ = m.Do(ctx, "users", map[string]any{"b": 1}, nil, load)
	_, _ = m.Do(ctx, "orders", map[string]any{"a": 1}, nil, load)
	_ = c.Put(ctx, "plain", 1)

	if n := m.Invalidate(ctx, "users"); n != 2 {
		t.Errorf("Invalidate removed %d, want 2", n)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}

	_, _ = m.Do(ctx, "users", map[string]any{"a": 1}, nil, load)
	if calls != 4 {
		t.Errorf("load ran %d times after invalidation, want 4", calls)
	}
}

func TestMemoizer_SkipsUnsafeTags(t *testing.T) {
	c := New()
	m := NewMemoizer[int](c, nil, DefaultPolicy(), nil)
	ctx := context.Background()

	calls := 0
	load := countingLoad(&calls)
	for i := 0; i < 2; i++ {
		_, _ = m.Do(ctx, "users", map[string]any{"a": 1}, []string{"read", "Write"}, load)
	}

	if calls != 2 {
		t.Errorf("unsafe call should not be memoized, load ran %d times", calls)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestMemoizer_AllowUnsafe(t *testing.T) {
	c := New()
	policy := DefaultPolicy()
	policy.AllowUnsafe = true
	m := NewMemoizer[int](c, nil, policy, nil)
	ctx := context.Background()

	calls := 0
	load := countingLoad(&calls)
	for i := 0; i < 2; i++ {
		_, _ = m.Do(ctx, "users", map[string]any{"a": 1}, []string{"delete"}, load)
	}
	if calls != 1 {
		t.Errorf("load ran %d times, want 1", calls)
	}
}

func TestMemoizer_CustomSkipRule(t *testing.T) {
	c := New()
	skip := func(namespace string, _ []string) bool { return namespace == "live" }
	m := NewMemoizer[int](c, nil, DefaultPolicy(), skip)
	ctx := context.Background()

	calls := 0
	load := countingLoad(&calls)
	_, _ = m.Do(ctx, "live", map[string]any{}, nil, load)
	_, _ = m.Do(ctx, "live", map[string]any{}, nil, load)
	if calls != 2 {
		t.Errorf("load ran %d times, want 2", calls)
	}
}

func TestMemoizer_NoCachePolicy(t *testing.T) {
	c := New()
	m := NewMemoizer[int](c, nil, NoCachePolicy(), nil)
	ctx := context.Background()

	calls := 0
	load := countingLoad(&calls)
	_, _ = m.Do(ctx, "users", map[string]any{}, nil, load)
	_, _ = m.Do(ctx, "users", map[string]any{}, nil, load)
	if calls != 2 {
		t.Errorf("load ran %d times, want 2", calls)
	}
}

func TestMemoizer_ErrorsNotCached(t *testing.T) {
	c := New()
	m := NewMemoizer[int](c, nil, DefaultPolicy(), nil)
	ctx := context.Background()
	cause := errors.New("backend down")

	calls := 0
	load := func(context.Context, string, any) (int, error) {
		calls++
		if calls == 1 {
			return 0, cause
		}
		return 7, nil
	}

	_, err := m.Do(ctx, "users", "q", nil, load)
	var extErr *ExternalError
	if !errors.As(err, &extErr) || !errors.Is(err, cause) {
		t.Fatalf("error = %v, want *ExternalError wrapping cause", err)
	}

	got, err := m.Do(ctx, "users", "q", nil, load)
	if err != nil || got != 7 {
		t.Errorf("Do = (%d, %v), want (7, nil)", got, err)
	}
}

// TestMemoizer_UnkeyableInputRunsDirectly verifies inputs the keyer rejects
// bypass the cache instead of failing.
func TestMemoizer_UnkeyableInputRunsDirectly(t *testing.T) {
	c := New()
	m := NewMemoizer[int](c, nil, DefaultPolicy(), nil)

	got, err := m.Do(context.Background(), "users", make(chan int), nil,
		func(context.Context, string, any) (int, error) { return 3, nil })
	if err != nil || got != 3 {
		t.Errorf("Do = (%d, %v), want (3, nil)", got, err)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestDefaultSkipRule(t *testing.T) {
	tests := []struct {
		tags []string
		want bool
	}{
		{nil, false},
		{[]string{"read"}, false},
		{[]string{"write"}, true},
		{[]string{"safe", "DANGER"}, true},
		{[]string{"Mutation"}, true},
	}
	for _, tt := range tests {
		if got := DefaultSkipRule("ns", tt.tags); got != tt.want {
			t.Errorf("DefaultSkipRule(%v) = %v, want %v", tt.tags, got, tt.want)
		}
	}
}
