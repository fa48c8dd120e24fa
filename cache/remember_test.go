package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRemember_MissThenHit(t *testing.T) {
	c := New()
	ctx := context.Background()
	want := User{Name: "Joel", Email: "j@x"}

	got, err := Remember(ctx, c, "user", 1, func(context.Context) (User, error) {
		return want, nil
	})
	if err != nil {
		t.Fatalf("first Remember failed: %v", err)
	}
	if got != want {
		t.Errorf("first Remember = %+v, want %+v", got, want)
	}

	called := false
	got, err = Remember(ctx, c, "user", 1, func(context.Context) (User, error) {
		called = true
		return User{}, errors.New("should not run")
	})
	if err != nil {
		t.Fatalf("second Remember failed: %v", err)
	}
	if called {
		t.Error("producer must not run on an unexpired hit")
	}
	if got != want {
		t.Errorf("second Remember = %+v, want %+v", got, want)
	}
}

func TestRemember_ExpiredEntryRunsProducer(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	ctx := context.Background()

	_, _ = Remember(ctx, c, "k", 1, func(context.Context) (string, error) { return "old", nil })
	clock.Advance(time.Hour + time.Second)

	calls := 0
	got, err := Remember(ctx, c, "k", 1, func(context.Context) (string, error) {
		calls++
		return "new", nil
	})
	if err != nil {
		t.Fatalf("Remember failed: %v", err)
	}
	if calls != 1 || got != "new" {
		t.Errorf("Remember = %q after %d calls, want new after 1", got, calls)
	}

	e, _ := c.Lookup("k")
	if want := clock.Now().Add(time.Hour); !e.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", e.ExpiresAt, want)
	}
}

// TestRemember_ExpiryInstantIsFresh pins the boundary: an entry is still
// served at exactly its expiry instant.
func TestRemember_ExpiryInstantIsFresh(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	ctx := context.Background()

	_, _ = Remember(ctx, c, "k", 1, func(context.Context) (string, error) { return "v", nil })
	clock.Advance(time.Hour)

	got, err := Remember(ctx, c, "k", 1, func(context.Context) (string, error) {
		t.Error("producer must not run at the expiry instant")
		return "", nil
	})
	if err != nil || got != "v" {
		t.Errorf("Remember = (%q, %v), want (v, nil)", got, err)
	}
}

// TestRemember_ExpiryFromProducerCompletion verifies the TTL starts when the
// producer finishes, not when the call began.
func TestRemember_ExpiryFromProducerCompletion(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))

	_, err := Remember(context.Background(), c, "slow", 1, func(context.Context) (int, error) {
		clock.Advance(10 * time.Minute)
		return 1, nil
	})
	if err != nil {
		t.Fatalf("Remember failed: %v", err)
	}

	e, _ := c.Lookup("slow")
	if want := clock.Now().Add(time.Hour); !e.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", e.ExpiresAt, want)
	}
	if e.Group != "" {
		t.Errorf("Group = %q, want empty", e.Group)
	}
}

func TestRemember_ZeroHours(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	ctx := context.Background()

	got, err := Remember(ctx, c, "k", 0, func(context.Context) (string, error) { return "v", nil })
	if err != nil || got != "v" {
		t.Fatalf("Remember = (%q, %v), want (v, nil)", got, err)
	}

	if n := c.Purge(ctx); n != 1 {
		t.Errorf("Purge removed %d, want 1", n)
	}
	if _, ok, _ := Get[string](ctx, c, "k"); ok {
		t.Error("zero-hour entry should be gone after purge")
	}
}

func TestRemember_ProducerError(t *testing.T) {
	c := New()
	ctx := context.Background()
	cause := errors.New("db unavailable")

	_, err := Remember(ctx, c, "k", 1, func(context.Context) (int, error) {
		return 0, cause
	})

	var extErr *ExternalError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected *ExternalError, got %T: %v", err, err)
	}
	if extErr.Message != "db unavailable" {
		t.Errorf("Message = %q, want %q", extErr.Message, "db unavailable")
	}
	if !errors.Is(err, ErrExternal) || !errors.Is(err, cause) {
		t.Errorf("error should match ErrExternal and the cause: %v", err)
	}
	if c.Len() != 0 {
		t.Error("producer failure must not modify the cache")
	}
}

// TestRemember_ProducerErrorKeepsStaleEntry verifies a failed refresh leaves
// the expired entry in place.
func TestRemember_ProducerErrorKeepsStaleEntry(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	ctx := context.Background()

	_, _ = Remember(ctx, c, "k", 1, func(context.Context) (string, error) { return "old", nil })
	before, _ := c.Lookup("k")
	clock.Advance(2 * time.Hour)

	_, err := Remember(ctx, c, "k", 1, func(context.Context) (string, error) {
		return "", errors.New("boom")
	})
	if !errors.Is(err, ErrExternal) {
		t.Fatalf("error = %v, want %v", err, ErrExternal)
	}

	after, ok := c.Lookup("k")
	if !ok || after != before {
		t.Errorf("entry changed: before %+v, after %+v", before, after)
	}
}

// TestRemember_DecodeErrorOnHit verifies a type mismatch surfaces instead of
// silently re-running the producer.
func TestRemember_DecodeErrorOnHit(t *testing.T) {
	c := New()
	ctx := context.Background()
	_ = c.Put(ctx, "k", "text")

	_, err := Remember(ctx, c, "k", 1, func(context.Context) (int, error) {
		t.Error("producer must not run on a decode error")
		return 0, nil
	})
	if !errors.Is(err, ErrDecode) {
		t.Errorf("error = %v, want %v", err, ErrDecode)
	}
}

func TestRemember_EncodeErrorStoresNothing(t *testing.T) {
	c := New()

	_, err := Remember(context.Background(), c, "k", 1, func(context.Context) (func(), error) {
		return func() {}, nil
	})
	if !errors.Is(err, ErrEncode) {
		t.Errorf("error = %v, want %v", err, ErrEncode)
	}
	if c.Len() != 0 {
		t.Error("encode failure must not store anything")
	}
}

func TestRemember_InvalidArguments(t *testing.T) {
	c := New()
	ctx := context.Background()

	if _, err := Remember(ctx, c, "", 1, func(context.Context) (int, error) { return 1, nil }); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("empty key error = %v, want %v", err, ErrInvalidKey)
	}
	if _, err := Remember[int](ctx, c, "k", 1, nil); !errors.Is(err, ErrNilProducer) {
		t.Errorf("nil producer error = %v, want %v", err, ErrNilProducer)
	}
	if _, err := RememberForever[int](ctx, c, "k", nil); !errors.Is(err, ErrNilProducer) {
		t.Errorf("nil producer error = %v, want %v", err, ErrNilProducer)
	}
}

func TestRemember_CanceledBeforeStart(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Remember(ctx, c, "k", 1, func(context.Context) (int, error) {
		t.Error("producer must not run with a canceled context")
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want %v", err, context.Canceled)
	}
}

// TestRemember_CanceledWhileProducing verifies a caller that gives up returns
// promptly and nothing is written, even when the producer finishes later.
func TestRemember_CanceledWhileProducing(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		<-started
		cancel()
	}()

	_, err := Remember(ctx, c, "k", 1, func(context.Context) (int, error) {
		defer close(finished)
		close(started)
		<-release // ignores ctx on purpose
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want %v", err, context.Canceled)
	}

	close(release)
	<-finished
	if c.Len() != 0 {
		t.Error("canceled remember must not write an entry")
	}

	// The lock is free: a fresh call succeeds.
	got, err := Remember(context.Background(), c, "k", 1, func(context.Context) (int, error) { return 2, nil })
	if err != nil || got != 2 {
		t.Errorf("Remember = (%d, %v), want (2, nil)", got, err)
	}
}

func TestRememberFor(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	ctx := context.Background()

	_, err := RememberFor(ctx, c, "k", 90*time.Second, func(context.Context) (int, error) { return 1, nil })
	if err != nil {
		t.Fatalf("RememberFor failed: %v", err)
	}
	e, _ := c.Lookup("k")
	if want := clock.Now().Add(90 * time.Second); !e.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", e.ExpiresAt, want)
	}

	_, _ = RememberFor(ctx, c, "forever", NoExpiry, func(context.Context) (int, error) { return 1, nil })
	if e, _ := c.Lookup("forever"); e.HasExpiry() {
		t.Error("negative ttl should store without expiry")
	}
}

func TestRememberForever(t *testing.T) {
	c := New()
	ctx := context.Background()

	calls := 0
	produce := func(context.Context) (User, error) {
		calls++
		return User{Name: "Joel"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := RememberForever(ctx, c, "k", produce)
		if err != nil || got.Name != "Joel" {
			t.Fatalf("RememberForever = (%+v, %v)", got, err)
		}
	}
	if calls != 1 {
		t.Errorf("producer ran %d times, want 1", calls)
	}
	if e, _ := c.Lookup("k"); e.HasExpiry() {
		t.Error("RememberForever must store without expiry")
	}
}

// TestRememberForever_IgnoresExpiry verifies the forever path serves an entry
// whose TTL has lapsed, while Remember refreshes it.
func TestRememberForever_IgnoresExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	ctx := context.Background()

	_, _ = Remember(ctx, c, "k", 1, func(context.Context) (string, error) { return "old", nil })
	clock.Advance(5 * time.Hour)

	got, err := RememberForever(ctx, c, "k", func(context.Context) (string, error) {
		t.Error("producer must not run while the key is mapped")
		return "", nil
	})
	if err != nil || got != "old" {
		t.Errorf("RememberForever = (%q, %v), want (old, nil)", got, err)
	}

	got, _ = Remember(ctx, c, "k", 1, func(context.Context) (string, error) { return "new", nil })
	if got != "new" {
		t.Errorf("Remember = %q, want new", got)
	}
}

func TestRememberForever_SurvivesPurge(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	ctx := context.Background()

	_, _ = RememberForever(ctx, c, "k", func(context.Context) (int, error) { return 9, nil })
	clock.Advance(10000 * time.Hour)
	c.Purge(ctx)

	got, ok, err := Get[int](ctx, c, "k")
	if err != nil || !ok || got != 9 {
		t.Errorf("Get = (%d, %v, %v), want (9, true, nil)", got, ok, err)
	}
}

// TestRemember_ConcurrentMissesRunEachProducer documents that without
// single-flight every concurrent miss runs its producer and the last write wins.
func TestRemember_ConcurrentMissesRunEachProducer(t *testing.T) {
	c := New()
	ctx := context.Background()

	const callers = 2
	entered := make(chan struct{}, callers)
	release := make(chan struct{})
	var calls atomic.Int32

	var wg sync.WaitGroup
	results := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = Remember(ctx, c, "k", 1, func(context.Context) (int, error) {
				calls.Add(1)
				entered <- struct{}{}
				<-release
				return i, nil
			})
		}(i)
	}

	for i := 0; i < callers; i++ {
		<-entered
	}
	close(release)
	wg.Wait()

	if calls.Load() != callers {
		t.Errorf("producer ran %d times, want %d", calls.Load(), callers)
	}
	if results[0] != 0 || results[1] != 1 {
		t.Errorf("each caller should get its own result, got %v", results)
	}
	stored, _, _ := Get[int](ctx, c, "k")
	if stored != 0 && stored != 1 {
		t.Errorf("stored = %d, want one of the produced values", stored)
	}
}

func TestRemember_SingleFlightCoalesces(t *testing.T) {
	c := New(WithSingleFlight())
	ctx := context.Background()

	release := make(chan struct{})
	var calls atomic.Int32

	const callers = 10
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = Remember(ctx, c, "k", 1, func(context.Context) (string, error) {
				calls.Add(1)
				<-release
				return "shared", nil
			})
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("producer ran %d times, want 1", calls.Load())
	}
	for i := range results {
		if errs[i] != nil || results[i] != "shared" {
			t.Errorf("caller %d got (%q, %v)", i, results[i], errs[i])
		}
	}
}

// TestRemember_SingleFlightLeaderCanceled verifies a waiter whose context is
// live still gets a value when the caller that started the flight gives up.
func TestRemember_SingleFlightLeaderCanceled(t *testing.T) {
	c := New(WithSingleFlight())
	leaderCtx, cancelLeader := context.WithCancel(context.Background())

	var calls atomic.Int32
	started := make(chan struct{})
	produce := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "fresh", nil
	}

	leaderErr := make(chan error, 1)
	go func() {
		_, err := Remember(leaderCtx, c, "k", 1, produce)
		leaderErr <- err
	}()
	<-started

	followerResult := make(chan string, 1)
	go func() {
		v, err := Remember(context.Background(), c, "k", 1, produce)
		if err != nil {
			t.Errorf("follower error: %v", err)
		}
		followerResult <- v
	}()

	time.Sleep(50 * time.Millisecond)
	cancelLeader()

	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("leader error = %v, want %v", err, context.Canceled)
	}
	if got := <-followerResult; got != "fresh" {
		t.Errorf("follower got %q, want fresh", got)
	}
}

func TestRemember_SingleFlightWaiterCanceled(t *testing.T) {
	c := New(WithSingleFlight())
	release := make(chan struct{})
	started := make(chan struct{})

	leaderDone := make(chan string, 1)
	go func() {
		v, _ := Remember(context.Background(), c, "k", 1, func(context.Context) (string, error) {
			close(started)
			<-release
			return "v", nil
		})
		leaderDone <- v
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Remember(ctx, c, "k", 1, func(context.Context) (string, error) { return "other", nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("waiter error = %v, want %v", err, context.DeadlineExceeded)
	}

	close(release)
	if got := <-leaderDone; got != "v" {
		t.Errorf("leader got %q, want v", got)
	}
}

func TestRemember_ProducerPanicReachesCaller(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{name: "direct"},
		{name: "single flight", opts: []Option{WithSingleFlight()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.opts...)

			recovered := func() (r any) {
				defer func() { r = recover() }()
				_, _ = Remember(context.Background(), c, "k", 1, func(context.Context) (int, error) {
					panic("boom")
				})
				return nil
			}()

			if recovered != "boom" {
				t.Errorf("recovered %v, want boom", recovered)
			}
			if c.Len() != 0 {
				t.Errorf("Len() = %d after panic, want 0", c.Len())
			}

			// The cache stays usable.
			got, err := Remember(context.Background(), c, "k", 1, func(context.Context) (int, error) { return 3, nil })
			if err != nil || got != 3 {
				t.Errorf("Remember after panic = (%d, %v), want (3, nil)", got, err)
			}
		})
	}
}

// TestRemember_SingleFlightKeepsCallerTTL checks RememberForever does not
// share a flight with a pending Remember on the same key, so the entry it
// leaves never carries the other caller's expiry.
func TestRemember_SingleFlightKeepsCallerTTL(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now), WithSingleFlight())
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	leaderDone := make(chan error, 1)
	go func() {
		_, err := Remember(ctx, c, "k", 1, func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		leaderDone <- err
	}()
	<-started

	got, err := RememberForever(ctx, c, "k", func(context.Context) (int, error) { return 2, nil })
	if err != nil || got != 2 {
		t.Fatalf("RememberForever = (%d, %v), want (2, nil)", got, err)
	}

	e, ok := c.Lookup("k")
	if !ok {
		t.Fatal("entry missing after RememberForever")
	}
	if e.HasExpiry() {
		t.Errorf("RememberForever entry expires at %v, want no expiry", e.ExpiresAt)
	}

	clock.Advance(2 * time.Hour)
	if n := c.Purge(ctx); n != 0 {
		t.Errorf("Purge removed %d entries, want 0", n)
	}
	if _, ok := c.Lookup("k"); !ok {
		t.Error("RememberForever entry was purged")
	}

	close(release)
	if err := <-leaderDone; err != nil {
		t.Errorf("leader error: %v", err)
	}
}

func TestFlightKey(t *testing.T) {
	base := flightKey("k", time.Hour, "")
	if base != flightKey("k", time.Hour, "") {
		t.Error("flightKey is not deterministic")
	}
	for name, other := range map[string]string{
		"ttl":   flightKey("k", NoExpiry, ""),
		"group": flightKey("k", time.Hour, "users"),
		"key":   flightKey("k2", time.Hour, ""),
	} {
		if other == base {
			t.Errorf("flightKey ignores %s", name)
		}
	}
}
