package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonwraymond/memocache/observe"
)

// Producer computes the value to cache on a miss.
type Producer[T any] func(ctx context.Context) (T, error)

// Get returns the value mapped to key decoded as T. Expiry is not consulted.
func Get[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var out T
	ok, err := c.GetInto(ctx, key, &out)
	if err != nil || !ok {
		var zero T
		return zero, false, err
	}
	return out, true, nil
}

// Remember returns the cached value for key if it is mapped and unexpired.
// Otherwise it runs producer and stores the result for the given number of
// hours, with no group. A zero hour count stores an entry that is already due
// for purge.
func Remember[T any](ctx context.Context, c *Cache, key string, hours uint64, producer Producer[T]) (T, error) {
	return RememberFor(ctx, c, key, HoursToTTL(hours), producer)
}

// RememberFor is Remember with the TTL given as a duration. A negative ttl
// stores without expiry.
func RememberFor[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, producer Producer[T]) (T, error) {
	return remember(ctx, c, memo[T]{
		op:          opRemember,
		key:         key,
		ttl:         ttl,
		checkExpiry: true,
		producer:    producer,
	})
}

// RememberForever returns the cached value for key if it is mapped, without
// consulting any expiry it carries. Otherwise it runs producer and stores the
// result with no expiry and no group.
func RememberForever[T any](ctx context.Context, c *Cache, key string, producer Producer[T]) (T, error) {
	return remember(ctx, c, memo[T]{
		op:       opRememberForever,
		key:      key,
		ttl:      NoExpiry,
		producer: producer,
	})
}

// memo describes one memoized read.
type memo[T any] struct {
	op          string
	key         string
	ttl         time.Duration
	group       string
	checkExpiry bool
	producer    Producer[T]
}

func remember[T any](ctx context.Context, c *Cache, m memo[T]) (T, error) {
	var zero T
	if err := ValidateKey(m.key); err != nil {
		return zero, err
	}
	if m.producer == nil {
		return zero, ErrNilProducer
	}

	meta := c.meta(m.op, m.key, m.group)
	payload, hit := c.lookup(m.key, m.checkExpiry)
	c.instr.RecordLookup(ctx, meta, hit)
	if hit {
		var out T
		if err := c.decode(m.key, payload, &out); err != nil {
			return zero, err
		}
		return out, nil
	}

	var (
		v   T
		err error
	)
	if c.flight != nil {
		v, err = rememberShared(ctx, c, meta, m)
	} else {
		v, _, err = produceAndStore(ctx, c, meta, m)
	}

	var pe *producerPanic
	if errors.As(err, &pe) {
		panic(pe.value)
	}
	return v, err
}

// produceAndStore runs the producer and, if it succeeds before ctx is done,
// writes the encoded result. It returns the value and its payload.
func produceAndStore[T any](ctx context.Context, c *Cache, meta observe.OpMeta, m memo[T]) (T, string, error) {
	var zero T

	v, err := runProducer(ctx, c, meta, m.producer)
	if err != nil {
		return zero, "", err
	}

	payload, err := c.encode(m.key, v)
	if err != nil {
		return zero, "", err
	}

	if err := ctx.Err(); err != nil {
		return zero, "", err
	}
	c.store(m.key, payload, m.ttl, m.group)
	return v, payload, nil
}

type produced struct {
	value any
	err   error
}

// producerPanic carries a value recovered from a panicking producer back to
// the calling goroutine, where it is raised again.
type producerPanic struct {
	value any
}

func (p *producerPanic) Error() string {
	return fmt.Sprintf("cache: producer panicked: %v", p.value)
}

// runProducer runs producer in its own goroutine so a canceled caller returns
// immediately. No lock is held here.
func runProducer[T any](ctx context.Context, c *Cache, meta observe.OpMeta, producer Producer[T]) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	run := c.instr.Wrap(func(ctx context.Context, _ observe.OpMeta) (any, error) {
		return producer(ctx)
	})

	done := make(chan produced, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- produced{err: &producerPanic{value: r}}
			}
		}()
		v, err := run(ctx, meta)
		done <- produced{value: v, err: err}
	}()

	select {
	case r := <-done:
		var pe *producerPanic
		if errors.As(r.err, &pe) {
			return zero, r.err
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if r.err != nil {
			return zero, newExternalError(meta.Key, r.err)
		}
		v, _ := r.value.(T)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// shared is the result handed to every caller waiting on one flight.
type shared struct {
	value   any
	payload string
}

// rememberShared coalesces concurrent misses that would write the same entry:
// same key, TTL and group. The first caller's
// context drives the producer; every caller still returns as soon as its own
// context is done. If the flight failed only because the first caller went
// away, a caller whose context is still live runs the producer itself.
func rememberShared[T any](ctx context.Context, c *Cache, meta observe.OpMeta, m memo[T]) (T, error) {
	var zero T

	ch := c.flight.DoChan(flightKey(m.key, m.ttl, m.group), func() (any, error) {
		v, payload, err := produceAndStore(ctx, c, meta, m)
		if err != nil {
			return nil, err
		}
		return shared{value: v, payload: payload}, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			if isContextErr(res.Err) && ctx.Err() == nil {
				v, _, err := produceAndStore(ctx, c, meta, m)
				return v, err
			}
			return zero, res.Err
		}
		s := res.Val.(shared)
		if v, ok := s.value.(T); ok {
			return v, nil
		}
		// The flight was started by a caller asking for another type.
		var out T
		if err := c.decode(m.key, s.payload, &out); err != nil {
			return zero, err
		}
		return out, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// flightKey separates flights whose callers would store different entries,
// so no caller returns a value written with another caller's TTL or group.
func flightKey(key string, ttl time.Duration, group string) string {
	return key + "\x00" + strconv.FormatInt(int64(ttl), 10) + "\x00" + group
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
