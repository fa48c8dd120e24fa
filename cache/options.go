package cache

import (
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/memocache/observe"
)

// Option configures a Cache.
type Option func(*Cache)

// WithName names the cache in telemetry and logs.
func WithName(name string) Option {
	return func(c *Cache) {
		c.name = name
	}
}

// WithCodec sets the payload codec. The default is JSONCodec.
func WithCodec(codec Codec) Option {
	return func(c *Cache) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithClock replaces time.Now as the source of the current instant.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithInstrumentation routes lookups, producer runs, and removals through
// the given middleware. Its logger becomes the cache logger unless WithLogger
// is also given.
func WithInstrumentation(mw *observe.Middleware) Option {
	return func(c *Cache) {
		if mw != nil {
			c.instr = mw
		}
	}
}

// WithLogger sets the logger used for the cache's own debug output.
func WithLogger(logger observe.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithSingleFlight makes concurrent misses on the same key share a single
// producer run. Without it every miss runs its own producer.
func WithSingleFlight() Option {
	return func(c *Cache) {
		c.flight = &singleflight.Group{}
	}
}
