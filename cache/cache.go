package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/memocache/observe"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Operation names used in telemetry.
const (
	opGet             = "get"
	opRemember        = "remember"
	opRememberForever = "remember_forever"
	opForget          = "forget"
	opForgetGroup     = "forget_group"
	opForgetAll       = "forget_all"
	opPurge           = "purge"
)

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}

// Cache maps string keys to encoded entries behind a reader-writer lock.
//
// Contract:
// - Concurrency: all methods are safe for concurrent use.
// - Context: only the remember paths block on ctx; other methods use it for telemetry.
// - Errors: missing keys are never errors; Forget, ForgetGroup, ForgetAll and Purge are infallible.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	name   string
	codec  Codec
	now    func() time.Time
	instr  *observe.Middleware
	logger observe.Logger
	flight *singleflight.Group
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]Entry),
		codec:   JSONCodec{},
		now:     time.Now,
		instr:   observe.NopMiddleware(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = c.instr.Logger()
	}
	if c.name != "" {
		c.logger = c.logger.WithCache(c.name)
	}
	return c
}

// Name returns the name given with WithName.
func (c *Cache) Name() string {
	return c.name
}

func (c *Cache) meta(op, key, group string) observe.OpMeta {
	return observe.OpMeta{Cache: c.name, Op: op, Key: key, Group: group}
}

func (c *Cache) encode(key string, v any) (string, error) {
	payload, err := c.codec.Encode(v)
	if err != nil {
		return "", &EncodeError{Key: key, Err: err}
	}
	return payload, nil
}

func (c *Cache) decode(key, payload string, out any) error {
	if err := c.codec.Decode(payload, out); err != nil {
		return &DecodeError{Key: key, Err: err}
	}
	return nil
}

// lookup returns the payload mapped to key. With checkExpiry, entries past
// their expiry are reported as absent.
func (c *Cache) lookup(key string, checkExpiry bool) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if checkExpiry && !e.Fresh(c.now()) {
		return "", false
	}
	return e.Payload, true
}

// store overwrites key with a new entry. The expiry is computed from the
// clock at write time.
func (c *Cache) store(key, payload string, ttl time.Duration, group string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = NewEntry(payload, c.now(), ttl, group)
}

// Put stores value under key with no expiry and no group, replacing any
// existing entry.
func (c *Cache) Put(_ context.Context, key string, value any) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	payload, err := c.encode(key, value)
	if err != nil {
		return err
	}
	c.store(key, payload, NoExpiry, "")
	return nil
}

// GetInto decodes the payload mapped to key into out, which must be a
// non-nil pointer. It reports false when the key is absent. Expiry is not
// consulted: an expired but unpurged entry is still returned.
func (c *Cache) GetInto(ctx context.Context, key string, out any) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	payload, ok := c.lookup(key, false)
	c.instr.RecordLookup(ctx, c.meta(opGet, key, ""), ok)
	if !ok {
		return false, nil
	}
	if err := c.decode(key, payload, out); err != nil {
		return false, err
	}
	return true, nil
}

// SetGroup tags the entry under key with group. A missing key is a no-op.
func (c *Cache) SetGroup(_ context.Context, key, group string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if group == "" {
		return ErrInvalidGroup
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.Group = group
		c.entries[key] = e
	}
	return nil
}

// Forget removes key. A missing or invalid key is a no-op.
func (c *Cache) Forget(ctx context.Context, key string) {
	c.mu.Lock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()

	if ok {
		c.instr.RecordRemoval(ctx, c.meta(opForget, key, ""), 1)
	}
}

// ForgetGroup removes every entry tagged with group under one write lock and
// returns how many were removed. An empty group matches nothing.
func (c *Cache) ForgetGroup(ctx context.Context, group string) int {
	if group == "" {
		return 0
	}

	c.mu.Lock()
	removed := 0
	for key, e := range c.entries {
		if e.Group == group {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	c.instr.RecordRemoval(ctx, c.meta(opForgetGroup, "", group), removed)
	return removed
}

// ForgetAll removes every entry and returns how many were removed.
func (c *Cache) ForgetAll(ctx context.Context) int {
	c.mu.Lock()
	removed := len(c.entries)
	clear(c.entries)
	c.mu.Unlock()

	c.instr.RecordRemoval(ctx, c.meta(opForgetAll, "", ""), removed)
	return removed
}

// Purge removes every entry whose expiry is at or before now and returns how
// many were removed. Entries without an expiry are kept.
func (c *Cache) Purge(ctx context.Context) int {
	c.mu.Lock()
	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	c.instr.RecordRemoval(ctx, c.meta(opPurge, "", ""), removed)
	if removed > 0 {
		c.logger.Debug(ctx, "purged expired entries", observe.Field{Key: "count", Value: removed})
	}
	return removed
}

// Len returns the number of mapped entries, including expired ones not yet
// purged.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stale returns the number of mapped entries that Purge would remove now.
func (c *Cache) Stale() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	n := 0
	for _, e := range c.entries {
		if e.Expired(now) {
			n++
		}
	}
	return n
}

// Keys returns the mapped keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	c.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Lookup returns a copy of the entry mapped to key.
func (c *Cache) Lookup(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}
