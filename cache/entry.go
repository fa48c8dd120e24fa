package cache

import (
	"math"
	"time"
)

// NoExpiry is the TTL of entries that never expire.
const NoExpiry time.Duration = -1

// maxHours is the largest hour count representable as a time.Duration.
const maxHours = uint64(math.MaxInt64 / int64(time.Hour))

// Entry is a stored record: the encoded payload, an optional absolute expiry,
// and an optional group tag.
//
// A zero ExpiresAt means the entry never expires. An empty Group means the
// entry belongs to no group.
type Entry struct {
	Payload   string
	ExpiresAt time.Time
	Group     string
}

// NewEntry builds an entry that expires ttl after now. A negative ttl (see
// NoExpiry) yields an entry that never expires; a zero ttl yields one that is
// already due for purge.
func NewEntry(payload string, now time.Time, ttl time.Duration, group string) Entry {
	e := Entry{Payload: payload, Group: group}
	if ttl >= 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	return e
}

// HoursToTTL converts a whole-hour TTL to a duration. Hour counts too large
// for a time.Duration (about 292 years) are treated as NoExpiry.
func HoursToTTL(hours uint64) time.Duration {
	if hours > maxHours {
		return NoExpiry
	}
	return time.Duration(hours) * time.Hour
}

// HasExpiry reports whether the entry carries an expiry instant.
func (e Entry) HasExpiry() bool {
	return !e.ExpiresAt.IsZero()
}

// Fresh reports whether a TTL-checking read may serve the entry at now.
// The expiry instant itself still counts as fresh.
func (e Entry) Fresh(now time.Time) bool {
	return !e.HasExpiry() || !now.After(e.ExpiresAt)
}

// Expired reports whether Purge removes the entry at now: it has an expiry
// and the expiry is not after now.
func (e Entry) Expired(now time.Time) bool {
	return e.HasExpiry() && !now.Before(e.ExpiresAt)
}
