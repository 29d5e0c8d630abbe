package chronocache

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krisalay/chronocache/snapshot"
)

// NoExpiration stores an entry without a TTL. It is the zero duration, so
// Set without a default TTL configured keeps entries forever.
const NoExpiration time.Duration = 0

// TTL sentinels, modeled on the Redis convention.
const (
	// TTLNever marks an entry that has no expiry.
	TTLNever time.Duration = -1

	// TTLMissing marks a key that is absent or already expired.
	TTLMissing time.Duration = -2
)

// EvictCause says why the cache removed an entry on its own.
type EvictCause string

const (
	// EvictedCapacity marks LRU evictions forced by MaxSize.
	EvictedCapacity EvictCause = "capacity"

	// EvictedExpired marks removals of entries past their TTL, whether found
	// lazily on access or swept by Cleanup.
	EvictedExpired EvictCause = "expired"
)

/*
EvictFunc observes policy-driven removals: capacity evictions and expiries.
Explicit Delete calls do not fire it.

The callback runs with the cache lock held. Keep it cheap and never call back
into the cache from inside it.
*/
type EvictFunc func(key string, value any, cause EvictCause)

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithMaxSize caps the number of entries. Zero or negative means unbounded.
// The cap is enforced by evicting the least recently used entry, so it only
// binds while LRU tracking is enabled.
func WithMaxSize(n int) Option {
	return func(c *Cache) {
		c.maxSize = n
	}
}

// WithLRU toggles recency tracking. On by default; turning it off makes
// reads cheaper but leaves MaxSize unenforced.
func WithLRU(enabled bool) Option {
	return func(c *Cache) {
		c.lru = enabled
	}
}

// WithCopyPolicy selects how values are copied on write. The default is
// snapshot.PolicyDeep, which fully severs the stored value from the caller.
func WithCopyPolicy(p snapshot.Policy) Option {
	return func(c *Cache) {
		c.policy = p
	}
}

/*
WithCloneReuse makes Get memoize one clone per key and hand the same clone
back while the stored value is unchanged, instead of re-cloning on every
read. Cuts clone cost for hot keys at a price: callers share that memoized
clone, so a caller mutating a returned value affects later readers of the
same key. Off by default.
*/
func WithCloneReuse(enabled bool) Option {
	return func(c *Cache) {
		c.cloneReuse = enabled
	}
}

// WithDefaultTTL sets the TTL Set applies. NoExpiration (the default) keeps
// entries until evicted or deleted.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.defaultTTL = d
		}
	}
}

// WithOnEvict installs a callback for policy-driven removals.
func WithOnEvict(fn EvictFunc) Option {
	return func(c *Cache) {
		c.onEvict = fn
	}
}

// WithLogger routes the cache's structured logs. Defaults to the logrus
// standard logger.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l.WithField("component", "cache")
		}
	}
}
