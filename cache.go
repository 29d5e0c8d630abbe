package chronocache

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krisalay/chronocache/keyheap"
	"github.com/krisalay/chronocache/recency"
	"github.com/krisalay/chronocache/snapshot"
	"github.com/krisalay/chronocache/types"
)

/*
Cache is an in-process TTL cache with LRU eviction.

Three structures cooperate under one lock:

  - entries: the key -> record table
  - expiry: a key-indexed min-heap ordered by expiry time, so reclamation
    cost follows what is actually due, never the table size
  - order: a recency list whose tail is the next capacity-eviction victim

Every entry with an expiry has exactly one heap occurrence; never-expiring
entries have none. Expired entries are reclaimed lazily on access and in
bulk by Cleanup, which a scheduler is expected to drive periodically.

Every operation completes fully under the lock, so readers never observe a
half-applied mutation. All methods are safe for concurrent use.
*/
type Cache struct {
	mu sync.Mutex

	entries map[string]*types.CacheEntry
	expiry  *keyheap.Heap
	order   *recency.List
	nodes   map[string]*recency.Node

	// clones memoizes one served clone per key (see WithCloneReuse)
	clones map[string]cloneRecord

	// seen records every key ever read, to split cold misses from misses
	// on keys the caller has used before
	seen map[string]struct{}

	maxSize    int
	lru        bool
	policy     snapshot.Policy
	cloneReuse bool
	defaultTTL time.Duration
	onEvict    EvictFunc
	log        *logrus.Entry

	destroyed bool
	stats     counters
}

// cloneRecord remembers which stored value a memoized clone was derived
// from. src is that value's identity; the record is honored only while the
// live entry still holds the same identity, and never owns the original.
type cloneRecord struct {
	src   uintptr
	clone any
}

// New builds a cache. The zero configuration is unbounded, LRU-tracked,
// deep-copying on write, with no default TTL.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*types.CacheEntry),
		expiry:  keyheap.New(),
		order:   recency.New(),
		nodes:   make(map[string]*recency.Node),
		clones:  make(map[string]cloneRecord),
		seen:    make(map[string]struct{}),
		lru:     true,
		policy:  snapshot.PolicyDeep,
		log:     logrus.StandardLogger().WithField("component", "cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

/*
Set stores a value under the cache's default TTL (no expiry unless
WithDefaultTTL was given).
*/
func (c *Cache) Set(key string, value any) error {
	return c.SetWithTTL(key, value, c.defaultTTL)
}

/*
SetWithTTL stores a value with an explicit TTL. NoExpiration keeps the entry
until evicted or deleted; negative TTLs are rejected with ErrInvalidTTL.

The value is stored through the configured copy policy, so with shallow or
deep copying the caller's later mutations cannot leak into the cache.
Replacing an existing key replaces the whole entry. A new key arriving at
MaxSize evicts the least recently used entry first.
*/
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) error {
	start := time.Now()

	// validation fails before any state is touched
	if key == "" {
		return ErrInvalidKey
	}
	if ttl < 0 {
		return ErrInvalidTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}

	if _, exists := c.entries[key]; exists {
		// replacement: drop the old recency node and memoized clone so no
		// duplicate tracking survives
		if n, ok := c.nodes[key]; ok {
			c.order.Remove(n)
			delete(c.nodes, key)
		}
		delete(c.clones, key)
	} else if c.lru && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictTailLocked()
	}

	stored := snapshot.Apply(c.policy, value)

	now := time.Now()
	ent := &types.CacheEntry{
		Key:       key,
		Value:     stored,
		CreatedAt: now,
	}
	if ttl > 0 {
		ent.ExpireAt = now.Add(ttl)
	}
	c.entries[key] = ent

	if ent.ExpireAt.IsZero() {
		// a replaced expiring entry may have left an occurrence behind
		c.expiry.Remove(key)
	} else {
		c.expiry.Push(keyheap.Item{Key: key, Priority: ent.ExpireAt.UnixNano()})
	}

	if c.lru {
		n := recency.NewNode(key)
		c.nodes[key] = n
		c.order.AddToHead(n)
	}

	c.stats.sets++
	c.recordSetLatencyLocked(key, time.Since(start))
	return nil
}

/*
Get returns the value stored under key, or (nil, nil) on a miss. An expired
entry found here is reclaimed on the spot and reported as a miss.

A hit bumps the entry's access counter (by replacing the entry wholesale)
and moves the key to the most recently used position. The returned value is
a deep clone of the stored one; primitives come back as-is. See
WithCloneReuse for the memoized variant.
*/
func (c *Cache) Get(key string) (any, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrDestroyed
	}

	_, seenBefore := c.seen[key]
	c.seen[key] = struct{}{}

	ent, ok := c.entries[key]
	if !ok {
		c.stats.misses++
		if !seenBefore {
			c.stats.missesCold++
		}
		return nil, nil
	}

	if ent.Expired(time.Now()) {
		c.removeExpiredLocked(key, ent)
		c.stats.misses++
		c.stats.missesExpired++
		return nil, nil
	}

	touched := ent.Touched()
	c.entries[key] = touched

	if c.lru {
		if n, ok := c.nodes[key]; ok {
			c.order.MoveToHead(n)
		}
	}

	c.stats.hits++
	return c.serveLocked(key, touched.Value), nil
}

/*
Has reports whether key holds a live entry. It is Get without the side
effects: no access-count bump, no recency move, no clone. An expired entry
encountered here is still reclaimed.
*/
func (c *Cache) Has(key string) bool {
	if key == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return false
	}

	ent, ok := c.entries[key]
	if !ok {
		return false
	}
	if ent.Expired(time.Now()) {
		c.removeExpiredLocked(key, ent)
		return false
	}
	return true
}

// Delete removes key and every trace of it: entry, recency node, heap
// occurrence, memoized clone. Returns whether an entry was present. The
// eviction callback does not fire; deletes are the caller's own doing.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return false
	}

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	if n, ok := c.nodes[key]; ok {
		c.order.Remove(n)
		delete(c.nodes, key)
	}
	c.expiry.Remove(key)
	delete(c.clones, key)
	return true
}

/*
Cleanup reclaims every entry past its TTL and returns how many were removed.

The expiry heap keeps the cost proportional to what is actually due: peek
the minimum, stop as soon as it lies in the future. Heap items whose entries
were already reclaimed lazily are tolerated and skipped. Intended to be
driven periodically by a scheduler task.
*/
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return 0
	}

	now := time.Now()
	removed := 0
	var keep []keyheap.Item
	for {
		min, ok := c.expiry.Peek()
		if !ok || min.Priority > now.UnixNano() {
			break
		}
		c.expiry.Pop()

		ent, ok := c.entries[min.Key]
		if !ok {
			// already reclaimed lazily
			continue
		}
		if !ent.Expired(now) {
			// stale occurrence; the entry's real expiry is reinstated after
			// the drain so it cannot re-enter this loop
			if !ent.ExpireAt.IsZero() {
				keep = append(keep, keyheap.Item{Key: min.Key, Priority: ent.ExpireAt.UnixNano()})
			}
			continue
		}

		delete(c.entries, min.Key)
		if n, ok := c.nodes[min.Key]; ok {
			c.order.Remove(n)
			delete(c.nodes, min.Key)
		}
		delete(c.clones, min.Key)

		c.stats.evictionsExpired++
		if c.onEvict != nil {
			c.onEvict(min.Key, ent.Value, EvictedExpired)
		}
		removed++
	}
	for _, it := range keep {
		c.expiry.Push(it)
	}

	c.stats.cleanups++
	if removed > 0 {
		c.log.WithField("removed", removed).Debug("cleanup reclaimed expired entries")
	}
	return removed
}

/*
TTL returns the remaining lifetime of key: a non-negative remaining duration
for an expiring entry, TTLNever for an entry without an expiry, TTLMissing
when the key is absent or already expired.
*/
func (c *Cache) TTL(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return TTLMissing
	}

	ent, ok := c.entries[key]
	if !ok {
		return TTLMissing
	}
	if ent.ExpireAt.IsZero() {
		return TTLNever
	}
	d := time.Until(ent.ExpireAt)
	if d < 0 {
		return TTLMissing
	}
	return d
}

/*
UpdateTTL gives an existing live entry a new lifetime counted from now;
NoExpiration removes the expiry. Returns false when the key is absent,
already expired, or the TTL is negative. Like every mutation this replaces
the entry wholesale rather than editing it in place.
*/
func (c *Cache) UpdateTTL(key string, ttl time.Duration) bool {
	if ttl < 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return false
	}

	ent, ok := c.entries[key]
	if !ok || ent.Expired(time.Now()) {
		return false
	}

	next := *ent
	if ttl == NoExpiration {
		next.ExpireAt = time.Time{}
		c.expiry.Remove(key)
	} else {
		next.ExpireAt = time.Now().Add(ttl)
		c.expiry.Push(keyheap.Item{Key: key, Priority: next.ExpireAt.UnixNano()})
	}
	c.entries[key] = &next
	return true
}

// Size returns the number of entries in the table, including any expired
// ones not yet reclaimed.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the live (non-expired) keys in no particular order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}

	now := time.Now()
	out := make([]string, 0, len(c.entries))
	for k, ent := range c.entries {
		if !ent.Expired(now) {
			out = append(out, k)
		}
	}
	return out
}

// Clear drops every entry and all tracking state. Activity counters
// survive; use a fresh cache for fresh numbers.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.clearLocked()
}

// Destroy clears the cache and makes every later operation fail with
// ErrDestroyed (or its no-op equivalent). A cache registered with a manager
// has its scheduler tasks removed by the manager, not here.
func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.clearLocked()
	c.destroyed = true
	c.log.Debug("cache destroyed")
}

/*
Dump returns copies of every live entry for persistence. The copies are
stable after the lock is released, but their Values still reference the
stored objects; serialize them before mutating anything.
*/
func (c *Cache) Dump() []*types.CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}

	now := time.Now()
	out := make([]*types.CacheEntry, 0, len(c.entries))
	for _, ent := range c.entries {
		if ent.Expired(now) {
			continue
		}
		cp := *ent
		out = append(out, &cp)
	}
	return out
}

/*
Restore installs snapshot entries, overwriting keys that already exist and
skipping entries already past their expiry. Returns how many were installed.
Values are stored as-is: a serialization round-trip has already severed them
from any caller, so the copy policy is not applied again.
*/
func (c *Cache) Restore(entries []*types.CacheEntry) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return 0
	}

	now := time.Now()
	installed := 0
	for _, ent := range entries {
		if ent == nil || ent.Key == "" || ent.Expired(now) {
			continue
		}
		cp := *ent

		if _, exists := c.entries[cp.Key]; exists {
			if n, ok := c.nodes[cp.Key]; ok {
				c.order.Remove(n)
				delete(c.nodes, cp.Key)
			}
			delete(c.clones, cp.Key)
		} else if c.lru && c.maxSize > 0 && len(c.entries) >= c.maxSize {
			c.evictTailLocked()
		}

		c.entries[cp.Key] = &cp
		if cp.ExpireAt.IsZero() {
			c.expiry.Remove(cp.Key)
		} else {
			c.expiry.Push(keyheap.Item{Key: cp.Key, Priority: cp.ExpireAt.UnixNano()})
		}
		if c.lru {
			n := recency.NewNode(cp.Key)
			c.nodes[cp.Key] = n
			c.order.AddToHead(n)
		}
		installed++
	}
	return installed
}

// evictTailLocked removes the least recently used entry to make room.
func (c *Cache) evictTailLocked() {
	tail := c.order.RemoveTail()
	if tail == nil {
		return
	}
	victim := tail.Key()
	ent := c.entries[victim]
	delete(c.entries, victim)
	delete(c.nodes, victim)
	c.expiry.Remove(victim)
	delete(c.clones, victim)

	c.stats.evictionsCapacity++
	c.log.WithField("key", victim).Debug("evicted least recently used entry")
	if c.onEvict != nil && ent != nil {
		c.onEvict(victim, ent.Value, EvictedCapacity)
	}
}

// removeExpiredLocked reclaims an entry found past its TTL during a read.
func (c *Cache) removeExpiredLocked(key string, ent *types.CacheEntry) {
	delete(c.entries, key)
	if n, ok := c.nodes[key]; ok {
		c.order.Remove(n)
		delete(c.nodes, key)
	}
	c.expiry.Remove(key)
	delete(c.clones, key)

	c.stats.evictionsExpired++
	if c.onEvict != nil {
		c.onEvict(key, ent.Value, EvictedExpired)
	}
}

/*
serveLocked prepares a stored value for return. Primitives need no
protection. Reference values are deep-cloned; with clone reuse enabled the
clone is memoized per key and handed back again while the stored identity is
unchanged, so a hot key pays for one clone instead of one per read.
*/
func (c *Cache) serveLocked(key string, v any) any {
	if snapshot.Primitive(v) {
		return v
	}
	if c.cloneReuse {
		if id := snapshot.Identity(v); id != 0 {
			if rec, ok := c.clones[key]; ok && rec.src == id {
				return rec.clone
			}
			clone := snapshot.DeepCopy(v)
			c.clones[key] = cloneRecord{src: id, clone: clone}
			return clone
		}
	}
	return snapshot.DeepCopy(v)
}

func (c *Cache) clearLocked() {
	c.entries = make(map[string]*types.CacheEntry)
	c.expiry.Clear()
	c.order.Clear()
	c.nodes = make(map[string]*recency.Node)
	c.clones = make(map[string]cloneRecord)
	c.seen = make(map[string]struct{})
}
