package types

import "time"

// CacheEntry is one stored record.
//
// Entries are treated as immutable once written: every mutation, including
// the access-counter bump on reads, replaces the whole entry instead of
// updating a field in place. A caller holding an earlier *CacheEntry
// therefore observes a stable record no matter what later happens to the key.
type CacheEntry struct {
	Key         string
	Value       any
	ExpireAt    time.Time // zero => never expires
	AccessCount uint64
	CreatedAt   time.Time
}

// Expired reports whether the entry is past its expiry at the given instant.
// Entries without an expiry never expire.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpireAt.IsZero() && now.After(e.ExpireAt)
}

// Touched returns a copy of the entry with the access counter bumped.
// The receiver is left untouched; see the immutability note on CacheEntry.
func (e *CacheEntry) Touched() *CacheEntry {
	c := *e
	c.AccessCount++
	return &c
}
