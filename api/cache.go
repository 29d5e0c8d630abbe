// Package api states the public contracts of the cache and the scheduler as
// interfaces, with compile-time proof that the concrete types satisfy them.
// Code that only reads and writes keys can depend on these instead of the
// implementations.
package api

import (
	"time"

	"github.com/krisalay/chronocache"
	"github.com/krisalay/chronocache/types"
)

/*
Cache is the public API of one cache instance. Everything behind it (the
expiry index, recency tracking, value copying, statistics) stays hidden;
the interface guarantees only the observable behaviors documented here.
*/
type Cache interface {

	/*
		Set stores a key-value pair using the cache's default TTL (no
		expiry unless the cache was built with one).

		BEHAVIOR:
		---------
		- Overwrites an existing entry wholesale, access count included
		- Applies the configured copy policy before storing
		- Evicts the least recently used entry when at capacity
	*/
	Set(key string, value any) error

	/*
		SetWithTTL stores a key-value pair with an explicit time-to-live.

		TTL:
		----
		- NoExpiration (zero) keeps the entry until evicted or deleted
		- A positive ttl expires the entry at now + ttl
		- Expired entries are reclaimed lazily on access and in bulk by
		  Cleanup
	*/
	SetWithTTL(key string, value any, ttl time.Duration) error

	/*
		Get retrieves the value stored under key.

		BEHAVIOR:
		---------
		- A hit bumps the entry's access count and recency
		- A miss returns (nil, nil); absence is not an error
		- An entry past its TTL is reclaimed on the spot and reads as a
		  miss
		- The returned value is isolated per the configured copy policy
	*/
	Get(key string) (any, error)

	/*
		Has reports whether key holds a live entry, without touching
		recency or the access count. An expired entry found on the way is
		reclaimed.
	*/
	Has(key string) bool

	/*
		Delete removes key immediately and reports whether it was present.
		Idempotent: deleting an absent key returns false.
	*/
	Delete(key string) bool

	/*
		Cleanup reclaims every entry past its TTL and returns how many
		were removed. Intended to run periodically from a scheduler task;
		reads stay lazy regardless.
	*/
	Cleanup() int

	/*
		TTL returns the remaining time-to-live for a key.

		RETURN VALUES (Redis-compatible semantics):
		-------------------------------------------
		> 0       : duration remaining before expiration
		TTLNever  : key exists but has no TTL
		TTLMissing: key does not exist or is already expired
	*/
	TTL(key string) time.Duration

	/*
		UpdateTTL rebases an existing key's expiry to now + ttl
		(NoExpiration removes the expiry). Returns false for absent or
		expired keys and for negative ttl.
	*/
	UpdateTTL(key string, ttl time.Duration) bool

	// Size returns the raw number of stored entries, not-yet-reclaimed
	// expired ones included.
	Size() int

	// Keys returns the keys of all live entries, in no particular order.
	Keys() []string

	// Clear removes every entry but keeps the cache usable and its
	// statistics intact.
	Clear()

	/*
		Destroy clears the cache and makes every later operation fail
		with ErrDestroyed (or its no-op equivalent). Call it when the
		cache goes out of service for good.
	*/
	Destroy()

	// Dump returns stable copies of every live entry, for persistence.
	Dump() []*types.CacheEntry

	// Restore installs snapshot entries, skipping ones already expired,
	// and returns how many were installed.
	Restore(entries []*types.CacheEntry) int

	// Stats returns a point-in-time copy of the activity counters.
	Stats() chronocache.Stats

	// MemoryStats reports the shape and approximate footprint of what is
	// currently held.
	MemoryStats() chronocache.MemoryStats
}

// The concrete cache must satisfy the contract.
var _ Cache = (*chronocache.Cache)(nil)
