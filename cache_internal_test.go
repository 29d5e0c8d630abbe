package chronocache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisalay/chronocache/snapshot"
)

//
// ================= HEAP-TABLE AGREEMENT =================
//
// Every expiring entry must have exactly one heap occurrence carrying its
// current expiry; never-expiring entries must have none; the recency list
// must mirror the table whenever LRU tracking is on.
//

func checkAgreement(t *testing.T, c *Cache) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	expiring := 0
	for key, ent := range c.entries {
		if ent.ExpireAt.IsZero() {
			assert.False(t, c.expiry.Contains(key),
				"never-expiring %q must have no heap occurrence", key)
		} else {
			expiring++
			assert.True(t, c.expiry.Contains(key),
				"expiring %q must be heap-tracked", key)
		}
	}
	assert.Equal(t, expiring, c.expiry.Len(), "heap holds only live expiring keys")

	if c.lru {
		assert.Equal(t, len(c.entries), len(c.nodes))
		assert.Equal(t, len(c.entries), c.order.Len())
	} else {
		assert.Zero(t, len(c.nodes))
	}

	for key := range c.clones {
		_, ok := c.entries[key]
		assert.True(t, ok, "clone memo for %q outlived its entry", key)
	}
}

func TestAgreementThroughMutations(t *testing.T) {
	c := New(WithMaxSize(8))

	for i := 0; i < 12; i++ {
		key := fmt.Sprintf("k%d", i)
		if i%3 == 0 {
			require.NoError(t, c.Set(key, i))
		} else {
			require.NoError(t, c.SetWithTTL(key, i, time.Duration(20+i)*time.Millisecond))
		}
		checkAgreement(t, c)
	}

	// replacements flipping between expiring and never-expiring
	require.NoError(t, c.SetWithTTL("k9", "now expiring", time.Minute))
	checkAgreement(t, c)
	require.NoError(t, c.Set("k9", "never again"))
	checkAgreement(t, c)

	c.UpdateTTL("k9", 40*time.Millisecond)
	checkAgreement(t, c)
	c.UpdateTTL("k9", NoExpiration)
	checkAgreement(t, c)

	c.Delete("k10")
	c.Delete("k11")
	checkAgreement(t, c)

	time.Sleep(60 * time.Millisecond)
	c.Cleanup()
	checkAgreement(t, c)

	c.Clear()
	checkAgreement(t, c)
	assert.Equal(t, 0, c.expiry.Len())
	assert.Equal(t, 0, c.order.Len())
}

func TestLazyExpiryRemovesHeapOccurrence(t *testing.T) {
	c := New()

	c.SetWithTTL("stale", 1, 15*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	// lazy reclamation via Get must also clear the heap occurrence
	v, err := c.Get("stale")
	require.NoError(t, err)
	require.Nil(t, v)
	checkAgreement(t, c)
	assert.Equal(t, 0, c.expiry.Len())
}

//
// ================= ENTRY REPLACEMENT SEMANTICS =================
//

func TestHitReplacesEntryWholesale(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("k", "v"))

	c.mu.Lock()
	before := c.entries["k"]
	c.mu.Unlock()

	_, err := c.Get("k")
	require.NoError(t, err)
	_, err = c.Get("k")
	require.NoError(t, err)

	c.mu.Lock()
	after := c.entries["k"]
	c.mu.Unlock()

	assert.NotSame(t, before, after, "access bumps allocate a fresh entry")
	assert.Equal(t, uint64(0), before.AccessCount, "old snapshots stay frozen")
	assert.Equal(t, uint64(2), after.AccessCount)
}

func TestCloneMemoValidatedByIdentity(t *testing.T) {
	c := New(WithCloneReuse(true), WithCopyPolicy(snapshot.PolicyNone))

	first := map[string]int{"n": 1}
	require.NoError(t, c.Set("k", first))
	v1, _ := c.Get("k")

	// replacing the stored object must invalidate the memoized clone even
	// though the key is unchanged
	second := map[string]int{"n": 2}
	require.NoError(t, c.Set("k", second))
	v2, _ := c.Get("k")

	assert.Equal(t, 1, v1.(map[string]int)["n"])
	assert.Equal(t, 2, v2.(map[string]int)["n"])

	c.mu.Lock()
	rec, ok := c.clones["k"]
	c.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, 2, rec.clone.(map[string]int)["n"])
}
