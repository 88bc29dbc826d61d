// SPDX-License-Identifier: MIT

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache(0)

	c.Set("occ:id:17", []byte(`{"id":"17"}`), 5*time.Minute)

	val, found := c.Get("occ:id:17")
	require.True(t, found)
	assert.Equal(t, []byte(`{"id":"17"}`), val)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 1, stats.CurrentSize)
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache(0)

	_, found := c.Get("missing")
	assert.False(t, found)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(0)

	c.Set("short", []byte("v"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	_, found := c.Get("short")
	assert.False(t, found)
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemoryCache(0)

	c.Set("occ:id:1", []byte("a"), time.Minute)
	c.Delete("occ:id:1")

	_, found := c.Get("occ:id:1")
	assert.False(t, found)
}

func TestMemoryCacheDeletePrefix(t *testing.T) {
	c := NewMemoryCache(0)

	c.Set("occ:list:flooding:20:0", []byte("a"), time.Minute)
	c.Set("occ:list::20:0", []byte("b"), time.Minute)
	c.Set("atype:list", []byte("c"), time.Minute)

	c.DeletePrefix("occ:")

	_, found := c.Get("occ:list:flooding:20:0")
	assert.False(t, found)
	_, found = c.Get("occ:list::20:0")
	assert.False(t, found)

	// other namespaces untouched
	_, found = c.Get("atype:list")
	assert.True(t, found)
}

func TestMemoryCacheJanitor(t *testing.T) {
	c := NewMemoryCache(20 * time.Millisecond)
	defer c.Stop()

	c.Set("expired", []byte("v"), time.Millisecond)

	assert.Eventually(t, func() bool {
		return c.Stats().CurrentSize == 0
	}, time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, c.Stats().Evictions, int64(1))
}

func TestMemoryCacheStopHaltsJanitor(t *testing.T) {
	c := NewMemoryCache(time.Millisecond)

	// Stop hands off to the janitor goroutine; it must acknowledge promptly
	// so shutdown hooks cannot hang on it.
	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not acknowledge stop")
	}

	// the cache stays usable after the janitor is gone
	c.Set("k", []byte("v"), time.Minute)
	_, found := c.Get("k")
	assert.True(t, found)
}

func TestNoOpCache(t *testing.T) {
	c := NewNoOpCache()

	c.Set("k", []byte("v"), time.Minute)
	_, found := c.Get("k")
	assert.False(t, found)
	assert.Equal(t, Stats{}, c.Stats())
}
