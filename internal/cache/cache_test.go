// ABOUTME: Tests for the TTL value cache
// ABOUTME: Validates expiry, replacement, size-bounded eviction, cleanup and concurrency

package cache

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCache(ttl time.Duration, size int) (*Cache[int], *clock) {
	clk := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := New[int](ttl, size)
	c.now = clk.now
	return c, clk
}

func TestCache_GetMissing(t *testing.T) {
	c, _ := newTestCache(time.Second, 10)
	defer c.Close()

	_, ok := c.Get("status")
	assert.False(t, ok)
}

func TestCache_SetGet(t *testing.T) {
	c, _ := newTestCache(time.Second, 10)
	defer c.Close()

	c.Set("status", 3)
	v, ok := c.Get("status")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	c.Set("status", 4)
	v, _ = c.Get("status")
	assert.Equal(t, 4, v)
	assert.Equal(t, 1, c.Len())
}

func TestCache_Expiry(t *testing.T) {
	c, clk := newTestCache(2*time.Second, 10)
	defer c.Close()

	c.Set("status", 1)
	clk.advance(time.Second)
	_, ok := c.Get("status")
	assert.True(t, ok)

	clk.advance(time.Second)
	_, ok = c.Get("status")
	assert.False(t, ok)

	c.removeExpired()
	assert.Equal(t, 0, c.Len())
}

func TestCache_EvictsOldest(t *testing.T) {
	c, _ := newTestCache(time.Minute, 2)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10) // refresh moves a behind b
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 10, v)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestCache_CloseTwice(t *testing.T) {
	c := New[string](time.Second, 1)
	c.Close()
	c.Close()
}

func TestCache_Concurrent(t *testing.T) {
	c := New[int](time.Minute, 50)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := strconv.Itoa((i * j) % 80)
				c.Set(key, j)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}
