package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](size, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("2023", "a")
	c.Set("2024", "b")

	_, ok := c.Get("2023")
	require.True(t, ok)

	c.Set("2025", "c")
	assert.Equal(t, 2, c.Size())
	_, ok = c.Get("2024")
	assert.False(t, ok, "2024 was least recently used")
	v, ok := c.Get("2023")
	assert.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestLRUExpiry(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("k", "v")
	c.Set("other", "v")

	clock.t = clock.t.Add(30 * time.Second)
	c.Set("other", "v2")

	clock.t = clock.t.Add(31 * time.Second)
	_, ok := c.Get("k")
	assert.False(t, ok)

	assert.Equal(t, 0, c.CleanExpired())
	assert.Equal(t, 1, c.Size())

	clock.t = clock.t.Add(time.Minute)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 0, c.Size())
}

func TestLRUDeleteAndPurge(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")

	c.Delete("b")
	c.Delete("missing")
	assert.Equal(t, 2, c.Size())

	c.Purge()
	assert.Equal(t, 0, c.Size())
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", "again")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "again", v)
}

func TestJanitorSweep(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	j := NewJanitor(nil)
	j.Register(c)
	assert.Equal(t, 0, j.Sweep())

	clock.t = clock.t.Add(2 * time.Minute)
	assert.Equal(t, 2, j.Sweep())

	j.Start(time.Hour)
	j.Start(time.Hour)
	j.Stop()
	j.Stop()
}
