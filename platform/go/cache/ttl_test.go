package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for deterministic expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTTLGetWithinWindow(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c := NewTTL[string](5*time.Minute, clock.Now)

	c.Put("subdomain:acme", "tenant-a")

	got, ok := c.Get("subdomain:acme")
	require.True(t, ok)
	require.Equal(t, "tenant-a", got)

	clock.Advance(4 * time.Minute)
	got, ok = c.Get("subdomain:acme")
	require.True(t, ok)
	require.Equal(t, "tenant-a", got)
}

func TestTTLExpiry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c := NewTTL[int](30*time.Second, clock.Now)

	c.Put("health", 1)
	clock.Advance(31 * time.Second)

	_, ok := c.Get("health")
	require.False(t, ok)
}

func TestTTLPutRestartsWindow(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c := NewTTL[int](time.Minute, clock.Now)

	c.Put("k", 1)
	clock.Advance(45 * time.Second)
	c.Put("k", 2)
	clock.Advance(45 * time.Second)

	got, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, 2, got)
}

func TestTTLDelete(t *testing.T) {
	t.Parallel()

	c := NewTTL[string](time.Minute, nil)
	c.Put("k", "v")
	c.Delete("k")

	_, ok := c.Get("k")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}
