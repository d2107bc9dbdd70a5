package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func newClockedStore() (*MemoryDeliveryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)}
	return NewMemoryDeliveryStore(0, WithClock(clock.Now)), clock
}

func TestMemoryDeliveryStore_MarkProcessed(t *testing.T) {
	store, clock := newClockedStore()
	defer store.Close()
	ctx := context.Background()

	first, err := store.MarkProcessed(ctx, "evt_1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.MarkProcessed(ctx, "evt_1", time.Hour)
	require.NoError(t, err)
	assert.False(t, second)

	clock.Advance(time.Hour)
	afterExpiry, err := store.MarkProcessed(ctx, "evt_1", time.Hour)
	require.NoError(t, err)
	assert.True(t, afterExpiry, "expired delivery can be recorded again")
}

func TestMemoryDeliveryStore_IsProcessed(t *testing.T) {
	store, clock := newClockedStore()
	defer store.Close()
	ctx := context.Background()

	seen, err := store.IsProcessed(ctx, "evt_unknown")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = store.MarkProcessed(ctx, "evt_1", time.Minute)
	require.NoError(t, err)

	seen, err = store.IsProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	clock.Advance(time.Minute)
	seen, err = store.IsProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Zero(t, store.Len(), "expired key is dropped on access")
}

func TestMemoryDeliveryStore_Sweep(t *testing.T) {
	store, clock := newClockedStore()
	defer store.Close()
	ctx := context.Background()

	_, _ = store.MarkProcessed(ctx, "short", time.Second)
	_, _ = store.MarkProcessed(ctx, "long", time.Hour)
	clock.Advance(time.Minute)

	store.sweep()

	assert.Equal(t, 1, store.Len())
	seen, _ := store.IsProcessed(ctx, "long")
	assert.True(t, seen)
}

func TestMemoryDeliveryStore_ConcurrentMark(t *testing.T) {
	store := NewMemoryDeliveryStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.MarkProcessed(ctx, "evt_race", time.Hour)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryDeliveryStore_Close(t *testing.T) {
	store := NewMemoryDeliveryStore(10 * time.Millisecond)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	noSweep := NewMemoryDeliveryStore(0)
	require.NoError(t, noSweep.Close())
}

func TestMemoryDeliveryStore_ManyKeys(t *testing.T) {
	store, _ := newClockedStore()
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		ok, err := store.MarkProcessed(ctx, fmt.Sprintf("evt_%d", i), time.Hour)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 100, store.Len())
}
