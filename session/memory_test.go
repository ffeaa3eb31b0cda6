package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestLoadOrCreateFresh(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close(ctx)

	id := NewID()
	rec, created, err := store.LoadOrCreate(ctx, id)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, id, rec.ID)
	assert.Empty(t, rec.Payload)
	assert.Equal(t, rec.LastAccessed.Add(DefaultTTL), rec.ExpiresAt)

	rec2, created, err := store.LoadOrCreate(ctx, id)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, rec2.ID)
}

func TestLoadOrCreateConcurrentOneWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close(ctx)

	id := NewID()
	const callers = 64
	var createdCount atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, created, err := store.LoadOrCreate(ctx, id)
			assert.NoError(t, err)
			if created {
				createdCount.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	// Exactly one caller installs the record; everyone else observes it.
	assert.Equal(t, int64(1), createdCount.Load())
	assert.Equal(t, 1, store.Len())
}

func TestMutateConcurrentNoLostUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithLockWait(5 * time.Second))
	defer store.Close(ctx)

	id := NewID()
	const (
		workers    = 16
		increments = 50
	)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				_, err := store.Mutate(ctx, id, func(payload map[string]any) error {
					n, _ := payload["counter"].(int)
					payload["counter"] = n + 1
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	rec, created, err := store.LoadOrCreate(ctx, id)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, workers*increments, rec.Payload["counter"])
}

func TestMutateDifferentIdentifiersIndependent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close(ctx)

	// Pick a second identifier that is guaranteed not to share a lock
	// stripe with the held one.
	held := "held"
	heldStripe := xxhash.Sum64String(held) & store.locks.mask
	var free string
	for i := 0; ; i++ {
		cand := fmt.Sprintf("free-%d", i)
		if xxhash.Sum64String(cand)&store.locks.mask != heldStripe {
			free = cand
			break
		}
	}

	blocked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, err := store.Mutate(ctx, held, func(payload map[string]any) error {
			close(blocked)
			<-release
			return nil
		})
		assert.NoError(t, err)
	}()
	<-blocked

	// The unrelated identifier must not wait behind the held one.
	done := make(chan struct{})
	go func() {
		_, err := store.Mutate(ctx, free, func(payload map[string]any) error {
			payload["x"] = 1
			return nil
		})
		assert.NoError(t, err)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mutate on unrelated identifier blocked")
	}
	close(release)
}

func TestMutateSameIdentifierBusy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithLockWait(20 * time.Millisecond))
	defer store.Close(ctx)

	id := NewID()
	blocked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, err := store.Mutate(ctx, id, func(payload map[string]any) error {
			close(blocked)
			<-release
			return nil
		})
		assert.NoError(t, err)
	}()
	<-blocked

	_, err := store.Mutate(ctx, id, func(payload map[string]any) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrBusy)
	close(release)
}

func TestMutateCancelledContext(t *testing.T) {
	store := NewMemoryStore(WithLockWait(time.Minute))
	defer store.Close(context.Background())

	id := NewID()
	blocked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, err := store.Mutate(context.Background(), id, func(payload map[string]any) error {
			close(blocked)
			<-release
			return nil
		})
		assert.NoError(t, err)
	}()
	<-blocked

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := store.Mutate(ctx, id, func(payload map[string]any) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	close(release)
}

func TestSlidingExpiration(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	store := NewMemoryStore(WithTTL(30*time.Second), WithClock(clk.Now))
	defer store.Close(ctx)

	id := NewID()
	_, created, err := store.LoadOrCreate(ctx, id)
	require.NoError(t, err)
	require.True(t, created)

	_, err = store.Mutate(ctx, id, func(payload map[string]any) error {
		payload["cart"] = map[string]int{"item123": 1}
		return nil
	})
	require.NoError(t, err)

	// 10 seconds later the record is live, its contents intact, and the
	// touch advanced lastAccessed.
	clk.Advance(10 * time.Second)
	rec, created, err := store.LoadOrCreate(ctx, id)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, map[string]int{"item123": 1}, rec.Payload["cart"])
	assert.Equal(t, clk.Now(), rec.LastAccessed)
	assert.Equal(t, clk.Now().Add(30*time.Second), rec.ExpiresAt)

	// 31 seconds past the last touch the record is logically dead: the
	// prior cart must never be served, a fresh empty record takes over.
	clk.Advance(31 * time.Second)
	rec, created, err = store.LoadOrCreate(ctx, id)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Empty(t, rec.Payload)
}

func TestExpiredRecordNotServedBeforeSweep(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	store := NewMemoryStore(WithTTL(30*time.Second), WithClock(clk.Now))
	defer store.Close(ctx)

	id := NewID()
	_, err := store.Mutate(ctx, id, func(payload map[string]any) error {
		payload["secret"] = "stale"
		return nil
	})
	require.NoError(t, err)

	// Physically present, logically dead — no sweep has run.
	clk.Advance(31 * time.Second)
	require.Equal(t, 1, store.Len())
	rec, created, err := store.LoadOrCreate(ctx, id)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotContains(t, rec.Payload, "secret")
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close(ctx)

	id := NewID()
	_, err := store.Mutate(ctx, id, func(payload map[string]any) error {
		payload["cart"] = "full"
		return nil
	})
	require.NoError(t, err)

	ok, err := store.Invalidate(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	rec, created, err := store.LoadOrCreate(ctx, id)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Empty(t, rec.Payload)

	ok, err = store.Invalidate(ctx, "never-seen")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	store := NewMemoryStore(WithTTL(30*time.Second), WithClock(clk.Now))
	defer store.Close(ctx)

	_, _, err := store.LoadOrCreate(ctx, "a")
	require.NoError(t, err)
	_, _, err = store.LoadOrCreate(ctx, "b")
	require.NoError(t, err)

	// Touch "a" at t+20s; by t+35s only "b" has expired.
	clk.Advance(20 * time.Second)
	_, _, err = store.LoadOrCreate(ctx, "a")
	require.NoError(t, err)
	clk.Advance(15 * time.Second)

	removed, err := store.SweepExpired(ctx, clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())

	// "a" is still live with its sliding window intact.
	_, created, err := store.LoadOrCreate(ctx, "a")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestSweepDoesNotRemoveConcurrentlyTouchedRecord(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	store := NewMemoryStore(WithTTL(30*time.Second), WithClock(clk.Now))
	defer store.Close(ctx)

	const sessions = 32
	ids := make([]string, sessions)
	for i := range ids {
		ids[i] = NewID()
		_, _, err := store.LoadOrCreate(ctx, ids[i])
		require.NoError(t, err)
	}

	// Concurrent touches and sweeps over several simulated minutes: a
	// record kept alive by touches must survive every sweep.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for _, id := range ids[:8] {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_, _, err := store.LoadOrCreate(ctx, id)
					assert.NoError(t, err)
				}
			}
		}(id)
	}
	for i := 0; i < 10; i++ {
		clk.Advance(10 * time.Second)
		for _, id := range ids[:8] {
			_, _, err := store.LoadOrCreate(ctx, id)
			require.NoError(t, err)
		}
		_, err := store.SweepExpired(ctx, clk.Now())
		assert.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	// The 8 touched sessions are alive; the 24 idle ones were swept once
	// their windows lapsed.
	for _, id := range ids[:8] {
		_, created, err := store.LoadOrCreate(ctx, id)
		require.NoError(t, err)
		assert.False(t, created)
	}
	assert.Equal(t, 8, store.Len())
}

func TestSnapshotIsDetached(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close(ctx)

	id := NewID()
	_, err := store.Mutate(ctx, id, func(payload map[string]any) error {
		payload["n"] = 1
		return nil
	})
	require.NoError(t, err)

	rec, _, err := store.LoadOrCreate(ctx, id)
	require.NoError(t, err)
	rec.Payload["n"] = 99

	// Writing through a snapshot never reaches the canonical record.
	rec2, _, err := store.LoadOrCreate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, rec2.Payload["n"])
}

func TestNewID(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
