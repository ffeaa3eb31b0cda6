package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// mutateRetries bounds how often Mutate restarts after losing a race with
// Invalidate or expiry between reading and installing the payload.
const mutateRetries = 3

type record struct {
	gen          uint64
	payload      map[string]any
	lastAccessed time.Time
	expiresAt    time.Time
}

type shard struct {
	mu      sync.Mutex
	records map[string]*record
}

// MemoryStore is the in-process Store implementation. Records live in a
// fixed power-of-two array of shards, each guarded by its own mutex, with
// the identifier hashed to a shard — traffic on unrelated sessions never
// shares a lock. Payload mutation is additionally serialized per identifier
// through a striped lock table so that a slow MutateFunc cannot block other
// sessions that happen to share its map shard.
type MemoryStore struct {
	shards []*shard
	mask   uint64
	locks  *lockTable
	gen    atomic.Uint64
	cfg    storeConfig
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an in-process session store. It owns no background
// goroutines — pair it with a Reaper for periodic sweeping.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	cfg := applyStoreOptions(opts)
	n := nextPowerOfTwo(cfg.shards)
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{records: make(map[string]*record)}
	}
	return &MemoryStore{
		shards: shards,
		mask:   uint64(n - 1),
		locks:  newLockTable(n * 16),
		cfg:    cfg,
	}
}

func (s *MemoryStore) shardFor(id string) *shard {
	return s.shards[xxhash.Sum64String(id)&s.mask]
}

// newRecordLocked installs a fresh empty record for id. Caller holds sh.mu.
func (s *MemoryStore) newRecordLocked(sh *shard, id string, now time.Time) *record {
	rec := &record{
		gen:          s.gen.Add(1),
		payload:      make(map[string]any),
		lastAccessed: now,
		expiresAt:    now.Add(s.cfg.ttl),
	}
	sh.records[id] = rec
	return rec
}

func snapshot(id string, rec *record) Record {
	return Record{
		ID:           id,
		Payload:      copyPayload(rec.payload),
		LastAccessed: rec.lastAccessed,
		ExpiresAt:    rec.expiresAt,
	}
}

func (s *MemoryStore) LoadOrCreate(_ context.Context, id string) (Record, bool, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := s.cfg.now()
	rec, ok := sh.records[id]
	if !ok || now.After(rec.expiresAt) {
		// Unseen or logically dead: install a fresh record under the same
		// shard lock, so concurrent callers all observe the one winner.
		rec = s.newRecordLocked(sh, id, now)
		return snapshot(id, rec), true, nil
	}

	// Sliding expiration: every successful load is a touch.
	rec.lastAccessed = now
	rec.expiresAt = now.Add(s.cfg.ttl)
	return snapshot(id, rec), false, nil
}

func (s *MemoryStore) Mutate(ctx context.Context, id string, fn MutateFunc) (Record, error) {
	release, err := s.locks.acquire(ctx, id, s.cfg.lockWait)
	if err != nil {
		return Record{}, err
	}
	defer release()

	sh := s.shardFor(id)
	for attempt := 0; ; attempt++ {
		sh.mu.Lock()
		now := s.cfg.now()
		rec, ok := sh.records[id]
		if !ok || now.After(rec.expiresAt) {
			rec = s.newRecordLocked(sh, id, now)
		}
		gen := rec.gen
		work := copyPayload(rec.payload)
		sh.mu.Unlock()

		// fn runs outside the shard lock; the per-identifier section above
		// guarantees no other mutator interleaves, so fn always observes the
		// prior mutation's result.
		if err := fn(work); err != nil {
			return Record{}, err
		}

		sh.mu.Lock()
		now = s.cfg.now()
		cur, ok := sh.records[id]
		if ok && cur.gen == gen && !now.After(cur.expiresAt) {
			cur.payload = work
			cur.lastAccessed = now
			cur.expiresAt = now.Add(s.cfg.ttl)
			snap := snapshot(id, cur)
			sh.mu.Unlock()
			return snap, nil
		}
		sh.mu.Unlock()

		// The record was invalidated or expired while fn ran. Start over on
		// the current state rather than resurrecting stale contents.
		if attempt >= mutateRetries {
			return Record{}, ErrBusy
		}
	}
}

func (s *MemoryStore) Invalidate(_ context.Context, id string) (bool, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.records[id]
	if ok {
		delete(sh.records, id)
	}
	return ok, nil
}

func (s *MemoryStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, rec := range sh.records {
			// Same consistency check as the live path, under the same shard
			// lock: a record a concurrent touch just extended is not removed.
			if now.After(rec.expiresAt) {
				delete(sh.records, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of physically present records, expired or not.
func (s *MemoryStore) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.records)
		sh.mu.Unlock()
	}
	return total
}

func (s *MemoryStore) Close(_ context.Context) error {
	return nil
}
