package session

import (
	"context"
	"time"

	"github.com/agentuity/tiercache/cache"
)

// storedRecord is the wire form of a session record in a cache.Backend.
type storedRecord struct {
	Payload      map[string]any `msgpack:"p"`
	LastAccessed time.Time      `msgpack:"la"`
	ExpiresAt    time.Time      `msgpack:"ea"`
}

// BackendStore implements Store on top of a cache.Backend, typically the
// Redis backend, so sessions survive process restarts and can be shared by
// horizontally scaled replicas of one service.
//
// Atomicity of get-or-create and mutate comes from the same striped
// per-identifier sections the in-process store uses; cross-process cache
// coherence is explicitly out of scope. The per-identifier section spans the
// backend round-trip for that one identifier — it never covers an origin
// fetch, and the backend's per-query timeout bounds how long it can be held.
//
// Records that fail to decode are deleted and treated as unseen rather than
// served corrupted. Backend reachability failures surface as
// cache.ErrUnavailable so callers can degrade to origin-only behavior.
type BackendStore struct {
	backend cache.Backend
	locks   *lockTable
	cfg     storeConfig
}

var _ Store = (*BackendStore)(nil)

// NewBackendStore returns a session store persisted in backend. The backend
// receives the session TTL on every write, so a networked store expires
// records natively and SweepExpired is a no-op.
func NewBackendStore(backend cache.Backend, opts ...StoreOption) *BackendStore {
	cfg := applyStoreOptions(opts)
	return &BackendStore{
		backend: backend,
		locks:   newLockTable(nextPowerOfTwo(cfg.shards) * 16),
		cfg:     cfg,
	}
}

// load fetches and decodes the record for id. A missing, expired, or
// undecodable record reports found=false.
func (s *BackendStore) load(ctx context.Context, id string) (storedRecord, bool, error) {
	found, data, err := s.backend.Get(ctx, id)
	if err != nil || !found {
		return storedRecord{}, false, err
	}
	rec, err := cache.Decode[storedRecord](data)
	if err != nil {
		// Poisoned payload: drop it and treat the identifier as unseen.
		_, _ = s.backend.Delete(ctx, id)
		return storedRecord{}, false, nil
	}
	if s.cfg.now().After(rec.ExpiresAt) {
		return storedRecord{}, false, nil
	}
	if rec.Payload == nil {
		// msgpack decodes an empty map as nil.
		rec.Payload = make(map[string]any)
	}
	return rec, true, nil
}

func (s *BackendStore) store(ctx context.Context, id string, rec storedRecord) error {
	data, err := cache.Encode(rec)
	if err != nil {
		return err
	}
	return s.backend.SetWithTTL(ctx, id, data, s.cfg.ttl)
}

func (s *BackendStore) toRecord(id string, rec storedRecord) Record {
	return Record{
		ID:           id,
		Payload:      rec.Payload,
		LastAccessed: rec.LastAccessed,
		ExpiresAt:    rec.ExpiresAt,
	}
}

func (s *BackendStore) LoadOrCreate(ctx context.Context, id string) (Record, bool, error) {
	release, err := s.locks.acquire(ctx, id, s.cfg.lockWait)
	if err != nil {
		return Record{}, false, err
	}
	defer release()

	now := s.cfg.now()
	rec, found, err := s.load(ctx, id)
	if err != nil {
		return Record{}, false, err
	}
	created := !found
	if !found {
		rec = storedRecord{Payload: make(map[string]any)}
	}
	rec.LastAccessed = now
	rec.ExpiresAt = now.Add(s.cfg.ttl)
	if err := s.store(ctx, id, rec); err != nil {
		return Record{}, false, err
	}
	return s.toRecord(id, rec), created, nil
}

func (s *BackendStore) Mutate(ctx context.Context, id string, fn MutateFunc) (Record, error) {
	release, err := s.locks.acquire(ctx, id, s.cfg.lockWait)
	if err != nil {
		return Record{}, err
	}
	defer release()

	now := s.cfg.now()
	rec, found, err := s.load(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if !found {
		rec = storedRecord{Payload: make(map[string]any)}
	}
	if err := fn(rec.Payload); err != nil {
		return Record{}, err
	}
	rec.LastAccessed = now
	rec.ExpiresAt = now.Add(s.cfg.ttl)
	if err := s.store(ctx, id, rec); err != nil {
		return Record{}, err
	}
	return s.toRecord(id, rec), nil
}

func (s *BackendStore) Invalidate(ctx context.Context, id string) (bool, error) {
	return s.backend.Delete(ctx, id)
}

// SweepExpired is a no-op: the backend expires records natively via the TTL
// attached to every write.
func (s *BackendStore) SweepExpired(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

func (s *BackendStore) Close(ctx context.Context) error {
	return s.backend.Close(ctx)
}
