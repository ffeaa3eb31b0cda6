package session

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrBusy is returned when the per-identifier exclusive section could not be
// acquired within the configured bounded wait. Callers retry or degrade to a
// direct-origin fetch rather than blocking indefinitely.
var ErrBusy = errors.New("session: record busy")

// DefaultTTL is the sliding expiration window applied to session records
// when no override is configured.
const DefaultTTL = 30 * time.Minute

// DefaultLockWait bounds how long an operation waits for a record's
// exclusive section before failing with ErrBusy.
const DefaultLockWait = 250 * time.Millisecond

// Record is an immutable snapshot of a session handed to callers. The store
// remains the sole owner of the canonical record; mutating a snapshot has no
// effect on the store. Use Store.Mutate to change a session's payload.
type Record struct {
	// ID is the opaque session identifier, immutable once assigned.
	ID string
	// Payload is a copy of the session's key-value contents. Values are
	// shared with the store and must be treated as immutable.
	Payload map[string]any
	// LastAccessed is the time of the last successful load or mutation.
	LastAccessed time.Time
	// ExpiresAt is always LastAccessed + TTL (sliding expiration).
	ExpiresAt time.Time
}

// MutateFunc transforms a session payload in place. It runs under the
// record's exclusive section and must not perform I/O or block — fetch any
// external data before calling Mutate and close over the result.
type MutateFunc func(payload map[string]any) error

// Store is a concurrent mapping from session identifier to session record
// with sliding-window expiration.
//
// The identifier is threaded explicitly through every operation. A record is
// never located by matching on its contents or timestamps.
type Store interface {
	// LoadOrCreate returns the live record for id, refreshing its sliding
	// expiration. If id is unseen or its record has expired, a fresh empty
	// record is installed atomically: two concurrent calls with the same
	// unseen id observe the same record, never two distinct ones. The bool
	// reports whether a fresh record was created.
	LoadOrCreate(ctx context.Context, id string) (Record, bool, error)

	// Mutate applies fn to the record's payload under exclusive access
	// scoped to id, persists the result, and refreshes the sliding
	// expiration. Concurrent Mutate calls on the same id are serialized and
	// each observes the prior mutation's result; calls on different ids
	// proceed independently. Returns the post-mutation snapshot.
	Mutate(ctx context.Context, id string, fn MutateFunc) (Record, error)

	// Invalidate removes the record for id immediately, regardless of
	// remaining TTL. A subsequent LoadOrCreate treats id as unseen. Returns
	// whether a record was present.
	Invalidate(ctx context.Context, id string) (bool, error)

	// SweepExpired removes every record whose expiry precedes now and
	// returns the number removed. Safe to run concurrently with ordinary
	// traffic: a record being concurrently touched is kept alive.
	SweepExpired(ctx context.Context, now time.Time) (int, error)

	// Close releases store resources.
	Close(ctx context.Context) error
}

type storeConfig struct {
	ttl      time.Duration
	shards   int
	lockWait time.Duration
	now      func() time.Time
}

// StoreOption configures a Store implementation.
type StoreOption func(*storeConfig)

func defaultStoreConfig() storeConfig {
	return storeConfig{
		ttl:      DefaultTTL,
		shards:   64,
		lockWait: DefaultLockWait,
		now:      time.Now,
	}
}

func applyStoreOptions(opts []StoreOption) storeConfig {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithTTL sets the sliding expiration window. Defaults to DefaultTTL
// (30 minutes).
func WithTTL(d time.Duration) StoreOption {
	return func(c *storeConfig) { c.ttl = d }
}

// WithShards sets the number of lock shards. Rounded up to a power of two.
// Defaults to 64.
func WithShards(n int) StoreOption {
	return func(c *storeConfig) { c.shards = n }
}

// WithLockWait bounds the wait for a record's exclusive section before
// Mutate fails with ErrBusy. Defaults to DefaultLockWait (250ms).
func WithLockWait(d time.Duration) StoreOption {
	return func(c *storeConfig) { c.lockWait = d }
}

// WithClock overrides the time source. Used by tests to simulate expiry
// without sleeping.
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) { c.now = now }
}

func copyPayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
