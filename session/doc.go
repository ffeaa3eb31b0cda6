// Package session provides a concurrent session store with sliding-window
// expiration, an atomic get-or-create operation, per-identifier exclusive
// mutation, and a cancellable background reaper.
//
// # Ownership Model
//
// The store is the sole owner of every canonical record. Callers receive
// immutable [Record] snapshots from reads and mutate payloads only through
// [Store.Mutate], which applies the caller's closure under the store's own
// locking. No caller ever holds a long-lived mutable handle into
// store-owned memory.
//
// # Locking
//
// Locking is at the identifier, not the container. [MemoryStore] hashes
// identifiers across a fixed set of shards (xxhash), so concurrent traffic
// on unrelated sessions never serializes on a shared lock. Mutation is
// additionally serialized through striped per-identifier sections with a
// bounded wait: exceeding the wait yields [ErrBusy] instead of blocking
// indefinitely. These sections guard only the in-memory record mutation —
// never an origin fetch.
//
// # Expiration
//
// Expiration is sliding: every successful load or mutation sets
// lastAccessed to now and expiresAt to now + TTL. A record is logically
// dead the instant now exceeds expiresAt — it is never served, even if
// still physically present pending a sweep; LoadOrCreate transparently
// replaces it with a fresh empty record. The [Reaper] and the live path
// compare against expiresAt under the same shard lock, so a sweep never
// removes a record a concurrent touch just extended.
//
// # Backing-Store Seam
//
// [BackendStore] implements the same Store contract over a [cache.Backend]
// (Redis in practice) with msgpack-encoded records, for sessions that must
// survive process restarts. See its type documentation for the atomicity
// and failure semantics under that substitution.
package session
