// Package cache defines the backing-store seam shared by the session and
// application tiers, plus the error taxonomy for store failures.
//
// # Backend Interface
//
// The [Backend] interface is deliberately small — Get, SetWithTTL, Delete,
// Close over opaque byte payloads — so that an in-process map and a
// networked store are interchangeable. The higher tiers (session.Store,
// appcache.Cache) layer their own locking and record semantics on top; a
// Backend never needs to provide atomic read-modify-write.
//
// Two implementations are provided:
//
//   - [NewMemory] — in-process map guarded by a mutex. Expired entries are
//     misses on read and are cleaned up by a background goroutine. Lost on
//     process restart.
//
//   - [NewRedis] — backed by Redis using [github.com/redis/go-redis/v9].
//     Expiry uses native Redis TTL. Each operation carries a per-query
//     timeout so a slow store cannot hang a request. An optional key prefix
//     supports namespacing multiple tiers on one Redis instance.
//
// # Errors
//
// Backends absorb "not found" (a bool, never an error) and surface only two
// conditions, both detectable with errors.Is:
//
//   - [ErrUnavailable] — the networked store could not be reached. Callers
//     degrade to origin-only behavior.
//   - [ErrSerialization] — a payload could not be encoded or decoded. The
//     record is dropped and treated as not found.
//
// # Typed Helpers
//
// [Get] and [Set] wrap a Backend with msgpack encoding:
//
//	found, cart, err := cache.Get[Cart](ctx, backend, "cart:"+id)
package cache
