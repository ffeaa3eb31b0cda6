// Package appcache provides the process-wide application cache: long-lived
// entries registered with a loader, refreshed on a schedule or on demand,
// and optimized for many concurrent readers with rare writes.
//
// Values are published through an atomic pointer swap, so readers never
// block behind a refresh in progress and never observe a partially updated
// value — only the complete old or new one. Concurrent misses for a key
// collapse into a single loader invocation via singleflight.
//
// Refresh failures are isolated per key: the stale value keeps being served
// (never an empty hole) until a refresh succeeds or the entry is explicitly
// invalidated.
package appcache
