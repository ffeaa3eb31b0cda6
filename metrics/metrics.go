// Package metrics defines the observability hook for the cache tiers:
// hit/miss counters per scope and per-operation latency. The core only
// emits through the Collector interface — exporting the numbers is the
// consumer's job.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Scope identifies which cache tier an event belongs to.
type Scope string

const (
	ScopeRequest     Scope = "request"
	ScopeSession     Scope = "session"
	ScopeApplication Scope = "application"
	// ScopeOrigin counts fallbacks that reached the authoritative source.
	ScopeOrigin Scope = "origin"
)

// Collector receives cache events. Implementations must be safe for
// concurrent use and must be cheap — they run on the request path.
type Collector interface {
	// Hit records a lookup served from the given scope.
	Hit(scope Scope)
	// Miss records a lookup the given scope could not serve.
	Miss(scope Scope)
	// ObserveLatency records the duration of a named operation.
	ObserveLatency(op string, d time.Duration)
}

// Noop discards all events.
type Noop struct{}

var _ Collector = Noop{}

func (Noop) Hit(Scope)                            {}
func (Noop) Miss(Scope)                           {}
func (Noop) ObserveLatency(string, time.Duration) {}

type counterPair struct {
	hits   atomic.Uint64
	misses atomic.Uint64
}

// Atomic is an in-process Collector using atomic counters. Snapshot exposes
// the totals for tests or an expvar-style endpoint.
type Atomic struct {
	mu       sync.Mutex
	scopes   map[Scope]*counterPair
	latency  map[string]*latencyStats
	scopesRO atomic.Pointer[map[Scope]*counterPair]
}

type latencyStats struct {
	count atomic.Uint64
	total atomic.Int64 // nanoseconds
}

// NewAtomic returns a Collector backed by atomic counters.
func NewAtomic() *Atomic {
	a := &Atomic{
		scopes:  make(map[Scope]*counterPair),
		latency: make(map[string]*latencyStats),
	}
	ro := make(map[Scope]*counterPair)
	a.scopesRO.Store(&ro)
	return a
}

func (a *Atomic) pair(scope Scope) *counterPair {
	if p, ok := (*a.scopesRO.Load())[scope]; ok {
		return p
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.scopes[scope]; ok {
		return p
	}
	p := &counterPair{}
	a.scopes[scope] = p
	ro := make(map[Scope]*counterPair, len(a.scopes))
	for k, v := range a.scopes {
		ro[k] = v
	}
	a.scopesRO.Store(&ro)
	return p
}

func (a *Atomic) Hit(scope Scope) {
	a.pair(scope).hits.Add(1)
}

func (a *Atomic) Miss(scope Scope) {
	a.pair(scope).misses.Add(1)
}

func (a *Atomic) ObserveLatency(op string, d time.Duration) {
	a.mu.Lock()
	stats, ok := a.latency[op]
	if !ok {
		stats = &latencyStats{}
		a.latency[op] = stats
	}
	a.mu.Unlock()
	stats.count.Add(1)
	stats.total.Add(int64(d))
}

// ScopeCounts is a point-in-time view of one scope's counters.
type ScopeCounts struct {
	Hits   uint64
	Misses uint64
}

// OpLatency is a point-in-time view of one operation's latency totals.
type OpLatency struct {
	Count uint64
	Total time.Duration
}

// Snapshot returns current counters per scope and latency totals per op.
func (a *Atomic) Snapshot() (map[Scope]ScopeCounts, map[string]OpLatency) {
	a.mu.Lock()
	defer a.mu.Unlock()
	scopes := make(map[Scope]ScopeCounts, len(a.scopes))
	for scope, p := range a.scopes {
		scopes[scope] = ScopeCounts{Hits: p.hits.Load(), Misses: p.misses.Load()}
	}
	latency := make(map[string]OpLatency, len(a.latency))
	for op, stats := range a.latency {
		latency[op] = OpLatency{Count: stats.count.Load(), Total: time.Duration(stats.total.Load())}
	}
	return scopes, latency
}
