// Package reqcache provides a cache scoped to exactly one unit of work —
// one inbound request. The owning unit has exclusive access for its entire
// lifetime, so the cache is deliberately unsynchronized: adding locking here
// would only pay for a guarantee the ownership model already provides.
//
// The cache is threaded through the request via its context and discarded
// with it. Nothing in it survives the unit of work, and nothing outside the
// unit of work can observe it.
package reqcache

import "context"

// Cache is an ephemeral key-value container owned by a single unit of work.
// It must not be shared across goroutines.
type Cache struct {
	values map[string]any
}

// New returns an empty request-scoped cache.
func New() *Cache {
	return &Cache{values: make(map[string]any)}
}

// Get returns the value stored under key, if any.
func (c *Cache) Get(key string) (any, bool) {
	val, ok := c.values[key]
	return val, ok
}

// Set stores val under key, replacing any prior value.
func (c *Cache) Set(key string, val any) {
	c.values[key] = val
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	delete(c.values, key)
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	return len(c.values)
}

type contextKey struct{}

// WithContext returns a context carrying c. Call once at unit-of-work start.
func WithContext(ctx context.Context, c *Cache) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the request-scoped cache carried by ctx, or nil when
// the unit of work did not install one.
func FromContext(ctx context.Context) *Cache {
	c, _ := ctx.Value(contextKey{}).(*Cache)
	return c
}
