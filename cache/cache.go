package cache

import (
	"context"
	"time"
)

// Backend is the seam between the in-process cache tiers and an optional
// networked store. A Backend stores opaque byte payloads under string keys
// with a time-bound write. Implementations must be safe for concurrent use.
//
// A missing key is not an error: Get returns found=false. Backends surface
// only real failures — see ErrUnavailable and ErrSerialization.
type Backend interface {
	// Get retrieves the payload stored under key. found=false means the key
	// is absent or expired.
	Get(ctx context.Context, key string) (found bool, data []byte, err error)

	// SetWithTTL stores data under key. If ttl <= 0, the backend's configured
	// default TTL is used.
	SetWithTTL(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key immediately, regardless of remaining TTL. Returns
	// whether the key was present.
	Delete(ctx context.Context, key string) (bool, error)

	// Close shuts down the backend and releases any background resources.
	Close(ctx context.Context) error
}

// DefaultTTL is used by SetWithTTL when the caller passes ttl <= 0 and no
// override was configured.
const DefaultTTL = 30 * time.Minute

// DefaultQueryTimeout is the per-operation timeout for backends that perform
// I/O. Prevents indefinite hangs on slow or unresponsive storage.
const DefaultQueryTimeout = 5 * time.Second

// config holds the resolved configuration for a Backend implementation.
type config struct {
	defaultTTL   time.Duration
	queryTimeout time.Duration
	expiryCheck  time.Duration
	prefix       string
	now          func() time.Time
}

// Option configures a Backend implementation.
type Option func(*config)

func defaultConfig() config {
	return config{
		defaultTTL:   DefaultTTL,
		queryTimeout: DefaultQueryTimeout,
		expiryCheck:  time.Minute,
		now:          time.Now,
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithDefaultTTL sets the TTL used when SetWithTTL is called with ttl <= 0.
// Defaults to DefaultTTL (30 minutes).
func WithDefaultTTL(d time.Duration) Option {
	return func(c *config) { c.defaultTTL = d }
}

// WithQueryTimeout sets the per-operation timeout for I/O-backed stores.
// Defaults to DefaultQueryTimeout (5 seconds).
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithExpiryCheck sets the interval for background expired entry cleanup in
// the memory backend. Defaults to 1 minute.
func WithExpiryCheck(d time.Duration) Option {
	return func(c *config) { c.expiryCheck = d }
}

// WithPrefix sets the key prefix for namespacing keys. Applies to the Redis
// backend. Defaults to empty (no prefix).
func WithPrefix(p string) Option {
	return func(c *config) { c.prefix = p }
}

// WithClock overrides the time source. Used by tests to simulate expiry
// without sleeping. Applies to the memory backend.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}
