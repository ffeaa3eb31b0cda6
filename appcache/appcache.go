package appcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"

	"github.com/agentuity/tiercache/cache"
	"github.com/agentuity/tiercache/logger"
)

// ErrNotRegistered is returned by Refresh for a key with no loader.
var ErrNotRegistered = errors.New("appcache: key has no registered loader")

// Loader produces the authoritative value for a key. It is invoked on first
// access and on refresh; concurrent misses for the same key collapse into a
// single invocation.
type Loader func(ctx context.Context, key string) (any, error)

// entryValue is the unit of atomic publication: readers load the pointer
// and observe a complete (value, loadedAt) pair — old or new, never torn.
type entryValue struct {
	value    any
	loadedAt time.Time
}

type entry struct {
	loader          Loader
	refreshInterval time.Duration // 0 = cache default, <0 = never refresh
	val             atomic.Pointer[entryValue]
	refreshFailures atomic.Uint64
}

func (e *entry) interval(def time.Duration) time.Duration {
	if e.refreshInterval != 0 {
		return e.refreshInterval
	}
	return def
}

// Cache is the process-wide application cache: long-lived entries, many
// concurrent readers, rare writes. Reads take the entries lock only to find
// the entry; the value itself is behind an atomic pointer, so a refresh in
// progress never blocks readers for longer than a pointer swap.
type Cache struct {
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	entries   map[string]*entry
	sf        singleflight.Group
	waitGroup sync.WaitGroup
	once      sync.Once
	cfg       config
}

type config struct {
	refreshInterval time.Duration // default per-entry refresh interval, 0 = never
	scanInterval    time.Duration
	backend         cache.Backend
	backendTTL      time.Duration
	now             func() time.Time
	log             logger.Logger
}

// Option configures a Cache.
type Option func(*config)

// WithRefreshInterval sets the default per-entry refresh interval. Zero
// (the default) means entries are never refreshed unless they carry their
// own interval.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *config) { c.refreshInterval = d }
}

// WithScanInterval sets how often the background refresher scans for stale
// entries. Defaults to 30 seconds.
func WithScanInterval(d time.Duration) Option {
	return func(c *config) { c.scanInterval = d }
}

// WithBackend mirrors values into a cache.Backend with the given TTL, and
// consults it on a miss before falling back to the loader. This is the seam
// for a networked application cache shared across replicas.
func WithBackend(b cache.Backend, ttl time.Duration) Option {
	return func(c *config) {
		c.backend = b
		c.backendTTL = ttl
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithLogger sets the logger for refresh failures. Defaults to a console
// logger.
func WithLogger(log logger.Logger) Option {
	return func(c *config) { c.log = log }
}

// New returns an application cache. It owns a background goroutine that
// re-attempts refreshes for stale entries; Close stops it.
func New(parent context.Context, opts ...Option) *Cache {
	cfg := config{
		scanInterval: 30 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.NewConsoleLogger()
	}
	cfg.log = cfg.log.WithPrefix("[appcache]")
	ctx, cancel := context.WithCancel(parent)
	c := &Cache{
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
		cfg:     cfg,
	}
	c.waitGroup.Add(1)
	go c.run()
	return c
}

// EntryOption configures a registered entry.
type EntryOption func(*entry)

// WithEntryRefreshInterval overrides the cache-wide refresh interval for
// one entry. Pass a negative duration to pin the entry (never refreshed).
func WithEntryRefreshInterval(d time.Duration) EntryOption {
	return func(e *entry) { e.refreshInterval = d }
}

// Register associates key with a loader. The value is produced lazily on
// first access; call Refresh to load it eagerly at startup.
func (c *Cache) Register(key string, loader Loader, opts ...EntryOption) {
	e := &entry{loader: loader}
	for _, opt := range opts {
		opt(e)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

func (c *Cache) lookup(key string) (*entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	return e, ok
}

// Get returns the cached value for key. A registered key with no value yet
// is loaded synchronously (one loader call regardless of concurrent
// callers). A stale value — older than its refresh interval — is served
// as-is while a background refresh is kicked off; a value is never withheld
// because a refresh is in flight or has failed.
func (c *Cache) Get(ctx context.Context, key string) (any, bool, error) {
	e, ok := c.lookup(key)
	if !ok {
		return c.backendGet(ctx, key)
	}

	v := e.val.Load()
	if v == nil {
		if e.loader == nil {
			return nil, false, nil
		}
		loaded, err := c.load(ctx, key, e)
		if err != nil {
			return nil, false, err
		}
		return loaded.value, true, nil
	}

	if iv := e.interval(c.cfg.refreshInterval); iv > 0 && c.cfg.now().Sub(v.loadedAt) > iv {
		c.refreshAsync(key, e)
	}
	return v.value, true, nil
}

// Put installs value under key, creating a loaderless entry if the key is
// not registered. Used for write-back of application-scoped origin results.
func (c *Cache) Put(ctx context.Context, key string, value any) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	c.mu.Unlock()
	e.val.Store(&entryValue{value: value, loadedAt: c.cfg.now()})
	c.backendPut(ctx, key, value)
}

// Refresh recomputes the value for key and atomically swaps it in. On
// failure the previous value keeps being served and the error is returned;
// other keys are unaffected.
func (c *Cache) Refresh(ctx context.Context, key string) error {
	e, ok := c.lookup(key)
	if !ok || e.loader == nil {
		return errors.Wrapf(ErrNotRegistered, "%q", key)
	}
	_, err := c.load(ctx, key, e)
	return err
}

// Invalidate removes key on demand. Returns whether it was present.
func (c *Cache) Invalidate(ctx context.Context, key string) bool {
	c.mu.Lock()
	_, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	if c.cfg.backend != nil {
		_, _ = c.cfg.backend.Delete(ctx, key)
	}
	return ok
}

// RefreshFailures reports how many refresh attempts have failed for key
// since startup. Zero for unknown keys.
func (c *Cache) RefreshFailures(key string) uint64 {
	if e, ok := c.lookup(key); ok {
		return e.refreshFailures.Load()
	}
	return 0
}

// load invokes the loader through singleflight and publishes the result.
func (c *Cache) load(ctx context.Context, key string, e *entry) (*entryValue, error) {
	out, err, _ := c.sf.Do(key, func() (any, error) {
		value, err := e.loader(ctx, key)
		if err != nil {
			e.refreshFailures.Add(1)
			return nil, err
		}
		v := &entryValue{value: value, loadedAt: c.cfg.now()}
		e.val.Store(v)
		c.backendPut(ctx, key, value)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*entryValue), nil
}

// refreshAsync kicks off a background refresh for a stale entry. Failures
// keep the stale value in place — a hole is never published.
func (c *Cache) refreshAsync(key string, e *entry) {
	go func() {
		if _, err := c.load(c.ctx, key, e); err != nil {
			c.cfg.log.Warn("refresh of %q failed, serving stale value: %s", key, err)
		}
	}()
}

// backendGet consults the mirror backend for keys with no local entry.
func (c *Cache) backendGet(ctx context.Context, key string) (any, bool, error) {
	if c.cfg.backend == nil {
		return nil, false, nil
	}
	found, val, err := cache.Get[any](ctx, c.cfg.backend, key)
	if err != nil || !found {
		return nil, false, err
	}
	c.Put(ctx, key, val)
	return val, true, nil
}

func (c *Cache) backendPut(ctx context.Context, key string, value any) {
	if c.cfg.backend == nil {
		return
	}
	if err := cache.Set(ctx, c.cfg.backend, key, value, c.cfg.backendTTL); err != nil {
		c.cfg.log.Warn("backend mirror of %q failed: %s", key, err)
	}
}

// run re-attempts refreshes for stale entries on a schedule, so a key that
// is never read again still honors its refresh interval.
func (c *Cache) run() {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(c.cfg.scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.refreshStale()
		}
	}
}

func (c *Cache) refreshStale() {
	now := c.cfg.now()
	c.mu.RLock()
	stale := make(map[string]*entry)
	for key, e := range c.entries {
		if e.loader == nil {
			continue
		}
		v := e.val.Load()
		if v == nil {
			continue
		}
		if iv := e.interval(c.cfg.refreshInterval); iv > 0 && now.Sub(v.loadedAt) > iv {
			stale[key] = e
		}
	}
	c.mu.RUnlock()
	for key, e := range stale {
		c.refreshAsync(key, e)
	}
}

// Close stops the background refresher.
func (c *Cache) Close(_ context.Context) error {
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
	})
	return nil
}
