package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data    []byte
	expires time.Time
}

type memoryBackend struct {
	ctx       context.Context
	cancel    context.CancelFunc
	entries   map[string]*memoryEntry
	mutex     sync.Mutex
	waitGroup sync.WaitGroup
	once      sync.Once
	cfg       config
}

var _ Backend = (*memoryBackend)(nil)

// NewMemory returns a process-local Backend backed by a map. Expired entries
// are treated as misses on read and cleaned up by a background goroutine at
// the configured expiry-check interval.
func NewMemory(parent context.Context, opts ...Option) Backend {
	cfg := applyOptions(opts)
	ctx, cancel := context.WithCancel(parent)
	b := &memoryBackend{
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*memoryEntry),
		cfg:     cfg,
	}
	b.waitGroup.Add(1)
	go b.run()
	return b
}

func (b *memoryBackend) Get(_ context.Context, key string) (bool, []byte, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	entry, ok := b.entries[key]
	if !ok {
		return false, nil, nil
	}
	if entry.expires.Before(b.cfg.now()) {
		delete(b.entries, key)
		return false, nil, nil
	}
	return true, entry.data, nil
}

func (b *memoryBackend) SetWithTTL(_ context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = b.cfg.defaultTTL
	}
	b.mutex.Lock()
	b.entries[key] = &memoryEntry{data: data, expires: b.cfg.now().Add(ttl)}
	b.mutex.Unlock()
	return nil
}

func (b *memoryBackend) Delete(_ context.Context, key string) (bool, error) {
	b.mutex.Lock()
	_, ok := b.entries[key]
	if ok {
		delete(b.entries, key)
	}
	b.mutex.Unlock()
	return ok, nil
}

func (b *memoryBackend) Close(_ context.Context) error {
	b.once.Do(func() {
		b.cancel()
		b.waitGroup.Wait()
	})
	return nil
}

func (b *memoryBackend) run() {
	defer b.waitGroup.Done()
	ticker := time.NewTicker(b.cfg.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			now := b.cfg.now()
			b.mutex.Lock()
			for key, entry := range b.entries {
				if entry.expires.Before(now) {
					delete(b.entries, key)
				}
			}
			b.mutex.Unlock()
		}
	}
}
