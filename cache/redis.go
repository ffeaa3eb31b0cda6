package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisBackend struct {
	client *redis.Client
	cfg    config
}

var _ Backend = (*redisBackend)(nil)

// NewRedis returns a Backend backed by Redis. Expiry uses native Redis TTL,
// so no background goroutine is needed. The caller owns the redis.Client
// lifecycle — Close is a no-op on the client.
func NewRedis(client *redis.Client, opts ...Option) Backend {
	return &redisBackend{
		client: client,
		cfg:    applyOptions(opts),
	}
}

func (b *redisBackend) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, b.cfg.queryTimeout)
}

func (b *redisBackend) prefixKey(key string) string {
	if b.cfg.prefix == "" {
		return key
	}
	return b.cfg.prefix + ":" + key
}

func (b *redisBackend) Get(ctx context.Context, key string) (bool, []byte, error) {
	qctx, cancel := b.queryCtx(ctx)
	defer cancel()
	data, err := b.client.Get(qctx, b.prefixKey(key)).Bytes()
	if err == redis.Nil {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, MarkUnavailable(err)
	}
	return true, data, nil
}

func (b *redisBackend) SetWithTTL(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = b.cfg.defaultTTL
	}
	qctx, cancel := b.queryCtx(ctx)
	defer cancel()
	if err := b.client.Set(qctx, b.prefixKey(key), data, ttl).Err(); err != nil {
		return MarkUnavailable(err)
	}
	return nil
}

func (b *redisBackend) Delete(ctx context.Context, key string) (bool, error) {
	qctx, cancel := b.queryCtx(ctx)
	defer cancel()
	removed, err := b.client.Del(qctx, b.prefixKey(key)).Result()
	if err != nil {
		return false, MarkUnavailable(err)
	}
	return removed > 0, nil
}

// Close is a no-op — the caller owns the redis.Client lifecycle.
func (b *redisBackend) Close(_ context.Context) error {
	return nil
}
