package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Encode serializes v to msgpack for storage in a Backend.
func Encode(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, MarkSerialization(errors.Wrap(err, "cache: encode"))
	}
	return data, nil
}

// Decode deserializes a Backend payload into a value of type T.
func Decode[T any](data []byte) (T, error) {
	var out T
	if err := msgpack.Unmarshal(data, &out); err != nil {
		var zero T
		return zero, MarkSerialization(errors.Wrap(err, "cache: decode"))
	}
	return out, nil
}

// Get retrieves and decodes a typed value from a Backend. A payload that
// fails to decode is deleted and reported as not found rather than being
// served corrupted or left to poison subsequent reads.
func Get[T any](ctx context.Context, b Backend, key string) (bool, T, error) {
	var zero T
	found, data, err := b.Get(ctx, key)
	if !found || err != nil {
		return false, zero, err
	}
	out, err := Decode[T](data)
	if err != nil {
		_, _ = b.Delete(ctx, key)
		return false, zero, nil
	}
	return true, out, nil
}

// Set encodes v and stores it under key with the given TTL.
func Set(ctx context.Context, b Backend, key string, v any, ttl time.Duration) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}
	return b.SetWithTTL(ctx, key, data, ttl)
}
