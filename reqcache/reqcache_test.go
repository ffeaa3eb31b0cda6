package reqcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSet(t *testing.T) {
	c := New()

	_, ok := c.Get("key")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	c.Set("key", "value")
	val, ok := c.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "value", val)
	assert.Equal(t, 1, c.Len())

	c.Set("key", "replaced")
	val, _ = c.Get("key")
	assert.Equal(t, "replaced", val)
	assert.Equal(t, 1, c.Len())

	c.Delete("key")
	_, ok = c.Get("key")
	assert.False(t, ok)
}

func TestContextThreading(t *testing.T) {
	c := New()
	ctx := WithContext(context.Background(), c)
	assert.Same(t, c, FromContext(ctx))
}

func TestFromContextWithoutCache(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
}

func TestNoCrossUnitVisibility(t *testing.T) {
	// Two units of work get independent caches even off the same parent.
	parent := context.Background()
	ctx1 := WithContext(parent, New())
	ctx2 := WithContext(parent, New())

	FromContext(ctx1).Set("key", "unit1")
	_, ok := FromContext(ctx2).Get("key")
	assert.False(t, ok)
}
