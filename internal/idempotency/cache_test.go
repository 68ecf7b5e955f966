package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCachePutGet(t *testing.T) {
	cache := NewMemoryCache(10, time.Minute)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "k1")
	require.NoError(t, err)
	require.False(t, ok)

	payload := []byte(`{"message":"order placed"}`)
	require.NoError(t, cache.Put(ctx, "k1", payload))

	got, ok, err := cache.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload, got, "cached payload must round-trip byte for byte")
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache(10, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "k1", []byte("v")))

	_, ok, err := cache.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)

	_, ok, err = cache.Get(ctx, "k1")
	require.NoError(t, err)
	require.False(t, ok, "entry must expire after TTL")
}

func TestMemoryCacheKeysAreIndependent(t *testing.T) {
	cache := NewMemoryCache(10, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "a", []byte("1")))
	require.NoError(t, cache.Put(ctx, "b", []byte("2")))

	got, ok, _ := cache.Get(ctx, "a")
	require.True(t, ok)
	require.Equal(t, []byte("1"), got)

	got, ok, _ = cache.Get(ctx, "b")
	require.True(t, ok)
	require.Equal(t, []byte("2"), got)
}
