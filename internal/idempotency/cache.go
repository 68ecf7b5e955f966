// Package idempotency maps client-supplied keys to previously computed
// responses so retried requests replay the original response verbatim
// instead of re-executing the match.
package idempotency

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultTTL is how long a cached response stays replayable.
const DefaultTTL = time.Hour

// Cache stores serialized responses by key. Entries are written once, on
// first success, and never updated.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, payload []byte) error
}

// MemoryCache is an in-process Cache backed by an expiring LRU, for
// single-node deployments and tests.
type MemoryCache struct {
	lru *expirable.LRU[string, []byte]
}

func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 100_000
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	payload, ok := c.lru.Get(key)
	return payload, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, payload []byte) error {
	c.lru.Add(key, payload)
	return nil
}
