package cache

import (
	"context"
	"time"
)

// Cache is the minimal byte cache used for board snapshots and directory
// lookups. A nil payload with ok=false means a miss, never an error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// NoopCache keeps the caching call sites wired when no Redis is configured.
type NoopCache struct{}

func NewNoop() *NoopCache { return &NoopCache{} }

func (NoopCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return nil
}

func (NoopCache) Delete(ctx context.Context, key string) error { return nil }

func (NoopCache) DeletePrefix(ctx context.Context, prefix string) error { return nil }
