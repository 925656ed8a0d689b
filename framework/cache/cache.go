package cache

import (
	"context"
	"errors"
	"time"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found in the cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrConnectionFailed indicates that the cache backend is unreachable.
	ErrConnectionFailed = errors.New("cache connection failed")

	// ErrNotConfigured is returned by caches used before Configure.
	ErrNotConfigured = errors.New("cache not configured")
)

// Cache is the interface of every cache service.
type Cache interface {
	// Get returns ErrCacheMiss if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value. A zero TTL uses the service's default TTL; a
	// negative TTL stores the value without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Remember returns the cached value of key, computing and storing it with
// fn on a miss.
//
//	body, err := cache.Remember(ctx, c, "homepage", time.Minute, render)
func Remember(ctx context.Context, c Cache, key string, ttl time.Duration, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	v, err := c.Get(ctx, key)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return nil, err
	}
	v, err = fn(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		return nil, err
	}
	return v, nil
}

func effectiveTTL(ttl, def time.Duration) time.Duration {
	switch {
	case ttl < 0:
		return 0
	case ttl == 0:
		return def
	default:
		return ttl
	}
}
