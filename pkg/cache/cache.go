// Package cache provides byte-oriented caches for upstream API responses.
//
// Backends:
//   - [FileCache]: one JSON file per entry under a directory, for CLI runs
//   - [RedisCache]: a shared Redis instance, for the service
//   - [NullCache]: disables caching
//
// [Prefixed] scopes any backend to a key namespace so that several clients
// can share one cache without collisions.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values with an optional time-to-live.
type Cache interface {
	// Get returns the value and true on a hit. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
