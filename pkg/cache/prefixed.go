package cache

import (
	"context"
	"time"
)

// Prefixed returns a view of c in which every key is prepended with prefix.
//
//	depsdev := cache.Prefixed(shared, "depsdev:")
//	depsdev.Set(ctx, "pkg:NPM:react", data, ttl) // stored as "depsdev:pkg:NPM:react"
//
// Closing the view does not close c.
func Prefixed(c Cache, prefix string) Cache {
	if c == nil {
		c = NullCache{}
	}
	return &prefixed{inner: c, prefix: prefix}
}

type prefixed struct {
	inner  Cache
	prefix string
}

func (p *prefixed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return p.inner.Set(ctx, p.prefix+key, data, ttl)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, p.prefix+key)
}

func (p *prefixed) Close() error { return nil }
