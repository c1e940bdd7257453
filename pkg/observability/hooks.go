// Package observability provides hooks for metrics and tracing.
//
// Libraries emit events through the registered hooks; main decides which
// backend receives them. The defaults are no-ops, so packages can call hooks
// unconditionally and tests need no setup.
//
// Register hooks at application startup:
//
//	func main() {
//	    m := prommetrics.New(nil)
//	    observability.SetScanHooks(m)
//	    observability.SetResolveHooks(m)
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Scan().OnScanStart(ctx, scanID, len(roots))
//	// ... traverse ...
//	observability.Scan().OnScanComplete(ctx, scanID, stats, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Scan Hooks
// =============================================================================

// ScanStats summarises a finished traversal.
type ScanStats struct {
	Visited    int
	Vulnerable int
	Failed     int
}

// ScanHooks receives events from the graph traversal engine.
type ScanHooks interface {
	OnScanStart(ctx context.Context, scanID string, roots int)
	// OnNode records one resolved node; err is non-nil when resolution failed.
	OnNode(ctx context.Context, system string, duration time.Duration, err error)
	OnScanComplete(ctx context.Context, scanID string, stats ScanStats, duration time.Duration, err error)
}

// =============================================================================
// Resolve Hooks
// =============================================================================

// Entity kinds reported by [ResolveHooks].
const (
	KindPackage  = "package"
	KindVersion  = "version"
	KindGraph    = "graph"
	KindAdvisory = "advisory"
)

// Sources reported by [ResolveHooks].
const (
	SourceStore    = "store"
	SourceUpstream = "upstream"
	SourceMissing  = "missing"
)

// ResolveHooks receives events from the cache-first resolvers.
type ResolveHooks interface {
	// OnResolve records where a resolver obtained an entity of kind from.
	OnResolve(ctx context.Context, kind, source string)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from response cache operations.
type CacheHooks interface {
	OnCacheHit(ctx context.Context, keyType string)
	OnCacheMiss(ctx context.Context, keyType string)
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from upstream HTTP calls.
type HTTPHooks interface {
	OnRequest(ctx context.Context, method, host, endpoint string)
	OnResponse(ctx context.Context, method, host, endpoint string, statusCode int, duration time.Duration)
	// OnError records a transport failure (no response).
	OnError(ctx context.Context, method, host, endpoint string, err error)
}

// =============================================================================
// Breaker Hooks
// =============================================================================

// BreakerHooks receives circuit breaker state transitions.
type BreakerHooks interface {
	OnStateChange(name, from, to string)
	// OnRejected records a call short-circuited by an open breaker.
	OnRejected(ctx context.Context, name string)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopScanHooks is a no-op implementation of ScanHooks.
type NoopScanHooks struct{}

func (NoopScanHooks) OnScanStart(context.Context, string, int)                                {}
func (NoopScanHooks) OnNode(context.Context, string, time.Duration, error)                    {}
func (NoopScanHooks) OnScanComplete(context.Context, string, ScanStats, time.Duration, error) {}

// NoopResolveHooks is a no-op implementation of ResolveHooks.
type NoopResolveHooks struct{}

func (NoopResolveHooks) OnResolve(context.Context, string, string) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// NoopBreakerHooks is a no-op implementation of BreakerHooks.
type NoopBreakerHooks struct{}

func (NoopBreakerHooks) OnStateChange(string, string, string) {}
func (NoopBreakerHooks) OnRejected(context.Context, string)   {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	scanHooks    ScanHooks    = NoopScanHooks{}
	resolveHooks ResolveHooks = NoopResolveHooks{}
	cacheHooks   CacheHooks   = NoopCacheHooks{}
	httpHooks    HTTPHooks    = NoopHTTPHooks{}
	breakerHooks BreakerHooks = NoopBreakerHooks{}
	hooksMu      sync.RWMutex
)

// SetScanHooks registers custom scan hooks. Nil is ignored.
func SetScanHooks(h ScanHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		scanHooks = h
	}
}

// SetResolveHooks registers custom resolver hooks. Nil is ignored.
func SetResolveHooks(h ResolveHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		resolveHooks = h
	}
}

// SetCacheHooks registers custom cache hooks. Nil is ignored.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks. Nil is ignored.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// SetBreakerHooks registers custom breaker hooks. Nil is ignored.
func SetBreakerHooks(h BreakerHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		breakerHooks = h
	}
}

// Scan returns the registered scan hooks.
func Scan() ScanHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return scanHooks
}

// Resolve returns the registered resolver hooks.
func Resolve() ResolveHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return resolveHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Breaker returns the registered breaker hooks.
func Breaker() BreakerHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return breakerHooks
}

// Reset restores all hooks to their no-op defaults. Used by tests.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	scanHooks = NoopScanHooks{}
	resolveHooks = NoopResolveHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
	breakerHooks = NoopBreakerHooks{}
}
