package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	s := NoopScanHooks{}
	s.OnScanStart(ctx, "scan-1", 3)
	s.OnNode(ctx, "NPM", time.Millisecond, nil)
	s.OnScanComplete(ctx, "scan-1", ScanStats{Visited: 10}, time.Second, nil)

	NoopResolveHooks{}.OnResolve(ctx, KindVersion, SourceStore)

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "version")
	c.OnCacheMiss(ctx, "package")
	c.OnCacheSet(ctx, "advisory", 1024)

	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "GET", "api.deps.dev", "version")
	h.OnResponse(ctx, "GET", "api.deps.dev", "version", 200, time.Second)
	h.OnError(ctx, "GET", "api.deps.dev", "version", errors.New("reset"))

	b := NoopBreakerHooks{}
	b.OnStateChange("depsdev", "closed", "open")
	b.OnRejected(ctx, "depsdev")
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()
	defer Reset()

	if _, ok := Scan().(NoopScanHooks); !ok {
		t.Error("Scan() should return NoopScanHooks by default")
	}
	if _, ok := Resolve().(NoopResolveHooks); !ok {
		t.Error("Resolve() should return NoopResolveHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}
	if _, ok := Breaker().(NoopBreakerHooks); !ok {
		t.Error("Breaker() should return NoopBreakerHooks by default")
	}

	scan := &testScanHooks{}
	SetScanHooks(scan)
	if Scan() != scan {
		t.Error("SetScanHooks should set custom hooks")
	}
	resolve := &testResolveHooks{}
	SetResolveHooks(resolve)
	if Resolve() != resolve {
		t.Error("SetResolveHooks should set custom hooks")
	}
	cache := &testCacheHooks{}
	SetCacheHooks(cache)
	if Cache() != cache {
		t.Error("SetCacheHooks should set custom hooks")
	}
	http := &testHTTPHooks{}
	SetHTTPHooks(http)
	if HTTP() != http {
		t.Error("SetHTTPHooks should set custom hooks")
	}
	breaker := &testBreakerHooks{}
	SetBreakerHooks(breaker)
	if Breaker() != breaker {
		t.Error("SetBreakerHooks should set custom hooks")
	}

	Reset()
	if _, ok := Scan().(NoopScanHooks); !ok {
		t.Error("Reset() should restore NoopScanHooks")
	}
	if _, ok := Breaker().(NoopBreakerHooks); !ok {
		t.Error("Reset() should restore NoopBreakerHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()
	defer Reset()

	custom := &testScanHooks{}
	SetScanHooks(custom)
	SetScanHooks(nil)
	if Scan() != custom {
		t.Error("SetScanHooks(nil) should be ignored")
	}
}

type testScanHooks struct{ NoopScanHooks }
type testResolveHooks struct{ NoopResolveHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testHTTPHooks struct{ NoopHTTPHooks }
type testBreakerHooks struct{ NoopBreakerHooks }
