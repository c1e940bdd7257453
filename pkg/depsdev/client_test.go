package depsdev

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscanner/pkg/cache"
	dserrors "github.com/matzehuels/depscanner/pkg/errors"
	"github.com/matzehuels/depscanner/pkg/store"
)

// testClient starts a server running handler and returns a client for it
// together with a counter of requests the server received.
func testClient(t *testing.T, handler http.HandlerFunc, mutate func(*Options)) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	opts := Options{
		BaseURL:    srv.URL,
		Retries:    1,
		RetryDelay: time.Millisecond,
		Logger:     log.New(io.Discard),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewClient(opts), &calls
}

func TestGetVersion(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/systems/NPM/packages/lib-b/versions/2.0.0" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"versionKey": {"system": "NPM", "name": "lib-b", "version": "2.0.0"},
			"publishedAt": "2023-04-01T10:00:00Z",
			"isDefault": true,
			"licenses": ["MIT"],
			"advisoryKeys": [{"id": "GHSA-1"}],
			"links": [{"label": "SOURCE_REPO", "url": "https://github.com/x/lib-b"}]
		}`))
	}, nil)

	v, err := c.GetVersion(context.Background(), store.VersionKey{System: "NPM", Name: "lib-b", Version: "2.0.0"})
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if v == nil {
		t.Fatal("GetVersion returned nil")
	}
	if v.VersionKey.Name != "lib-b" || !v.IsDefault {
		t.Errorf("unexpected version: %+v", v)
	}
	if ids := v.AdvisoryIDs(); len(ids) != 1 || ids[0] != "GHSA-1" {
		t.Errorf("AdvisoryIDs = %v", ids)
	}
	if !v.PublishedAt.Equal(time.Date(2023, 4, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("PublishedAt = %v", v.PublishedAt)
	}
}

func TestGetDependencies(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/systems/NPM/packages/lib-a/versions/1.0.0:dependencies" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"nodes": [
				{"versionKey": {"system": "NPM", "name": "lib-a", "version": "1.0.0"}, "relation": "SELF"},
				{"versionKey": {"system": "NPM", "name": "lib-b", "version": "2.0.0"}, "relation": "DIRECT", "bundled": false}
			],
			"edges": [{"fromNode": 0, "toNode": 1, "requirement": "^2.0.0"}]
		}`))
	}, nil)

	g, err := c.GetDependencies(context.Background(), store.VersionKey{System: "NPM", Name: "lib-a", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("GetDependencies: %v", err)
	}
	if len(g.Nodes) != 2 || len(g.Edges) != 1 {
		t.Fatalf("graph = %+v", g)
	}
	root, ok := g.Root()
	if !ok || root.Name != "lib-a" {
		t.Errorf("Root() = %v, %v", root, ok)
	}
	if g.Edges[0].Requirement != "^2.0.0" {
		t.Errorf("requirement = %q", g.Edges[0].Requirement)
	}
}

func TestEncodedRequestPath(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got, want := r.URL.EscapedPath(), "/systems/NPM/packages/%40types%2Fnode"; got != want {
			t.Errorf("escaped path = %s, want %s", got, want)
		}
		w.Write([]byte(`{"packageKey": {"system": "NPM", "name": "@types/node"}, "versions": []}`))
	}, nil)

	p, err := c.GetPackage(context.Background(), store.PackageKey{System: "NPM", Name: "@types/node"})
	if err != nil || p == nil {
		t.Fatalf("GetPackage = %v, %v", p, err)
	}
	if p.PackageKey.Name != "@types/node" {
		t.Errorf("name = %q", p.PackageKey.Name)
	}
}

func TestNoDataStatuses(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusBadRequest} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			c, calls := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			}, func(o *Options) {
				o.Retries = 3
				o.Breaker.MaxFailures = 2
			})
			for range 5 {
				a, err := c.GetAdvisory(context.Background(), "GHSA-404")
				if err != nil || a != nil {
					t.Fatalf("GetAdvisory = %v, %v; want nil, nil", a, err)
				}
			}
			if n := calls.Load(); n != 5 {
				t.Errorf("server calls = %d, want 5 (no retries, no breaker trips)", n)
			}
			if s := c.BreakerState(); s != "closed" {
				t.Errorf("breaker state = %s, want closed", s)
			}
		})
	}
}

func TestServerErrorRetriesThenDegrades(t *testing.T) {
	c, calls := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, func(o *Options) { o.Retries = 3 })

	v, err := c.GetVersion(context.Background(), store.VersionKey{System: "NPM", Name: "x", Version: "1"})
	if err != nil || v != nil {
		t.Fatalf("GetVersion = %v, %v; want nil, nil", v, err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("server calls = %d, want 3", n)
	}
}

func TestBreakerOpensAndFailsFast(t *testing.T) {
	c, calls := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, func(o *Options) {
		o.Breaker = BreakerSettings{MaxFailures: 2, OpenTimeout: time.Hour}
	})
	ctx := context.Background()
	key := store.VersionKey{System: "NPM", Name: "x", Version: "1"}

	for range 2 {
		if v, err := c.GetVersion(ctx, key); err != nil || v != nil {
			t.Fatalf("GetVersion = %v, %v", v, err)
		}
	}
	if s := c.BreakerState(); s != "open" {
		t.Fatalf("breaker state = %s, want open", s)
	}
	before := calls.Load()
	for range 3 {
		if v, err := c.GetVersion(ctx, key); err != nil || v != nil {
			t.Fatalf("GetVersion with open breaker = %v, %v", v, err)
		}
	}
	if n := calls.Load(); n != before {
		t.Errorf("open breaker let %d calls through", n-before)
	}
}

func TestBreakerTripsOnFailureRatio(t *testing.T) {
	var n atomic.Int32
	c, calls := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1)%2 == 0 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"advisoryKey": {"id": "GHSA-1"}}`))
	}, func(o *Options) {
		o.Breaker = BreakerSettings{
			MaxFailures:  100,
			FailureRatio: 0.5,
			MinRequests:  4,
			Interval:     time.Hour,
			OpenTimeout:  time.Hour,
		}
	})
	ctx := context.Background()

	// ok, fail, ok: never two failures in a row.
	for range 3 {
		c.GetAdvisory(ctx, "GHSA-1")
	}
	if s := c.BreakerState(); s != "closed" {
		t.Fatalf("breaker state after 1 of 3 failed = %s, want closed", s)
	}
	c.GetAdvisory(ctx, "GHSA-1")
	if s := c.BreakerState(); s != "open" {
		t.Fatalf("breaker state after 2 of 4 failed = %s, want open", s)
	}
	before := calls.Load()
	if a, err := c.GetAdvisory(ctx, "GHSA-1"); a != nil || err != nil {
		t.Errorf("GetAdvisory with open breaker = %v, %v", a, err)
	}
	if calls.Load() != before {
		t.Error("open breaker let a call through")
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	var healthy atomic.Bool
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"advisoryKey": {"id": "GHSA-1"}, "url": "https://osv.dev/GHSA-1", "title": "t"}`))
	}, func(o *Options) {
		o.Breaker = BreakerSettings{MaxFailures: 1, OpenTimeout: 20 * time.Millisecond}
	})
	ctx := context.Background()

	if a, _ := c.GetAdvisory(ctx, "GHSA-1"); a != nil {
		t.Fatal("expected nil while upstream is failing")
	}
	if s := c.BreakerState(); s != "open" {
		t.Fatalf("breaker state = %s, want open", s)
	}
	healthy.Store(true)
	time.Sleep(40 * time.Millisecond)

	a, err := c.GetAdvisory(ctx, "GHSA-1")
	if err != nil || a == nil {
		t.Fatalf("probe GetAdvisory = %v, %v", a, err)
	}
	if s := c.BreakerState(); s != "closed" {
		t.Errorf("breaker state after probe = %s, want closed", s)
	}
}

func TestContextCancelIsReturned(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, func(o *Options) { o.Breaker.MaxFailures = 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.GetVersion(ctx, store.VersionKey{System: "NPM", Name: "slow", Version: "1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
	if s := c.BreakerState(); s != "closed" {
		t.Errorf("cancellation tripped the breaker: %s", s)
	}
}

func TestInvalidURLNeverCallsUpstream(t *testing.T) {
	c, calls := testClient(t, func(w http.ResponseWriter, r *http.Request) {}, nil)

	_, err := c.GetAdvisory(context.Background(), "$evil")
	if !dserrors.Is(err, dserrors.ErrCodeInvalidURL) {
		t.Errorf("err = %v, want INVALID_URL", err)
	}
	if calls.Load() != 0 {
		t.Error("upstream was called for an invalid url")
	}
}

func TestUndecodableBodyDegrades(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}, nil)
	v, err := c.GetVersion(context.Background(), store.VersionKey{System: "NPM", Name: "x", Version: "1"})
	if err != nil || v != nil {
		t.Errorf("GetVersion = %v, %v; want nil, nil", v, err)
	}
}

func TestResponseCache(t *testing.T) {
	mc := cache.NewMemoryCache()
	c, calls := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"packageKey": {"system": "NPM", "name": "react"}, "versions": [{"versionKey": {"system": "NPM", "name": "react", "version": "18.2.0"}}]}`))
	}, func(o *Options) {
		o.Cache = mc
		o.CacheTTL = time.Minute
	})
	ctx := context.Background()
	key := store.PackageKey{System: "NPM", Name: "react"}

	for range 3 {
		p, err := c.GetPackage(ctx, key)
		if err != nil || p == nil || len(p.Versions) != 1 {
			t.Fatalf("GetPackage = %v, %v", p, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server calls = %d, want 1", n)
	}
	if mc.Len() != 1 {
		t.Errorf("cache entries = %d, want 1", mc.Len())
	}
}

func TestNoDataIsNotCached(t *testing.T) {
	mc := cache.NewMemoryCache()
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, func(o *Options) {
		o.Cache = mc
		o.CacheTTL = time.Minute
	})
	c.GetAdvisory(context.Background(), "GHSA-404")
	if mc.Len() != 0 {
		t.Errorf("cache entries = %d, want 0", mc.Len())
	}
}
