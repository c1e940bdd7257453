package scan

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscanner/pkg/depsdev"
	"github.com/matzehuels/depscanner/pkg/depsdev/depsdevtest"
	"github.com/matzehuels/depscanner/pkg/resolve"
	"github.com/matzehuels/depscanner/pkg/store"
	"github.com/matzehuels/depscanner/pkg/store/memory"
)

func key(name string) store.VersionKey {
	return store.VersionKey{System: "NPM", Name: name, Version: "1.0.0"}
}

// countingVersions records how often the engine resolves each version.
type countingVersions struct {
	inner VersionResolver
	mu    sync.Mutex
	calls map[store.VersionKey]int
}

func (c *countingVersions) Resolve(ctx context.Context, k store.VersionKey) (*depsdev.Version, error) {
	c.mu.Lock()
	c.calls[k]++
	c.mu.Unlock()
	return c.inner.Resolve(ctx, k)
}

type fixture struct {
	api      *depsdevtest.Fake
	versions *countingVersions
	svc      *resolve.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	api := depsdevtest.New()
	st := memory.New()
	t.Cleanup(func() { st.Close() })
	svc := resolve.NewService(api, st, resolve.Options{Logger: log.New(io.Discard)})
	return &fixture{
		api:      api,
		svc:      svc,
		versions: &countingVersions{inner: svc.Versions, calls: make(map[store.VersionKey]int)},
	}
}

func (f *fixture) engine(opts Options) *Engine {
	return NewEngine(f.versions, f.svc.Graphs, opts, log.New(io.Discard))
}

func TestScanTerminatesOnCycle(t *testing.T) {
	f := newFixture(t)
	a, b := key("a"), key("b")
	f.api.AddVersion(a)
	f.api.AddVersion(b)
	f.api.AddGraph(a, b)
	f.api.AddGraph(b, a)

	report, err := f.engine(Options{}).Scan(context.Background(), []store.VersionKey{a})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Visited != 2 {
		t.Errorf("Visited = %d, want 2", report.Visited)
	}
	for _, k := range []store.VersionKey{a, b} {
		if n := f.versions.calls[k]; n != 1 {
			t.Errorf("%s resolved %d times, want 1", k, n)
		}
	}
	if !report.Clean() || report.ScanID == "" {
		t.Errorf("report = %+v", report)
	}
}

func TestScanUnionsFindings(t *testing.T) {
	f := newFixture(t)
	a, b, c, d := key("a"), key("b"), key("c"), key("d")
	f.api.AddVersion(a)
	f.api.AddVersion(b, "GHSA-2")
	f.api.AddVersion(c)
	f.api.AddVersion(d, "GHSA-1", "GHSA-3", "GHSA-1")
	f.api.AddGraph(a, b, c)
	f.api.AddGraph(b, d)
	f.api.AddGraph(c, d)

	// d is also requested directly: it must still appear once.
	report, err := f.engine(Options{}).Scan(context.Background(), []store.VersionKey{a, d})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []VulnerableDependency{
		{Dependency: b, AdvisoryKeys: []string{"GHSA-2"}},
		{Dependency: d, AdvisoryKeys: []string{"GHSA-1", "GHSA-3"}},
	}
	if len(report.Vulnerable) != len(want) {
		t.Fatalf("Vulnerable = %+v, want %+v", report.Vulnerable, want)
	}
	for i := range want {
		got := report.Vulnerable[i]
		if got.Dependency != want[i].Dependency || !slices.Equal(got.AdvisoryKeys, want[i].AdvisoryKeys) {
			t.Errorf("Vulnerable[%d] = %+v, want %+v", i, got, want[i])
		}
	}
	if report.Visited != 4 {
		t.Errorf("Visited = %d, want 4", report.Visited)
	}
}

func TestScanAttributesToCarrier(t *testing.T) {
	f := newFixture(t)
	libA := store.VersionKey{System: "NPM", Name: "lib-a", Version: "1.0.0"}
	libB := store.VersionKey{System: "NPM", Name: "lib-b", Version: "2.0.0"}
	f.api.AddVersion(libA)
	f.api.AddVersion(libB, "GHSA-1")
	f.api.AddAdvisory("GHSA-1", "bad")
	f.api.AddGraph(libA, libB)

	report, err := f.engine(Options{}).Scan(context.Background(), []store.VersionKey{libA})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(report.Vulnerable) != 1 || report.Vulnerable[0].Dependency != libB {
		t.Fatalf("Vulnerable = %+v, want only lib-b", report.Vulnerable)
	}
	if !slices.Equal(report.Vulnerable[0].AdvisoryKeys, []string{"GHSA-1"}) {
		t.Errorf("AdvisoryKeys = %v", report.Vulnerable[0].AdvisoryKeys)
	}

	// The closure is now cached: checking lib-a reports it through its graph.
	res, err := f.svc.CheckVulnerable(context.Background(), []store.VersionKey{libA})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || !res[0].IsDataAvailable {
		t.Errorf("CheckVulnerable(lib-a) = %+v", res)
	}
}

func TestScanContinuesPastFailedNode(t *testing.T) {
	f := newFixture(t)
	a, b, c := key("a"), key("b"), key("c")
	f.api.AddVersion(a)
	f.api.AddVersion(c, "GHSA-9") // b has no version data upstream
	f.api.AddGraph(a, b, c)

	report, err := f.engine(Options{}).Scan(context.Background(), []store.VersionKey{a})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Failed != 1 {
		t.Errorf("Failed = %d, want 1", report.Failed)
	}
	if len(report.Vulnerable) != 1 || report.Vulnerable[0].Dependency != c {
		t.Errorf("Vulnerable = %+v", report.Vulnerable)
	}
}

func TestScanRootsOnly(t *testing.T) {
	f := newFixture(t)
	a, b, c := key("a"), key("b"), key("c")
	for _, k := range []store.VersionKey{a, b, c} {
		f.api.AddVersion(k)
	}
	f.api.AddGraph(a, b)
	f.api.AddGraph(b, c)

	tests := []struct {
		name    string
		opts    Options
		visited int
	}{
		{"expand all", Options{}, 3},
		{"roots only", Options{RootsOnly: true}, 2},
		{"max depth", Options{MaxDepth: 1}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := f.engine(tt.opts).Scan(context.Background(), []store.VersionKey{a})
			if err != nil {
				t.Fatal(err)
			}
			if report.Visited != tt.visited {
				t.Errorf("Visited = %d, want %d", report.Visited, tt.visited)
			}
		})
	}
}

func TestScanNodeLimit(t *testing.T) {
	f := newFixture(t)
	a := key("a")
	f.api.AddVersion(a)
	f.api.AddGraph(a, key("b"), key("c"), key("d"))

	report, err := f.engine(Options{MaxNodes: 2}).Scan(context.Background(), []store.VersionKey{a})
	if err != nil {
		t.Fatal(err)
	}
	if report.Visited != 2 || !report.Truncated {
		t.Errorf("Visited = %d, Truncated = %v", report.Visited, report.Truncated)
	}
}

func TestScanCancelled(t *testing.T) {
	f := newFixture(t)
	a := key("a")
	f.api.AddVersion(a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := f.engine(Options{}).Scan(ctx, []store.VersionKey{a})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if report == nil || report.ScanID == "" {
		t.Errorf("partial report missing: %+v", report)
	}
}

func TestScanEmpty(t *testing.T) {
	f := newFixture(t)
	report, err := f.engine(Options{}).Scan(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Visited != 0 || !report.Clean() || report.Vulnerable == nil {
		t.Errorf("report = %+v", report)
	}
}

// blockingGraphs never answers before the scan's context ends.
type blockingGraphs struct{}

func (blockingGraphs) Resolve(ctx context.Context, _ store.VersionKey) (*resolve.GraphView, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestScanTimeoutKeepsFindings(t *testing.T) {
	f := newFixture(t)
	a := key("a")
	f.api.AddVersion(a, "GHSA-1")

	e := NewEngine(f.versions, blockingGraphs{}, Options{Timeout: 50 * time.Millisecond}, log.New(io.Discard))
	report, err := e.Scan(context.Background(), []store.VersionKey{a})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	want := []VulnerableDependency{{Dependency: a, AdvisoryKeys: []string{"GHSA-1"}}}
	if len(report.Vulnerable) != 1 || report.Vulnerable[0].Dependency != a ||
		!slices.Equal(report.Vulnerable[0].AdvisoryKeys, want[0].AdvisoryKeys) {
		t.Errorf("Vulnerable = %+v, want %+v", report.Vulnerable, want)
	}
	if !report.Truncated {
		t.Error("timed-out report not marked truncated")
	}
	if report.Visited != 0 {
		t.Errorf("Visited = %d, want 0 (a never finished expanding)", report.Visited)
	}
}

func TestScanSkipsSelfNode(t *testing.T) {
	f := newFixture(t)
	requested := store.VersionKey{System: "NPM", Name: "Lib-A", Version: "1.0.0"}
	canonical := key("lib-a")
	b := key("b")
	f.api.AddVersion(requested)
	f.api.AddVersion(canonical)
	f.api.AddVersion(b)
	f.api.Dependencies[requested] = &depsdev.DependencyGraph{
		Nodes: []depsdev.Node{
			{VersionKey: canonical, Relation: depsdev.RelationSelf},
			{VersionKey: b, Relation: depsdev.RelationDirect},
		},
		Edges: []depsdev.Edge{{FromNode: 0, ToNode: 1}},
	}

	report, err := f.engine(Options{RootsOnly: true}).Scan(context.Background(), []store.VersionKey{requested})
	if err != nil {
		t.Fatal(err)
	}
	if n := f.versions.calls[canonical]; n != 0 {
		t.Errorf("self node %s scanned %d times, want 0", canonical, n)
	}
	if report.Visited != 2 {
		t.Errorf("Visited = %d, want 2", report.Visited)
	}
}
