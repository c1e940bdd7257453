// Package depsdevtest provides an in-memory [depsdev.API] for tests.
package depsdevtest

import (
	"context"
	"sync"

	"github.com/matzehuels/depscanner/pkg/depsdev"
	"github.com/matzehuels/depscanner/pkg/store"
)

// Fake serves canned responses and counts calls per endpoint. Keys without
// a response return (nil, nil), like a 404 upstream.
type Fake struct {
	mu sync.Mutex

	Packages     map[store.PackageKey]*depsdev.Package
	Versions     map[store.VersionKey]*depsdev.Version
	Dependencies map[store.VersionKey]*depsdev.DependencyGraph
	Advisories   map[string]*depsdev.Advisory

	// Err, when set, is returned by every call.
	Err error

	calls map[string]int
}

// New creates an empty fake.
func New() *Fake {
	return &Fake{
		Packages:     make(map[store.PackageKey]*depsdev.Package),
		Versions:     make(map[store.VersionKey]*depsdev.Version),
		Dependencies: make(map[store.VersionKey]*depsdev.DependencyGraph),
		Advisories:   make(map[string]*depsdev.Advisory),
		calls:        make(map[string]int),
	}
}

// AddVersion registers a version response with the given advisory ids.
func (f *Fake) AddVersion(key store.VersionKey, advisories ...string) *depsdev.Version {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := &depsdev.Version{VersionKey: key, Licenses: []string{"MIT"}}
	for _, id := range advisories {
		v.AdvisoryKeys = append(v.AdvisoryKeys, depsdev.AdvisoryKey{ID: id})
	}
	f.Versions[key] = v
	return v
}

// AddAdvisory registers an advisory response.
func (f *Fake) AddAdvisory(id, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Advisories[id] = &depsdev.Advisory{
		AdvisoryKey: depsdev.AdvisoryKey{ID: id},
		URL:         "https://osv.dev/vulnerability/" + id,
		Title:       title,
	}
}

// AddGraph registers a dependency graph for root whose nodes are root
// followed by deps, with an edge from root to each dep.
func (f *Fake) AddGraph(root store.VersionKey, deps ...store.VersionKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := &depsdev.DependencyGraph{Nodes: []depsdev.Node{{VersionKey: root, Relation: depsdev.RelationSelf}}}
	for i, d := range deps {
		g.Nodes = append(g.Nodes, depsdev.Node{VersionKey: d, Relation: depsdev.RelationDirect})
		g.Edges = append(g.Edges, depsdev.Edge{FromNode: 0, ToNode: i + 1, Requirement: "^" + d.Version})
	}
	f.Dependencies[root] = g
}

// Calls returns how often an endpoint was called (see depsdev.Endpoint*).
func (f *Fake) Calls(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

// ResetCalls zeroes the call counters.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

func (f *Fake) GetPackage(ctx context.Context, key store.PackageKey) (*depsdev.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[depsdev.EndpointPackage]++
	if err := f.fail(ctx); err != nil {
		return nil, err
	}
	return f.Packages[key], nil
}

func (f *Fake) GetVersion(ctx context.Context, key store.VersionKey) (*depsdev.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[depsdev.EndpointVersion]++
	if err := f.fail(ctx); err != nil {
		return nil, err
	}
	return f.Versions[key], nil
}

func (f *Fake) GetDependencies(ctx context.Context, key store.VersionKey) (*depsdev.DependencyGraph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[depsdev.EndpointDependencies]++
	if err := f.fail(ctx); err != nil {
		return nil, err
	}
	return f.Dependencies[key], nil
}

func (f *Fake) GetAdvisory(ctx context.Context, id string) (*depsdev.Advisory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[depsdev.EndpointAdvisory]++
	if err := f.fail(ctx); err != nil {
		return nil, err
	}
	return f.Advisories[id], nil
}

var _ depsdev.API = (*Fake)(nil)

func (f *Fake) fail(ctx context.Context) error {
	if f.Err != nil {
		return f.Err
	}
	return ctx.Err()
}
