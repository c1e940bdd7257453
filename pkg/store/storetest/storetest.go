// Package storetest provides a conformance suite for [store.Store] backends.
package storetest

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/depscanner/pkg/store"
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run exercises every store operation against the backend returned by open.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"EnsureVersionIsIdempotent", testEnsureVersionIdempotent},
		{"FindVersionNotFound", testFindVersionNotFound},
		{"VersionAssociations", testVersionAssociations},
		{"ListVersions", testListVersions},
		{"AdvisoryKeysWithoutDetail", testAdvisoryKeysWithoutDetail},
		{"AdvisoryDetailSharedByURL", testAdvisoryDetailSharedByURL},
		{"GraphSavedOnce", testGraphSavedOnce},
		{"GraphReplace", testGraphReplace},
		{"ConcurrentEnsureVersion", testConcurrentEnsureVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

var (
	libA = store.VersionKey{System: "NPM", Name: "lib-a", Version: "1.0.0"}
	libB = store.VersionKey{System: "NPM", Name: "lib-b", Version: "2.0.0"}
	libC = store.VersionKey{System: "NPM", Name: "@scope/lib-c", Version: "3.1.0"}
)

func testEnsureVersionIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()

	v1, created, err := s.EnsureVersion(ctx, libA)
	if err != nil {
		t.Fatalf("EnsureVersion: %v", err)
	}
	if !created {
		t.Error("first EnsureVersion should report created")
	}

	v2, created, err := s.EnsureVersion(ctx, libA)
	if err != nil {
		t.Fatalf("EnsureVersion again: %v", err)
	}
	if created {
		t.Error("second EnsureVersion should not report created")
	}
	if v1.ID != v2.ID {
		t.Errorf("ids differ: %d vs %d", v1.ID, v2.ID)
	}
	if v2.Key != libA {
		t.Errorf("Key = %v, want %v", v2.Key, libA)
	}

	d, err := s.FindDependency(ctx, libA.Package())
	if err != nil {
		t.Fatalf("FindDependency: %v", err)
	}
	if d.ID != v1.DependencyID {
		t.Errorf("dependency id = %d, want %d", d.ID, v1.DependencyID)
	}

	other, _, err := s.EnsureVersion(ctx, store.VersionKey{System: "NPM", Name: "lib-a", Version: "1.0.1"})
	if err != nil {
		t.Fatalf("EnsureVersion sibling: %v", err)
	}
	if other.DependencyID != v1.DependencyID {
		t.Error("versions of one package should share the dependency row")
	}
}

func testFindVersionNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.FindVersion(ctx, libA); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FindVersion err = %v, want ErrNotFound", err)
	}
	if _, err := s.FindDependency(ctx, libA.Package()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FindDependency err = %v, want ErrNotFound", err)
	}
	if _, err := s.FindAdvisory(ctx, "GHSA-none"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FindAdvisory err = %v, want ErrNotFound", err)
	}
}

func testVersionAssociations(t *testing.T, s store.Store) {
	ctx := context.Background()
	v, _, err := s.EnsureVersion(ctx, libC)
	if err != nil {
		t.Fatalf("EnsureVersion: %v", err)
	}

	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.SaveVersionDetail(ctx, v.ID, store.VersionDetail{PublishedAt: published, IsDefault: true}); err != nil {
		t.Fatalf("SaveVersionDetail: %v", err)
	}
	if err := s.SetLicenses(ctx, v.ID, []string{"MIT", "Apache-2.0", "MIT"}); err != nil {
		t.Fatalf("SetLicenses: %v", err)
	}
	links := []store.Link{{Label: "SOURCE_REPO", URL: "https://github.com/scope/lib-c"}}
	if err := s.SetLinks(ctx, v.ID, links); err != nil {
		t.Fatalf("SetLinks: %v", err)
	}
	if err := s.SetAdvisoryKeys(ctx, v.ID, []string{"GHSA-1"}); err != nil {
		t.Fatalf("SetAdvisoryKeys: %v", err)
	}

	got, err := s.FindVersion(ctx, libC)
	if err != nil {
		t.Fatalf("FindVersion: %v", err)
	}
	if got.Detail == nil || !got.Detail.PublishedAt.Equal(published) || !got.Detail.IsDefault {
		t.Errorf("Detail = %+v", got.Detail)
	}
	licenses := slices.Clone(got.Licenses)
	slices.Sort(licenses)
	if !slices.Equal(licenses, []string{"Apache-2.0", "MIT"}) {
		t.Errorf("Licenses = %v", got.Licenses)
	}
	if !slices.Equal(got.Links, links) {
		t.Errorf("Links = %v, want %v", got.Links, links)
	}
	if !slices.Equal(got.AdvisoryKeys, []string{"GHSA-1"}) {
		t.Errorf("AdvisoryKeys = %v", got.AdvisoryKeys)
	}

	if err := s.SetAdvisoryKeys(ctx, v.ID, []string{"GHSA-1", "GHSA-2"}); err != nil {
		t.Fatalf("SetAdvisoryKeys replace: %v", err)
	}
	got, _ = s.FindVersion(ctx, libC)
	keys := slices.Clone(got.AdvisoryKeys)
	slices.Sort(keys)
	if !slices.Equal(keys, []string{"GHSA-1", "GHSA-2"}) {
		t.Errorf("AdvisoryKeys after replace = %v", got.AdvisoryKeys)
	}
}

func testListVersions(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, ver := range []string{"1.1.0", "1.0.0"} {
		if _, _, err := s.EnsureVersion(ctx, store.VersionKey{System: "PYPI", Name: "requests", Version: ver}); err != nil {
			t.Fatalf("EnsureVersion: %v", err)
		}
	}
	if _, _, err := s.EnsureVersion(ctx, libA); err != nil {
		t.Fatalf("EnsureVersion: %v", err)
	}

	versions, err := s.ListVersions(ctx, store.PackageKey{System: "PYPI", Name: "requests"})
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("len = %d, want 2", len(versions))
	}
	if versions[0].Key.Version != "1.0.0" || versions[1].Key.Version != "1.1.0" {
		t.Errorf("order = %s, %s", versions[0].Key.Version, versions[1].Key.Version)
	}

	none, err := s.ListVersions(ctx, store.PackageKey{System: "PYPI", Name: "missing"})
	if err != nil {
		t.Fatalf("ListVersions missing: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("unknown package should have no versions, got %d", len(none))
	}
}

func testAdvisoryKeysWithoutDetail(t *testing.T, s store.Store) {
	ctx := context.Background()
	v, _, _ := s.EnsureVersion(ctx, libB)
	if err := s.SetAdvisoryKeys(ctx, v.ID, []string{"GHSA-404"}); err != nil {
		t.Fatalf("SetAdvisoryKeys: %v", err)
	}

	a, err := s.FindAdvisory(ctx, "GHSA-404")
	if err != nil {
		t.Fatalf("FindAdvisory: %v", err)
	}
	if a.Detail != nil {
		t.Errorf("Detail = %+v, want nil", a.Detail)
	}

	detail := &store.AdvisoryDetail{
		URL:         "https://osv.dev/GHSA-404",
		Title:       "Prototype pollution",
		Aliases:     []string{"CVE-2024-0001"},
		CVSS3Score:  7.5,
		CVSS3Vector: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:N/I:N/A:H",
	}
	if err := s.SaveAdvisory(ctx, store.Advisory{ID: "GHSA-404", Detail: detail}); err != nil {
		t.Fatalf("SaveAdvisory: %v", err)
	}
	a, _ = s.FindAdvisory(ctx, "GHSA-404")
	if a.Detail == nil {
		t.Fatal("Detail should be linked after SaveAdvisory")
	}
	if a.Detail.Title != detail.Title || a.Detail.CVSS3Score != 7.5 || !slices.Equal(a.Detail.Aliases, detail.Aliases) {
		t.Errorf("Detail = %+v", a.Detail)
	}
}

func testAdvisoryDetailSharedByURL(t *testing.T, s store.Store) {
	ctx := context.Background()
	detail := &store.AdvisoryDetail{URL: "https://osv.dev/shared", Title: "Shared"}
	for _, id := range []string{"GHSA-a", "GHSA-b"} {
		if err := s.SaveAdvisory(ctx, store.Advisory{ID: id, Detail: detail}); err != nil {
			t.Fatalf("SaveAdvisory %s: %v", id, err)
		}
	}
	if err := s.SaveAdvisory(ctx, store.Advisory{ID: "GHSA-a", Detail: detail}); err != nil {
		t.Fatalf("SaveAdvisory again: %v", err)
	}

	a, _ := s.FindAdvisory(ctx, "GHSA-a")
	b, _ := s.FindAdvisory(ctx, "GHSA-b")
	if a.Detail == nil || b.Detail == nil {
		t.Fatal("both keys should have detail")
	}
	if a.Detail.ID != b.Detail.ID {
		t.Errorf("detail ids differ: %d vs %d", a.Detail.ID, b.Detail.ID)
	}
}

func saveSampleGraph(t *testing.T, s store.Store, replace bool, requirement string) (int64, bool) {
	t.Helper()
	ctx := context.Background()
	root, _, err := s.EnsureVersion(ctx, libA)
	if err != nil {
		t.Fatalf("EnsureVersion: %v", err)
	}
	child, _, err := s.EnsureVersion(ctx, libB)
	if err != nil {
		t.Fatalf("EnsureVersion: %v", err)
	}
	g := store.Graph{
		Nodes: []store.GraphNode{
			{VersionID: root.ID, Relation: "SELF"},
			{VersionID: child.ID, Relation: "DIRECT", Errors: []string{"resolution warning"}},
		},
		Edges: []store.GraphEdge{{FromNode: 0, ToNode: 1, Requirement: requirement}},
	}
	saved, err := s.SaveGraph(ctx, root.ID, g, replace)
	if err != nil {
		t.Fatalf("SaveGraph: %v", err)
	}
	return root.ID, saved
}

func testGraphSavedOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	root, _, _ := s.EnsureVersion(ctx, libA)

	empty, err := s.Graph(ctx, root.ID)
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if !empty.Empty() {
		t.Fatalf("new version should have an empty graph, got %d nodes", len(empty.Nodes))
	}

	id, saved := saveSampleGraph(t, s, false, "^2.0.0")
	if !saved {
		t.Fatal("first SaveGraph should save")
	}
	if _, saved := saveSampleGraph(t, s, false, "^9.9.9"); saved {
		t.Error("second SaveGraph without replace should be a no-op")
	}

	g, err := s.Graph(ctx, id)
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(g.Nodes) != 2 || len(g.Edges) != 1 {
		t.Fatalf("graph = %d nodes, %d edges", len(g.Nodes), len(g.Edges))
	}
	if g.Nodes[0].Key != libA || g.Nodes[1].Key != libB {
		t.Errorf("node keys = %v, %v", g.Nodes[0].Key, g.Nodes[1].Key)
	}
	if g.Nodes[1].Relation != "DIRECT" || !slices.Equal(g.Nodes[1].Errors, []string{"resolution warning"}) {
		t.Errorf("node 1 = %+v", g.Nodes[1])
	}
	if g.Edges[0].Requirement != "^2.0.0" {
		t.Errorf("requirement = %q, want original", g.Edges[0].Requirement)
	}
	if g.CapturedAt.IsZero() {
		t.Error("CapturedAt should be set")
	}
}

func testGraphReplace(t *testing.T, s store.Store) {
	ctx := context.Background()
	id, _ := saveSampleGraph(t, s, false, "^2.0.0")
	if _, saved := saveSampleGraph(t, s, true, "~2.0.0"); !saved {
		t.Fatal("SaveGraph with replace should save")
	}
	g, err := s.Graph(ctx, id)
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(g.Nodes) != 2 || len(g.Edges) != 1 {
		t.Fatalf("replaced graph = %d nodes, %d edges", len(g.Nodes), len(g.Edges))
	}
	if g.Edges[0].Requirement != "~2.0.0" {
		t.Errorf("requirement = %q, want replaced", g.Edges[0].Requirement)
	}
}

func testConcurrentEnsureVersion(t *testing.T, s store.Store) {
	ctx := context.Background()
	const n = 8

	ids := make([]int64, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := s.EnsureVersion(ctx, libB)
			errs[i] = err
			if v != nil {
				ids[i] = v.ID
			}
		}()
	}
	wg.Wait()

	for i := range n {
		if errs[i] != nil {
			t.Fatalf("EnsureVersion[%d]: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("EnsureVersion[%d] id = %d, want %d", i, ids[i], ids[0])
		}
	}
}
