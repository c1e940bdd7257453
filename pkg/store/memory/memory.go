// Package memory provides an in-process [store.Store] for tests and one-off
// CLI runs. All state is lost when the process exits.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matzehuels/depscanner/pkg/store"
)

// Store keeps every entity in maps guarded by a single RWMutex.
type Store struct {
	mu sync.RWMutex

	nextID int64

	systems      map[string]int64
	dependencies map[store.PackageKey]*store.Dependency
	versions     map[int64]*store.Version
	versionIDs   map[store.VersionKey]int64
	graphs       map[int64]store.Graph

	advisories map[string]*advisory
	details    map[int64]*store.AdvisoryDetail
	detailURLs map[string]int64
}

type advisory struct {
	detailID int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		systems:      make(map[string]int64),
		dependencies: make(map[store.PackageKey]*store.Dependency),
		versions:     make(map[int64]*store.Version),
		versionIDs:   make(map[store.VersionKey]int64),
		graphs:       make(map[int64]store.Graph),
		advisories:   make(map[string]*advisory),
		details:      make(map[int64]*store.AdvisoryDetail),
		detailURLs:   make(map[string]int64),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) FindDependency(ctx context.Context, key store.PackageKey) (*store.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dependencies[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Store) EnsureDependency(ctx context.Context, key store.PackageKey) (*store.Dependency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.ensureDependency(key)
	return &cp, nil
}

func (s *Store) ensureDependency(key store.PackageKey) *store.Dependency {
	if d, ok := s.dependencies[key]; ok {
		return d
	}
	sysID, ok := s.systems[key.System]
	if !ok {
		sysID = s.id()
		s.systems[key.System] = sysID
	}
	d := &store.Dependency{ID: s.id(), SystemID: sysID, Key: key}
	s.dependencies[key] = d
	return d
}

func (s *Store) ListVersions(ctx context.Context, key store.PackageKey) ([]store.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dependencies[key]
	if !ok {
		return nil, nil
	}
	var out []store.Version
	for _, v := range s.versions {
		if v.DependencyID == d.ID {
			out = append(out, clone(v))
		}
	}
	slices.SortFunc(out, func(a, b store.Version) int {
		return strings.Compare(a.Key.Version, b.Key.Version)
	})
	return out, nil
}

func (s *Store) FindVersion(ctx context.Context, key store.VersionKey) (*store.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.versionIDs[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	v := clone(s.versions[id])
	return &v, nil
}

func (s *Store) EnsureVersion(ctx context.Context, key store.VersionKey) (*store.Version, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.versionIDs[key]; ok {
		v := clone(s.versions[id])
		return &v, false, nil
	}
	d := s.ensureDependency(key.Package())
	v := &store.Version{ID: s.id(), DependencyID: d.ID, Key: key}
	s.versions[v.ID] = v
	s.versionIDs[key] = v.ID
	cp := clone(v)
	return &cp, true, nil
}

func (s *Store) SaveVersionDetail(ctx context.Context, versionID int64, d store.VersionDetail) error {
	return s.update(versionID, func(v *store.Version) { v.Detail = &d })
}

func (s *Store) SetLicenses(ctx context.Context, versionID int64, licenses []string) error {
	return s.update(versionID, func(v *store.Version) { v.Licenses = store.Dedup(licenses) })
}

func (s *Store) SetLinks(ctx context.Context, versionID int64, links []store.Link) error {
	return s.update(versionID, func(v *store.Version) { v.Links = store.DedupLinks(links) })
}

func (s *Store) SetAdvisoryKeys(ctx context.Context, versionID int64, ids []string) error {
	ids = store.Dedup(ids)
	return s.update(versionID, func(v *store.Version) {
		for _, id := range ids {
			if _, ok := s.advisories[id]; !ok {
				s.advisories[id] = &advisory{}
			}
		}
		v.AdvisoryKeys = ids
	})
}

func (s *Store) update(versionID int64, fn func(*store.Version)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[versionID]
	if !ok {
		return store.ErrNotFound
	}
	fn(v)
	return nil
}

func (s *Store) FindAdvisory(ctx context.Context, id string) (*store.Advisory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.advisories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := &store.Advisory{ID: id}
	if d, ok := s.details[a.detailID]; ok {
		cp := *d
		cp.Aliases = slices.Clone(d.Aliases)
		out.Detail = &cp
	}
	return out, nil
}

func (s *Store) SaveAdvisory(ctx context.Context, a store.Advisory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	adv, ok := s.advisories[a.ID]
	if !ok {
		adv = &advisory{}
		s.advisories[a.ID] = adv
	}
	if a.Detail == nil {
		return nil
	}
	detailID, ok := s.detailURLs[a.Detail.URL]
	if !ok {
		detailID = s.id()
		s.detailURLs[a.Detail.URL] = detailID
		d := *a.Detail
		d.ID = detailID
		d.Aliases = store.Dedup(a.Detail.Aliases)
		s.details[detailID] = &d
	}
	adv.detailID = detailID
	return nil
}

func (s *Store) Graph(ctx context.Context, versionID int64) (*store.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.versions[versionID]; !ok {
		return nil, store.ErrNotFound
	}
	g, ok := s.graphs[versionID]
	if !ok {
		return &store.Graph{}, nil
	}
	out := store.Graph{
		Nodes:      make([]store.GraphNode, len(g.Nodes)),
		Edges:      slices.Clone(g.Edges),
		CapturedAt: g.CapturedAt,
	}
	for i, n := range g.Nodes {
		n.Errors = slices.Clone(n.Errors)
		if v, ok := s.versions[n.VersionID]; ok {
			n.Key = v.Key
		}
		out.Nodes[i] = n
	}
	return &out, nil
}

func (s *Store) SaveGraph(ctx context.Context, versionID int64, g store.Graph, replace bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.versions[versionID]; !ok {
		return false, store.ErrNotFound
	}
	if existing, ok := s.graphs[versionID]; ok && len(existing.Nodes) > 0 && !replace {
		return false, nil
	}
	for _, n := range g.Nodes {
		if _, ok := s.versions[n.VersionID]; !ok {
			return false, store.ErrNotFound
		}
	}
	if g.CapturedAt.IsZero() {
		g.CapturedAt = time.Now().UTC()
	}
	s.graphs[versionID] = store.Graph{
		Nodes:      slices.Clone(g.Nodes),
		Edges:      slices.Clone(g.Edges),
		CapturedAt: g.CapturedAt,
	}
	return true, nil
}

// Close does nothing for the memory store.
func (s *Store) Close() error { return nil }

func clone(v *store.Version) store.Version {
	cp := *v
	if v.Detail != nil {
		d := *v.Detail
		cp.Detail = &d
	}
	cp.Licenses = slices.Clone(v.Licenses)
	cp.AdvisoryKeys = slices.Clone(v.AdvisoryKeys)
	cp.Links = slices.Clone(v.Links)
	return cp
}

var _ store.Store = (*Store)(nil)
