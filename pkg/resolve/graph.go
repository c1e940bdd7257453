package resolve

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscanner/pkg/depsdev"
	dserrors "github.com/matzehuels/depscanner/pkg/errors"
	"github.com/matzehuels/depscanner/pkg/observability"
	"github.com/matzehuels/depscanner/pkg/store"
)

// GraphResolver resolves the dependency graph of a version.
type GraphResolver struct {
	api      depsdev.API
	store    store.Store
	versions *VersionResolver
	ttl      time.Duration
	now      func() time.Time
	logger   *log.Logger
}

// NewGraphResolver creates a graph resolver. A ttl of zero keeps captured
// graphs forever; a positive ttl refetches and replaces older graphs.
func NewGraphResolver(api depsdev.API, st store.Store, versions *VersionResolver, ttl time.Duration, logger *log.Logger) *GraphResolver {
	if logger == nil {
		logger = log.Default()
	}
	return &GraphResolver{api: api, store: st, versions: versions, ttl: ttl, now: time.Now, logger: logger}
}

// Resolve serves a captured graph from the store when present and fresh.
// Otherwise it fetches the graph, resolves the version metadata of every
// node (failures are logged), records the graph and returns it as stored.
// Fails with NO_DEPENDENCY_INFORMATION_AVAILABLE when upstream has no data.
func (r *GraphResolver) Resolve(ctx context.Context, key store.VersionKey) (*GraphView, error) {
	if v, err := r.store.FindVersion(ctx, key); err == nil {
		g, err := r.store.Graph(ctx, v.ID)
		if err != nil {
			return nil, dserrors.Wrap(dserrors.ErrCodeInternal, err, "load graph of %s", key)
		}
		if !g.Empty() && !r.stale(g) {
			observability.Resolve().OnResolve(ctx, observability.KindGraph, observability.SourceStore)
			return buildView(ctx, r.store, key, g)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, dserrors.Wrap(dserrors.ErrCodeInternal, err, "load version %s", key)
	}

	fetched, err := r.api.GetDependencies(ctx, key)
	if err != nil {
		return nil, err
	}
	root, ok := fetched.Root()
	if !ok {
		observability.Resolve().OnResolve(ctx, observability.KindGraph, observability.SourceMissing)
		return nil, dserrors.New(dserrors.ErrCodeNoDependencyInformation, "no dependency data available for %s", key)
	}
	observability.Resolve().OnResolve(ctx, observability.KindGraph, observability.SourceUpstream)
	if fetched.Error != "" {
		r.logger.Warn("upstream graph resolution reported an error", "version", key, "err", fetched.Error)
	}

	for _, n := range fetched.Nodes {
		if _, err := r.versions.Resolve(ctx, n.VersionKey); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("graph node not resolved", "node", n.VersionKey, "err", err)
		}
	}
	if err := r.Record(ctx, fetched); err != nil {
		return nil, err
	}

	v, err := r.store.FindVersion(ctx, root)
	if err != nil {
		return nil, dserrors.Wrap(dserrors.ErrCodeInternal, err, "load version %s", root)
	}
	g, err := r.store.Graph(ctx, v.ID)
	if err != nil {
		return nil, dserrors.Wrap(dserrors.ErrCodeInternal, err, "load graph of %s", root)
	}
	if root != key {
		if err := r.alias(ctx, key, g); err != nil {
			return nil, err
		}
	}
	return buildView(ctx, r.store, root, g)
}

// alias stores g under the requested key as well, so a request that names
// the package differently from upstream's node 0 still hits the store next
// time.
func (r *GraphResolver) alias(ctx context.Context, key store.VersionKey, g *store.Graph) error {
	kv, _, err := r.store.EnsureVersion(ctx, key)
	if err != nil {
		return dserrors.Wrap(dserrors.ErrCodeInternal, err, "save version %s", key)
	}
	if _, err := r.store.SaveGraph(ctx, kv.ID, *g, true); err != nil {
		return dserrors.Wrap(dserrors.ErrCodeInternal, err, "save graph of %s", key)
	}
	r.logger.Debug("graph stored under requested key", "requested", key, "upstream", g.Nodes[0].Key)
	return nil
}

// Record persists a fetched graph against its node 0 version, unless that
// version already holds a fresh graph. Nodes and edges are written together.
func (r *GraphResolver) Record(ctx context.Context, fetched *depsdev.DependencyGraph) error {
	root, ok := fetched.Root()
	if !ok {
		return nil
	}
	rv, _, err := r.store.EnsureVersion(ctx, root)
	if err != nil {
		return dserrors.Wrap(dserrors.ErrCodeInternal, err, "save version %s", root)
	}
	existing, err := r.store.Graph(ctx, rv.ID)
	if err != nil {
		return dserrors.Wrap(dserrors.ErrCodeInternal, err, "load graph of %s", root)
	}
	if !existing.Empty() && !r.stale(existing) {
		return nil
	}

	g := store.Graph{
		Nodes:      make([]store.GraphNode, len(fetched.Nodes)),
		Edges:      make([]store.GraphEdge, 0, len(fetched.Edges)),
		CapturedAt: r.now().UTC(),
	}
	for i, n := range fetched.Nodes {
		v, _, err := r.store.EnsureVersion(ctx, n.VersionKey)
		if err != nil {
			return dserrors.Wrap(dserrors.ErrCodeInternal, err, "save version %s", n.VersionKey)
		}
		g.Nodes[i] = store.GraphNode{
			VersionID: v.ID,
			Key:       n.VersionKey,
			Bundled:   n.Bundled,
			Relation:  n.Relation,
			Errors:    n.Errors,
		}
	}
	for _, e := range fetched.Edges {
		if e.FromNode < 0 || e.FromNode >= len(g.Nodes) || e.ToNode < 0 || e.ToNode >= len(g.Nodes) {
			r.logger.Warn("dropping edge with out-of-range node", "version", root, "from", e.FromNode, "to", e.ToNode)
			continue
		}
		g.Edges = append(g.Edges, store.GraphEdge{FromNode: e.FromNode, ToNode: e.ToNode, Requirement: e.Requirement})
	}

	saved, err := r.store.SaveGraph(ctx, rv.ID, g, !existing.Empty())
	if err != nil {
		return dserrors.Wrap(dserrors.ErrCodeInternal, err, "save graph of %s", root)
	}
	if saved {
		r.logger.Debug("recorded graph", "version", root, "nodes", len(g.Nodes), "edges", len(g.Edges), "replaced", !existing.Empty())
	}
	return nil
}

func (r *GraphResolver) stale(g *store.Graph) bool {
	return r.ttl > 0 && !g.CapturedAt.IsZero() && r.now().Sub(g.CapturedAt) > r.ttl
}
