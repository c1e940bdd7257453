package resolve

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/depscanner/pkg/depsdev"
	dserrors "github.com/matzehuels/depscanner/pkg/errors"
	"github.com/matzehuels/depscanner/pkg/observability"
	"github.com/matzehuels/depscanner/pkg/store"
)

// VersionStore is the store surface the version resolver needs.
type VersionStore interface {
	store.VersionStore
	store.GraphStore
}

// VulnCheckResult is one entry of a [VersionResolver.CheckVulnerable] answer.
type VulnCheckResult struct {
	System          string `json:"system"`
	Name            string `json:"name"`
	Version         string `json:"version"`
	IsDataAvailable bool   `json:"isDataAvailable"`
}

// VersionResolver resolves and reconciles version metadata.
type VersionResolver struct {
	api        depsdev.API
	store      VersionStore
	advisories *AdvisoryResolver
	locks      *keyedMutex
	logger     *log.Logger
}

// NewVersionResolver creates a version resolver. A nil logger uses log.Default().
func NewVersionResolver(api depsdev.API, st VersionStore, advisories *AdvisoryResolver, logger *log.Logger) *VersionResolver {
	if logger == nil {
		logger = log.Default()
	}
	return &VersionResolver{
		api:        api,
		store:      st,
		advisories: advisories,
		locks:      newKeyedMutex(),
		logger:     logger,
	}
}

// Resolve fetches current metadata, records it and returns the fetched
// payload. Fails with NO_DEPENDENCY_VERSION_INFORMATION_AVAILABLE when
// upstream has no data.
func (r *VersionResolver) Resolve(ctx context.Context, key store.VersionKey) (*depsdev.Version, error) {
	fetched, err := r.api.GetVersion(ctx, key)
	if err != nil {
		return nil, err
	}
	if fetched == nil {
		observability.Resolve().OnResolve(ctx, observability.KindVersion, observability.SourceMissing)
		return nil, dserrors.New(dserrors.ErrCodeNoDependencyVersionInformation, "no dependency version data available for %s", key)
	}
	observability.Resolve().OnResolve(ctx, observability.KindVersion, observability.SourceUpstream)
	if fetched.VersionKey == (store.VersionKey{}) {
		fetched.VersionKey = key
	}
	if err := r.Record(ctx, fetched); err != nil {
		return nil, err
	}
	return fetched, nil
}

// Record persists fetched version metadata without calling upstream for the
// version itself. New versions are stored in full. Known versions get their
// detail, links and licenses filled only while empty, and their advisory keys
// replaced only when upstream reports more of them. Advisory keys that were
// written are resolved; advisory failures are logged and never fail Record.
func (r *VersionResolver) Record(ctx context.Context, fetched *depsdev.Version) error {
	if fetched == nil {
		return nil
	}
	key := fetched.VersionKey
	unlock := r.locks.Lock(key)
	defer unlock()

	v, created, err := r.store.EnsureVersion(ctx, key)
	if err != nil {
		return dserrors.Wrap(dserrors.ErrCodeInternal, err, "save version %s", key)
	}

	ids := fetched.AdvisoryIDs()
	links := fetched.StoreLinks()

	if created || v.Detail == nil {
		if err := r.store.SaveVersionDetail(ctx, v.ID, fetched.Detail()); err != nil {
			return dserrors.Wrap(dserrors.ErrCodeInternal, err, "save detail of %s", key)
		}
	}
	if len(v.Links) == 0 && len(links) > 0 {
		if err := r.store.SetLinks(ctx, v.ID, links); err != nil {
			return dserrors.Wrap(dserrors.ErrCodeInternal, err, "save links of %s", key)
		}
	}
	if len(v.Licenses) == 0 && len(fetched.Licenses) > 0 {
		if err := r.store.SetLicenses(ctx, v.ID, fetched.Licenses); err != nil {
			return dserrors.Wrap(dserrors.ErrCodeInternal, err, "save licenses of %s", key)
		}
	}
	if len(store.Dedup(ids)) <= len(v.AdvisoryKeys) {
		return nil
	}

	if err := r.store.SetAdvisoryKeys(ctx, v.ID, ids); err != nil {
		return dserrors.Wrap(dserrors.ErrCodeInternal, err, "save advisory keys of %s", key)
	}
	if created {
		r.logger.Debug("recorded version", "version", key, "advisories", len(ids))
	} else {
		r.logger.Info("advisory keys grew", "version", key, "cached", len(v.AdvisoryKeys), "fetched", len(ids))
	}
	return r.advisories.resolveAll(ctx, ids)
}

// CheckVulnerable reports, for each key, whether it is known and flagged.
// Keys never resolved come back with IsDataAvailable false. Known keys are
// returned with IsDataAvailable true when the version or any node of its
// cached graph carries an advisory key; clean keys are omitted.
func (r *VersionResolver) CheckVulnerable(ctx context.Context, keys []store.VersionKey) ([]VulnCheckResult, error) {
	type verdict struct {
		known, vulnerable bool
	}
	verdicts := make([]verdict, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, key := range keys {
		g.Go(func() error {
			known, vulnerable, err := r.checkOne(gctx, key)
			verdicts[i] = verdict{known: known, vulnerable: vulnerable}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := []VulnCheckResult{}
	for i, key := range keys {
		switch v := verdicts[i]; {
		case !v.known:
			out = append(out, VulnCheckResult{System: key.System, Name: key.Name, Version: key.Version})
		case v.vulnerable:
			out = append(out, VulnCheckResult{System: key.System, Name: key.Name, Version: key.Version, IsDataAvailable: true})
		}
	}
	return out, nil
}

func (r *VersionResolver) checkOne(ctx context.Context, key store.VersionKey) (known, vulnerable bool, err error) {
	v, err := r.store.FindVersion(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, dserrors.Wrap(dserrors.ErrCodeInternal, err, "load version %s", key)
	}
	if v.Vulnerable() {
		return true, true, nil
	}

	graph, err := r.store.Graph(ctx, v.ID)
	if err != nil {
		return true, false, dserrors.Wrap(dserrors.ErrCodeInternal, err, "load graph of %s", key)
	}
	for _, n := range graph.Nodes {
		if n.VersionID == v.ID {
			continue
		}
		nv, err := r.store.FindVersion(ctx, n.Key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return true, false, dserrors.Wrap(dserrors.ErrCodeInternal, err, "load version %s", n.Key)
		}
		if nv.Vulnerable() {
			return true, true, nil
		}
	}
	return true, false, nil
}
