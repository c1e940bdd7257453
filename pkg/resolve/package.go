package resolve

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscanner/pkg/depsdev"
	dserrors "github.com/matzehuels/depscanner/pkg/errors"
	"github.com/matzehuels/depscanner/pkg/observability"
	"github.com/matzehuels/depscanner/pkg/store"
)

// PackageResolver resolves the version list of a package.
type PackageResolver struct {
	api    depsdev.API
	store  store.VersionStore
	logger *log.Logger
}

// NewPackageResolver creates a package resolver. A nil logger uses log.Default().
func NewPackageResolver(api depsdev.API, st store.VersionStore, logger *log.Logger) *PackageResolver {
	if logger == nil {
		logger = log.Default()
	}
	return &PackageResolver{api: api, store: st, logger: logger}
}

// Resolve always asks upstream, reconciles the cached version set when its
// size differs, and returns the cached view. When upstream has nothing the
// cached view is returned if it has versions; otherwise it fails with
// NO_DEPENDENCY_VERSION_INFORMATION_AVAILABLE.
func (r *PackageResolver) Resolve(ctx context.Context, key store.PackageKey) (*depsdev.Package, error) {
	fetched, err := r.api.GetPackage(ctx, key)
	if err != nil {
		return nil, err
	}

	if fetched != nil {
		observability.Resolve().OnResolve(ctx, observability.KindPackage, observability.SourceUpstream)
		if err := r.record(ctx, key, fetched); err != nil {
			return nil, err
		}
	}

	cached, err := r.store.ListVersions(ctx, key)
	if err != nil {
		return nil, dserrors.Wrap(dserrors.ErrCodeInternal, err, "list versions of %s", key)
	}
	if len(cached) == 0 {
		observability.Resolve().OnResolve(ctx, observability.KindPackage, observability.SourceMissing)
		return nil, dserrors.New(dserrors.ErrCodeNoDependencyVersionInformation, "no dependency version data available for %s", key)
	}
	if fetched == nil {
		observability.Resolve().OnResolve(ctx, observability.KindPackage, observability.SourceStore)
		r.logger.Debug("upstream has no package data, serving cache", "package", key)
	}
	return packageFromStore(key, cached), nil
}

func (r *PackageResolver) record(ctx context.Context, key store.PackageKey, p *depsdev.Package) error {
	_, err := r.store.FindDependency(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// First sight of the package: persist everything.
	case err != nil:
		return dserrors.Wrap(dserrors.ErrCodeInternal, err, "load dependency %s", key)
	default:
		cached, err := r.store.ListVersions(ctx, key)
		if err != nil {
			return dserrors.Wrap(dserrors.ErrCodeInternal, err, "list versions of %s", key)
		}
		if len(cached) == len(p.Versions) {
			return nil
		}
	}

	if _, err := r.store.EnsureDependency(ctx, key); err != nil {
		return dserrors.Wrap(dserrors.ErrCodeInternal, err, "save dependency %s", key)
	}
	added := 0
	for _, pv := range p.Versions {
		vk := pv.VersionKey
		if vk.System == "" || vk.Name == "" {
			vk.System, vk.Name = key.System, key.Name
		}
		v, created, err := r.store.EnsureVersion(ctx, vk)
		if err != nil {
			return dserrors.Wrap(dserrors.ErrCodeInternal, err, "save version %s", vk)
		}
		if created {
			added++
		}
		if v.Detail == nil {
			d := store.VersionDetail{PublishedAt: pv.PublishedAt, IsDefault: pv.IsDefault}
			if err := r.store.SaveVersionDetail(ctx, v.ID, d); err != nil {
				return dserrors.Wrap(dserrors.ErrCodeInternal, err, "save detail of %s", vk)
			}
		}
	}
	r.logger.Debug("reconciled package versions", "package", key, "fetched", len(p.Versions), "added", added)
	return nil
}

func packageFromStore(key store.PackageKey, versions []store.Version) *depsdev.Package {
	out := &depsdev.Package{PackageKey: key, Versions: make([]depsdev.PackageVersion, len(versions))}
	for i, v := range versions {
		pv := depsdev.PackageVersion{VersionKey: v.Key}
		if v.Detail != nil {
			pv.PublishedAt = v.Detail.PublishedAt
			pv.IsDefault = v.Detail.IsDefault
		}
		out.Versions[i] = pv
	}
	return out
}
