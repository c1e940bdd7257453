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

// AdvisoryResolver resolves advisory keys to their details.
type AdvisoryResolver struct {
	api    depsdev.API
	store  store.AdvisoryStore
	logger *log.Logger
}

// NewAdvisoryResolver creates an advisory resolver. A nil logger uses log.Default().
func NewAdvisoryResolver(api depsdev.API, st store.AdvisoryStore, logger *log.Logger) *AdvisoryResolver {
	if logger == nil {
		logger = log.Default()
	}
	return &AdvisoryResolver{api: api, store: st, logger: logger}
}

// Resolve returns the advisory from the store when its detail is cached,
// otherwise fetches and records it. Fails with NO_ADVISORY_INFORMATION_AVAILABLE
// when upstream has no data.
func (r *AdvisoryResolver) Resolve(ctx context.Context, id string) (*depsdev.Advisory, error) {
	cached, err := r.store.FindAdvisory(ctx, id)
	switch {
	case err == nil && cached.Detail != nil:
		observability.Resolve().OnResolve(ctx, observability.KindAdvisory, observability.SourceStore)
		return advisoryFromStore(cached), nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, dserrors.Wrap(dserrors.ErrCodeInternal, err, "load advisory %s", id)
	}

	fetched, err := r.api.GetAdvisory(ctx, id)
	if err != nil {
		return nil, err
	}
	if fetched == nil {
		observability.Resolve().OnResolve(ctx, observability.KindAdvisory, observability.SourceMissing)
		return nil, dserrors.New(dserrors.ErrCodeNoAdvisoryInformation, "no advisory information available for %s", id)
	}
	observability.Resolve().OnResolve(ctx, observability.KindAdvisory, observability.SourceUpstream)
	if fetched.AdvisoryKey.ID == "" {
		fetched.AdvisoryKey.ID = id
	}
	if err := r.Record(ctx, fetched); err != nil {
		return nil, err
	}
	return fetched, nil
}

// Record persists a fetched advisory without calling upstream.
func (r *AdvisoryResolver) Record(ctx context.Context, a *depsdev.Advisory) error {
	if a == nil || a.AdvisoryKey.ID == "" {
		return nil
	}
	if err := r.store.SaveAdvisory(ctx, a.StoreAdvisory()); err != nil {
		return dserrors.Wrap(dserrors.ErrCodeInternal, err, "save advisory %s", a.AdvisoryKey.ID)
	}
	r.logger.Debug("recorded advisory", "id", a.AdvisoryKey.ID)
	return nil
}

func advisoryFromStore(a *store.Advisory) *depsdev.Advisory {
	out := &depsdev.Advisory{AdvisoryKey: depsdev.AdvisoryKey{ID: a.ID}}
	if d := a.Detail; d != nil {
		out.URL = d.URL
		out.Title = d.Title
		out.Aliases = d.Aliases
		out.CVSS3Score = d.CVSS3Score
		out.CVSS3Vector = d.CVSS3Vector
	}
	return out
}

// resolveAll resolves every id, logging failures. Only cancellation is returned.
func (r *AdvisoryResolver) resolveAll(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := r.Resolve(ctx, id); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("advisory not resolved", "id", id, "err", err)
		}
	}
	return nil
}
