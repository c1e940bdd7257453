package resolve

import (
	"context"
	"errors"
	"time"

	dserrors "github.com/matzehuels/depscanner/pkg/errors"
	"github.com/matzehuels/depscanner/pkg/store"
)

// GraphView is the query-facing form of a captured graph.
type GraphView struct {
	Root         store.VersionKey    `json:"root"`
	Dependencies []RelatedDependency `json:"dependencies"`
	Edges        []Edge              `json:"edges"`
	CapturedAt   time.Time           `json:"capturedAt"`
}

// RelatedDependency is one node of a [GraphView] with its cached metadata.
type RelatedDependency struct {
	store.VersionKey
	Bundled     bool           `json:"bundled"`
	Relation    string         `json:"relation"`
	Errors      []string       `json:"errors,omitempty"`
	PublishedAt *time.Time     `json:"publishedAt,omitempty"`
	Licenses    []string       `json:"licenses,omitempty"`
	Links       []store.Link   `json:"links,omitempty"`
	Advisories  []AdvisoryView `json:"advisories,omitempty"`
}

// Vulnerable reports whether the node carries advisories.
func (d RelatedDependency) Vulnerable() bool { return len(d.Advisories) > 0 }

// AdvisoryView is an advisory key with whatever detail is cached for it.
type AdvisoryView struct {
	ID          string   `json:"id"`
	URL         string   `json:"url,omitempty"`
	Title       string   `json:"title,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
	CVSS3Score  float64  `json:"cvss3Score,omitempty"`
	CVSS3Vector string   `json:"cvss3Vector,omitempty"`
}

// Edge connects two entries of [GraphView.Dependencies] by index.
type Edge struct {
	FromNode    int    `json:"fromNode"`
	ToNode      int    `json:"toNode"`
	Requirement string `json:"requirement"`
}

type viewStore interface {
	store.VersionStore
	store.AdvisoryStore
}

func buildView(ctx context.Context, st viewStore, root store.VersionKey, g *store.Graph) (*GraphView, error) {
	view := &GraphView{
		Root:         root,
		Dependencies: make([]RelatedDependency, len(g.Nodes)),
		Edges:        make([]Edge, len(g.Edges)),
		CapturedAt:   g.CapturedAt,
	}
	advisories := make(map[string]AdvisoryView)

	for i, n := range g.Nodes {
		d := RelatedDependency{
			VersionKey: n.Key,
			Bundled:    n.Bundled,
			Relation:   n.Relation,
			Errors:     n.Errors,
		}
		v, err := st.FindVersion(ctx, n.Key)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return nil, dserrors.Wrap(dserrors.ErrCodeInternal, err, "load version %s", n.Key)
		default:
			if v.Detail != nil && !v.Detail.PublishedAt.IsZero() {
				t := v.Detail.PublishedAt
				d.PublishedAt = &t
			}
			d.Licenses = v.Licenses
			d.Links = v.Links
			for _, id := range v.AdvisoryKeys {
				av, ok := advisories[id]
				if !ok {
					if av, err = advisoryView(ctx, st, id); err != nil {
						return nil, err
					}
					advisories[id] = av
				}
				d.Advisories = append(d.Advisories, av)
			}
		}
		view.Dependencies[i] = d
	}
	for i, e := range g.Edges {
		view.Edges[i] = Edge{FromNode: e.FromNode, ToNode: e.ToNode, Requirement: e.Requirement}
	}
	return view, nil
}

func advisoryView(ctx context.Context, st store.AdvisoryStore, id string) (AdvisoryView, error) {
	av := AdvisoryView{ID: id}
	a, err := st.FindAdvisory(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return av, nil
	}
	if err != nil {
		return av, dserrors.Wrap(dserrors.ErrCodeInternal, err, "load advisory %s", id)
	}
	if d := a.Detail; d != nil {
		av.URL = d.URL
		av.Title = d.Title
		av.Aliases = d.Aliases
		av.CVSS3Score = d.CVSS3Score
		av.CVSS3Vector = d.CVSS3Vector
	}
	return av, nil
}
