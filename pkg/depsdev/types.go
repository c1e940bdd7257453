package depsdev

import (
	"time"

	"github.com/matzehuels/depscanner/pkg/store"
)

// Package is the response of the package endpoint.
type Package struct {
	PackageKey store.PackageKey `json:"packageKey"`
	Versions   []PackageVersion `json:"versions"`
}

// PackageVersion is one entry of [Package.Versions].
type PackageVersion struct {
	VersionKey  store.VersionKey `json:"versionKey"`
	PublishedAt time.Time        `json:"publishedAt"`
	IsDefault   bool             `json:"isDefault"`
}

// Version is the response of the version endpoint.
type Version struct {
	VersionKey   store.VersionKey `json:"versionKey"`
	PublishedAt  time.Time        `json:"publishedAt"`
	IsDefault    bool             `json:"isDefault"`
	Licenses     []string         `json:"licenses"`
	AdvisoryKeys []AdvisoryKey    `json:"advisoryKeys"`
	Links        []Link           `json:"links"`
}

// AdvisoryIDs returns the advisory ids of the version in response order.
func (v *Version) AdvisoryIDs() []string {
	if v == nil || len(v.AdvisoryKeys) == 0 {
		return nil
	}
	ids := make([]string, 0, len(v.AdvisoryKeys))
	for _, k := range v.AdvisoryKeys {
		if k.ID != "" {
			ids = append(ids, k.ID)
		}
	}
	return ids
}

// StoreLinks converts the response links to their stored form.
func (v *Version) StoreLinks() []store.Link {
	if v == nil || len(v.Links) == 0 {
		return nil
	}
	out := make([]store.Link, len(v.Links))
	for i, l := range v.Links {
		out[i] = store.Link{Label: l.Label, URL: l.URL}
	}
	return out
}

// Detail returns the publication metadata of the version.
func (v *Version) Detail() store.VersionDetail {
	return store.VersionDetail{PublishedAt: v.PublishedAt, IsDefault: v.IsDefault}
}

// AdvisoryKey identifies an advisory (GHSA, OSV, ...).
type AdvisoryKey struct {
	ID string `json:"id"`
}

// Link is a labelled URL attached to a version.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// DependencyGraph is the response of the dependencies endpoint: the resolved
// transitive graph of one version. Node 0 is the version itself.
type DependencyGraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	Error string `json:"error"`
}

// Root returns the key of node 0, or false if the graph has no nodes.
func (g *DependencyGraph) Root() (store.VersionKey, bool) {
	if g == nil || len(g.Nodes) == 0 {
		return store.VersionKey{}, false
	}
	return g.Nodes[0].VersionKey, true
}

// Relations of a node to the root of its graph. Node 0 is always RelationSelf.
const (
	RelationSelf     = "SELF"
	RelationDirect   = "DIRECT"
	RelationIndirect = "INDIRECT"
)

// Node is one resolved version in a [DependencyGraph].
type Node struct {
	VersionKey store.VersionKey `json:"versionKey"`
	Bundled    bool             `json:"bundled"`
	Relation   string           `json:"relation"`
	Errors     []string         `json:"errors"`
}

// Edge connects two nodes by index.
type Edge struct {
	FromNode    int    `json:"fromNode"`
	ToNode      int    `json:"toNode"`
	Requirement string `json:"requirement"`
}

// Advisory is the response of the advisory endpoint.
type Advisory struct {
	AdvisoryKey AdvisoryKey `json:"advisoryKey"`
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	Aliases     []string    `json:"aliases"`
	CVSS3Score  float64     `json:"cvss3Score"`
	CVSS3Vector string      `json:"cvss3Vector"`
}

// StoreAdvisory converts the response to its stored form.
// Details are unique by URL, so an advisory without one gets a URL derived
// from its id instead of sharing the empty-URL row.
func (a *Advisory) StoreAdvisory() store.Advisory {
	url := a.URL
	if url == "" {
		url = "urn:advisory:" + a.AdvisoryKey.ID
	}
	return store.Advisory{
		ID: a.AdvisoryKey.ID,
		Detail: &store.AdvisoryDetail{
			URL:         url,
			Title:       a.Title,
			Aliases:     a.Aliases,
			CVSS3Score:  a.CVSS3Score,
			CVSS3Vector: a.CVSS3Vector,
		},
	}
}
