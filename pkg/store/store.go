// Package store defines the persistent cache of package metadata.
//
// The store is a normalized graph: systems own dependencies, dependencies own
// versions, versions reference licenses, links and advisory keys, and each
// version may carry one captured dependency graph (an ordered node list plus
// index-based edges). Entities refer to each other by int64 surrogate ids.
//
// Every write is insert-or-fetch-existing: backends enforce uniqueness on the
// natural keys (system name, (system, name), (system, name, version), advisory
// id, advisory URL) so concurrent writers converge on one row per key.
//
// Backends:
//   - memory: mutex-guarded maps, for tests and ephemeral runs
//   - sqlstore: database/sql over SQLite or PostgreSQL
//   - mongostore: MongoDB
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// PackageKey identifies a package within an ecosystem.
type PackageKey struct {
	System string `json:"system" bson:"system"`
	Name   string `json:"name" bson:"name"`
}

func (k PackageKey) String() string { return k.System + ":" + k.Name }

// VersionKey identifies one version of a package. It is comparable and used
// as the identity of nodes during traversal.
type VersionKey struct {
	System  string `json:"system" bson:"system"`
	Name    string `json:"name" bson:"name"`
	Version string `json:"version" bson:"version"`
}

// Package returns the package part of the key.
func (k VersionKey) Package() PackageKey { return PackageKey{System: k.System, Name: k.Name} }

func (k VersionKey) String() string { return fmt.Sprintf("%s:%s@%s", k.System, k.Name, k.Version) }

// Less orders keys by system, name, then version.
func (k VersionKey) Less(o VersionKey) bool {
	if k.System != o.System {
		return k.System < o.System
	}
	if k.Name != o.Name {
		return k.Name < o.Name
	}
	return k.Version < o.Version
}

// Link is a labelled URL attached to a version (homepage, source repo, ...).
type Link struct {
	Label string `json:"label" bson:"label"`
	URL   string `json:"url" bson:"url"`
}

// VersionDetail holds publication metadata of a version.
type VersionDetail struct {
	PublishedAt time.Time `json:"publishedAt" bson:"published_at"`
	IsDefault   bool      `json:"isDefault" bson:"is_default"`
}

// Dependency is a package known to the store.
type Dependency struct {
	ID       int64
	SystemID int64
	Key      PackageKey
}

// Version is one cached version of a dependency with its associations.
type Version struct {
	ID           int64
	DependencyID int64
	Key          VersionKey
	Detail       *VersionDetail // nil until populated
	Licenses     []string
	AdvisoryKeys []string
	Links        []Link
}

// Vulnerable reports whether the version carries at least one advisory key.
func (v *Version) Vulnerable() bool { return v != nil && len(v.AdvisoryKeys) > 0 }

// AdvisoryDetail is the human-facing description of an advisory, unique by URL.
type AdvisoryDetail struct {
	ID          int64    `json:"-" bson:"-"`
	URL         string   `json:"url" bson:"url"`
	Title       string   `json:"title" bson:"title"`
	Aliases     []string `json:"aliases" bson:"aliases"`
	CVSS3Score  float64  `json:"cvss3Score" bson:"cvss3_score"`
	CVSS3Vector string   `json:"cvss3Vector" bson:"cvss3_vector"`
}

// Advisory is an advisory key with its detail, if resolved.
type Advisory struct {
	ID     string
	Detail *AdvisoryDetail
}

// GraphNode is one node of a captured dependency graph. Node 0 is the version
// that owns the graph.
type GraphNode struct {
	VersionID int64
	Key       VersionKey
	Bundled   bool
	Relation  string
	Errors    []string
}

// GraphEdge connects two nodes by their index in [Graph.Nodes].
type GraphEdge struct {
	FromNode    int
	ToNode      int
	Requirement string
}

// Graph is the captured one-hop dependency graph of a version.
type Graph struct {
	Nodes      []GraphNode
	Edges      []GraphEdge
	CapturedAt time.Time
}

// Empty reports whether no graph has been captured.
func (g *Graph) Empty() bool { return g == nil || len(g.Nodes) == 0 }

// VersionStore persists dependencies and versions.
type VersionStore interface {
	// FindDependency returns ErrNotFound when the package is unknown.
	FindDependency(ctx context.Context, key PackageKey) (*Dependency, error)
	// EnsureDependency inserts the system and dependency rows if missing.
	EnsureDependency(ctx context.Context, key PackageKey) (*Dependency, error)
	// ListVersions returns the cached versions of a package ordered by version string.
	ListVersions(ctx context.Context, key PackageKey) ([]Version, error)

	// FindVersion returns ErrNotFound when the version is unknown.
	FindVersion(ctx context.Context, key VersionKey) (*Version, error)
	// EnsureVersion inserts the version (and its system and dependency) if
	// missing. created reports whether this call inserted it.
	EnsureVersion(ctx context.Context, key VersionKey) (v *Version, created bool, err error)

	SaveVersionDetail(ctx context.Context, versionID int64, d VersionDetail) error
	SetLicenses(ctx context.Context, versionID int64, licenses []string) error
	SetLinks(ctx context.Context, versionID int64, links []Link) error
	// SetAdvisoryKeys replaces the advisory key set of a version, creating
	// keys without detail as needed.
	SetAdvisoryKeys(ctx context.Context, versionID int64, ids []string) error
}

// AdvisoryStore persists advisory keys and details.
type AdvisoryStore interface {
	// FindAdvisory returns ErrNotFound when the key is unknown. A known key
	// may have a nil Detail.
	FindAdvisory(ctx context.Context, id string) (*Advisory, error)
	// SaveAdvisory ensures the key, upserts the detail by URL and links them.
	SaveAdvisory(ctx context.Context, a Advisory) error
}

// GraphStore persists captured dependency graphs.
type GraphStore interface {
	// Graph returns the captured graph of a version, an empty graph when none
	// was captured, or ErrNotFound when the version is unknown.
	Graph(ctx context.Context, versionID int64) (*Graph, error)
	// SaveGraph writes nodes and edges in one atomic step. Unless replace is
	// set, it is a no-op (saved=false) when a graph already exists.
	SaveGraph(ctx context.Context, versionID int64, g Graph, replace bool) (saved bool, err error)
}

// Store is the full persistence surface.
type Store interface {
	VersionStore
	AdvisoryStore
	GraphStore
	Close() error
}

// Dedup returns the distinct non-empty values of ss in first-seen order.
func Dedup(ss []string) []string {
	if len(ss) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// DedupLinks returns the distinct links in first-seen order.
func DedupLinks(links []Link) []Link {
	if len(links) == 0 {
		return nil
	}
	seen := make(map[Link]bool, len(links))
	out := make([]Link, 0, len(links))
	for _, l := range links {
		if l.URL == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
