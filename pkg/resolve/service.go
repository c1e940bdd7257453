package resolve

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscanner/pkg/depsdev"
	"github.com/matzehuels/depscanner/pkg/errors"
	"github.com/matzehuels/depscanner/pkg/store"
)

// Options configures a [Service].
type Options struct {
	// GraphTTL is the age after which a captured graph is refetched. Zero
	// keeps graphs forever.
	GraphTTL time.Duration
	Logger   *log.Logger
}

// Service wires the four resolvers over one client and one store.
type Service struct {
	Advisories *AdvisoryResolver
	Packages   *PackageResolver
	Versions   *VersionResolver
	Graphs     *GraphResolver
}

// NewService creates the resolvers.
func NewService(api depsdev.API, st store.Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	advisories := NewAdvisoryResolver(api, st, logger)
	versions := NewVersionResolver(api, st, advisories, logger)
	return &Service{
		Advisories: advisories,
		Packages:   NewPackageResolver(api, st, logger),
		Versions:   versions,
		Graphs:     NewGraphResolver(api, st, versions, opts.GraphTTL, logger),
	}
}

// PackageKey validates and normalizes user input into a package key. The
// name is canonicalized with [CanonicalName].
func PackageKey(system, name string) (store.PackageKey, error) {
	system = errors.NormalizeSystem(system)
	name = strings.TrimSpace(name)
	if err := errors.ValidatePackage(system, name); err != nil {
		return store.PackageKey{}, err
	}
	return store.PackageKey{System: system, Name: CanonicalName(system, name)}, nil
}

var pythonSeparators = regexp.MustCompile(`[-_.]+`)

// CanonicalName returns the name deps.dev reports for a package. PyPI names
// are normalized as in PEP 503 ("Django_Rest" -> "django-rest"); the other
// systems keep the name as given.
func CanonicalName(system, name string) string {
	if system == "PYPI" {
		return pythonSeparators.ReplaceAllString(strings.ToLower(name), "-")
	}
	return name
}

// CanonicalKey applies [CanonicalName] to an already validated key.
func CanonicalKey(k store.VersionKey) store.VersionKey {
	k.Name = CanonicalName(k.System, k.Name)
	return k
}

// VersionKey validates and normalizes user input into a version key.
func VersionKey(system, name, version string) (store.VersionKey, error) {
	pk, err := PackageKey(system, name)
	if err != nil {
		return store.VersionKey{}, err
	}
	version = strings.TrimSpace(version)
	if err := errors.ValidateVersion(version); err != nil {
		return store.VersionKey{}, err
	}
	return store.VersionKey{System: pk.System, Name: pk.Name, Version: version}, nil
}

// Package returns the versions of a package.
func (s *Service) Package(ctx context.Context, system, name string) (*depsdev.Package, error) {
	key, err := PackageKey(system, name)
	if err != nil {
		return nil, err
	}
	return s.Packages.Resolve(ctx, key)
}

// Version returns the current metadata of one version.
func (s *Service) Version(ctx context.Context, system, name, version string) (*depsdev.Version, error) {
	key, err := VersionKey(system, name, version)
	if err != nil {
		return nil, err
	}
	return s.Versions.Resolve(ctx, key)
}

// Graph returns the dependency graph of one version.
func (s *Service) Graph(ctx context.Context, system, name, version string) (*GraphView, error) {
	key, err := VersionKey(system, name, version)
	if err != nil {
		return nil, err
	}
	return s.Graphs.Resolve(ctx, key)
}

// Advisory returns one advisory.
func (s *Service) Advisory(ctx context.Context, id string) (*depsdev.Advisory, error) {
	id = strings.TrimSpace(id)
	if err := errors.ValidateAdvisoryKey(id); err != nil {
		return nil, err
	}
	return s.Advisories.Resolve(ctx, id)
}

// CheckVulnerable validates the keys and runs [VersionResolver.CheckVulnerable].
func (s *Service) CheckVulnerable(ctx context.Context, keys []store.VersionKey) ([]VulnCheckResult, error) {
	normalized := make([]store.VersionKey, len(keys))
	for i, k := range keys {
		nk, err := VersionKey(k.System, k.Name, k.Version)
		if err != nil {
			return nil, err
		}
		normalized[i] = nk
	}
	return s.Versions.CheckVulnerable(ctx, normalized)
}
