package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/matzehuels/depscanner/pkg/errors"
	"github.com/matzehuels/depscanner/pkg/resolve"
	"github.com/matzehuels/depscanner/pkg/store"
)

// parseCoordinate parses SYSTEM:name@version, e.g. NPM:@types/node@20.1.0
// or MAVEN:org.slf4j:slf4j-api@2.0.9. The system ends at the first colon and
// the version starts after the last "@", so scoped and Maven names survive.
func parseCoordinate(s string) (store.VersionKey, error) {
	system, rest, ok := strings.Cut(strings.TrimSpace(s), ":")
	at := strings.LastIndex(rest, "@")
	if !ok || at <= 0 || at == len(rest)-1 {
		return store.VersionKey{}, errors.New(errors.ErrCodeInvalidInput,
			"invalid coordinate %q: want SYSTEM:name@version", s)
	}
	return resolve.VersionKey(system, rest[:at], rest[at+1:])
}

// parsePackageCoordinate parses SYSTEM:name.
func parsePackageCoordinate(s string) (store.PackageKey, error) {
	system, name, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return store.PackageKey{}, errors.New(errors.ErrCodeInvalidInput,
			"invalid package %q: want SYSTEM:name", s)
	}
	return resolve.PackageKey(system, name)
}

// collectKeys parses args and, when path is set, the JSON array of
// {"system","name","version"} objects in that file ("-" reads stdin).
func collectKeys(args []string, path string) ([]store.VersionKey, error) {
	var keys []store.VersionKey
	for _, a := range args {
		k, err := parseCoordinate(a)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if path == "" {
		return keys, nil
	}

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var listed []store.VersionKey
	if err := json.NewDecoder(r).Decode(&listed); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for _, l := range listed {
		k, err := resolve.VersionKey(l.System, l.Name, l.Version)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}
