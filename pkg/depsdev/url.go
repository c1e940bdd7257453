package depsdev

import (
	"net/url"
	"strings"

	"github.com/matzehuels/depscanner/pkg/errors"
)

// DefaultBaseURL is the public deps.dev v3alpha endpoint.
const DefaultBaseURL = "https://api.deps.dev/v3alpha"

const (
	packagePath      = "/systems/{system}/packages/{name}"
	versionPath      = packagePath + "/versions/{version}"
	dependenciesPath = versionPath + ":dependencies"
	advisoryPath     = "/advisories/{key}"
)

var doubleEncoded = strings.NewReplacer("%2540", "%40", "%252F", "%2F")

// EncodeName percent-encodes a package name for use as one path segment.
// "@" and "/" are escaped, ":" is kept literal, and input that is already
// encoded comes back unchanged:
//
//	EncodeName("@types/node")     // "%40types%2Fnode"
//	EncodeName("%40types%2Fnode") // "%40types%2Fnode"
//	EncodeName("org.slf4j:slf4j") // "org.slf4j:slf4j"
func EncodeName(name string) string {
	s := url.PathEscape(name)
	s = strings.ReplaceAll(s, "@", "%40")
	return doubleEncoded.Replace(s)
}

// expand substitutes {placeholders} in tmpl with encoded values and rejects
// the result if any template syntax survived.
func expand(base, tmpl string, vars map[string]string) (string, error) {
	path := tmpl
	for k, v := range vars {
		path = strings.ReplaceAll(path, "{"+k+"}", EncodeName(v))
	}
	u := strings.TrimRight(base, "/") + path
	if strings.ContainsAny(u, "{$") {
		return "", errors.New(errors.ErrCodeInvalidURL, "unexpanded url %q", u)
	}
	return u, nil
}
