package events

import (
	"strings"

	"github.com/package-url/packageurl-go"

	"github.com/matzehuels/depscanner/pkg/store"
)

var purlTypes = map[string]string{
	"NPM":      packageurl.TypeNPM,
	"PYPI":     packageurl.TypePyPi,
	"GO":       packageurl.TypeGolang,
	"MAVEN":    packageurl.TypeMaven,
	"CARGO":    packageurl.TypeCargo,
	"NUGET":    packageurl.TypeNuget,
	"RUBYGEMS": packageurl.TypeGem,
}

// PURL returns the package URL of key, or "" for an unknown system.
//
//	NPM lodash 4.17.21              -> pkg:npm/lodash@4.17.21
//	MAVEN org.slf4j:slf4j-api 2.0.9 -> pkg:maven/org.slf4j/slf4j-api@2.0.9
func PURL(key store.VersionKey) string {
	typ, ok := purlTypes[key.System]
	if !ok || key.Name == "" {
		return ""
	}
	namespace, name := "", key.Name
	switch typ {
	case packageurl.TypeMaven:
		if i := strings.Index(name, ":"); i >= 0 {
			namespace, name = name[:i], name[i+1:]
		}
	case packageurl.TypeNPM, packageurl.TypeGolang:
		if i := strings.LastIndex(name, "/"); i >= 0 {
			namespace, name = name[:i], name[i+1:]
		}
	case packageurl.TypePyPi:
		name = strings.ToLower(strings.ReplaceAll(name, "_", "-"))
	}
	return packageurl.NewPackageURL(typ, namespace, name, key.Version, nil, "").ToString()
}
