package errors

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// Systems lists the package ecosystems known to the metadata service.
var Systems = []string{"GO", "NPM", "CARGO", "MAVEN", "PYPI", "NUGET", "RUBYGEMS"}

// Name patterns for ecosystems with stricter rules than the generic check.
var (
	pythonNameRegex = regexp.MustCompile(`^([A-Za-z0-9]|[A-Za-z0-9][A-Za-z0-9._-]*[A-Za-z0-9])$`)
	cratesNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)
	goModuleRegex   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._/~-]*$`)
	mavenNameRegex  = regexp.MustCompile(`^[^:\s]+:[^:\s]+$`)

	advisoryKeyRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)
)

// NormalizeSystem upper-cases and trims a system name ("npm" -> "NPM").
func NormalizeSystem(system string) string {
	return strings.ToUpper(strings.TrimSpace(system))
}

// ValidateSystem checks that system names a supported ecosystem.
func ValidateSystem(system string) error {
	s := NormalizeSystem(system)
	if s == "" {
		return New(ErrCodeInvalidSystem, "system cannot be empty")
	}
	if !slices.Contains(Systems, s) {
		return New(ErrCodeInvalidSystem, "unsupported system %q (want one of %s)", system, strings.Join(Systems, ", "))
	}
	return nil
}

// ValidatePackage validates a (system, name) pair. Names are percent-encoded
// into upstream URLs, so anything resembling a path traversal is rejected
// regardless of ecosystem.
func ValidatePackage(system, name string) error {
	if err := ValidateSystem(system); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}

	var re *regexp.Regexp
	switch NormalizeSystem(system) {
	case "PYPI":
		re = pythonNameRegex
	case "CARGO":
		re = cratesNameRegex
	case "GO":
		re = goModuleRegex
	case "MAVEN":
		re = mavenNameRegex
	default:
		return nil
	}
	if !re.MatchString(name) {
		return New(ErrCodeInvalidPackage, "invalid %s package name: %q", NormalizeSystem(system), name)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPackage, "package name cannot be empty")
	}
	if len(name) > 256 {
		return New(ErrCodeInvalidPackage, "package name too long (max 256 characters)")
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return New(ErrCodeInvalidPackage, "package name contains control characters")
	}
	for _, bad := range []string{"..", "//", "\\"} {
		if strings.Contains(name, bad) {
			return New(ErrCodeInvalidPackage, "package name contains %q", bad)
		}
	}
	return nil
}

// ValidateVersion rejects empty versions and versions containing whitespace.
func ValidateVersion(version string) error {
	if version == "" {
		return New(ErrCodeInvalidInput, "version cannot be empty")
	}
	if len(version) > 128 {
		return New(ErrCodeInvalidInput, "version too long (max 128 characters)")
	}
	if strings.IndexFunc(version, func(r rune) bool { return unicode.IsControl(r) || unicode.IsSpace(r) }) >= 0 {
		return New(ErrCodeInvalidInput, "version contains invalid characters")
	}
	return nil
}

// ValidateAdvisoryKey validates an advisory identifier such as "GHSA-xxxx-xxxx-xxxx".
func ValidateAdvisoryKey(id string) error {
	if id == "" {
		return New(ErrCodeInvalidInput, "advisory key cannot be empty")
	}
	if !advisoryKeyRegex.MatchString(id) {
		return New(ErrCodeInvalidInput, "invalid advisory key: %q", id)
	}
	return nil
}
