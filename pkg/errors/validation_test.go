package errors

import (
	"strings"
	"testing"
)

func TestValidateSystem(t *testing.T) {
	tests := []struct {
		input string
		want  Code
	}{
		{"NPM", ""},
		{"npm", ""},
		{" pypi ", ""},
		{"RubyGems", ""},
		{"", ErrCodeInvalidSystem},
		{"COBOL", ErrCodeInvalidSystem},
		{"HASKELL", ErrCodeInvalidSystem},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := GetCode(ValidateSystem(tt.input)); got != tt.want {
				t.Errorf("ValidateSystem(%q) code = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidatePackage(t *testing.T) {
	tests := []struct {
		name   string
		system string
		pkg    string
		want   Code
	}{
		{"npm plain", "NPM", "express", ""},
		{"npm scoped", "NPM", "@babel/core", ""},
		{"pypi dotted", "PYPI", "zope.interface", ""},
		{"cargo", "CARGO", "serde_json", ""},
		{"go module", "GO", "github.com/go-chi/chi/v5", ""},
		{"maven coordinates", "MAVEN", "org.apache.commons:commons-text", ""},
		{"nuget", "NUGET", "Newtonsoft.Json", ""},

		{"unknown system", "COBOL", "x", ErrCodeInvalidSystem},
		{"empty name", "NPM", "", ErrCodeInvalidPackage},
		{"too long", "NPM", strings.Repeat("a", 300), ErrCodeInvalidPackage},
		{"traversal", "NPM", "foo/../bar", ErrCodeInvalidPackage},
		{"double slash", "GO", "example.com//mod", ErrCodeInvalidPackage},
		{"backslash", "NPM", `foo\bar`, ErrCodeInvalidPackage},
		{"control char", "NPM", "foo\x01bar", ErrCodeInvalidPackage},
		{"pypi trailing dash", "PYPI", "requests-", ErrCodeInvalidPackage},
		{"cargo leading digit", "CARGO", "1serde", ErrCodeInvalidPackage},
		{"go space", "GO", "example.com/my mod", ErrCodeInvalidPackage},
		{"maven without group", "MAVEN", "commons-text", ErrCodeInvalidPackage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(ValidatePackage(tt.system, tt.pkg)); got != tt.want {
				t.Errorf("ValidatePackage(%q, %q) code = %q, want %q", tt.system, tt.pkg, got, tt.want)
			}
		})
	}
}

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"1.0.0", false},
		{"v0.0.0-20240606120523-5a60cdf6a761", false},
		{"2.0.0-beta.1+build.5", false},
		{"", true},
		{"1.0 .0", true},
		{"1.0.0\n", true},
		{strings.Repeat("1", 129), true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateVersion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateVersion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidInput) {
				t.Errorf("code = %q, want INVALID_INPUT", GetCode(err))
			}
		})
	}
}

func TestValidateAdvisoryKey(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"GHSA-jf85-cpcp-j695", false},
		{"CVE-2021-44228", false},
		{"PYSEC-2021-19", false},
		{"", true},
		{"-GHSA", true},
		{"GHSA/../etc", true},
		{"GHSA 1", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateAdvisoryKey(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAdvisoryKey(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
