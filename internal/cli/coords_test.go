package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matzehuels/depscanner/pkg/errors"
	"github.com/matzehuels/depscanner/pkg/store"
)

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		in   string
		want store.VersionKey
		code errors.Code
	}{
		{in: "NPM:express@4.18.2", want: store.VersionKey{System: "NPM", Name: "express", Version: "4.18.2"}},
		{in: "npm:@types/node@20.1.0", want: store.VersionKey{System: "NPM", Name: "@types/node", Version: "20.1.0"}},
		{in: "MAVEN:org.slf4j:slf4j-api@2.0.9", want: store.VersionKey{System: "MAVEN", Name: "org.slf4j:slf4j-api", Version: "2.0.9"}},
		{in: "GO:github.com/gin-gonic/gin@v1.9.1", want: store.VersionKey{System: "GO", Name: "github.com/gin-gonic/gin", Version: "v1.9.1"}},
		{in: " pypi:requests@2.31.0 ", want: store.VersionKey{System: "PYPI", Name: "requests", Version: "2.31.0"}},
		{in: "express@4.18.2", code: errors.ErrCodeInvalidInput},
		{in: "NPM:express", code: errors.ErrCodeInvalidInput},
		{in: "NPM:express@", code: errors.ErrCodeInvalidInput},
		{in: "NPM:@4.18.2", code: errors.ErrCodeInvalidInput},
		{in: "HASKELL:lens@5.2", code: errors.ErrCodeInvalidSystem},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseCoordinate(tt.in)
			if tt.code != "" {
				if !errors.Is(err, tt.code) {
					t.Errorf("parseCoordinate(%q) error = %v, want code %s", tt.in, err, tt.code)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCoordinate(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseCoordinate(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParsePackageCoordinate(t *testing.T) {
	got, err := parsePackageCoordinate("cargo:serde")
	if err != nil {
		t.Fatal(err)
	}
	if want := (store.PackageKey{System: "CARGO", Name: "serde"}); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if _, err := parsePackageCoordinate("serde"); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("missing system: err = %v", err)
	}
}

func TestCollectKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deps.json")
	body := `[
		{"system": "npm", "name": "lib-b", "version": "2.0.0"},
		{"system": "CARGO", "name": "serde", "version": "1.0.190"}
	]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	keys, err := collectKeys([]string{"NPM:lib-a@1.0.0"}, path)
	if err != nil {
		t.Fatalf("collectKeys: %v", err)
	}
	want := []store.VersionKey{
		{System: "NPM", Name: "lib-a", Version: "1.0.0"},
		{System: "NPM", Name: "lib-b", Version: "2.0.0"},
		{System: "CARGO", Name: "serde", Version: "1.0.190"},
	}
	if len(keys) != len(want) {
		t.Fatalf("keys = %+v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %+v, want %+v", i, keys[i], want[i])
		}
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`[{"system": "NPM", "name": "x"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := collectKeys(nil, bad); err == nil {
		t.Error("expected an error for an entry without version")
	}
	if _, err := collectKeys(nil, filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
