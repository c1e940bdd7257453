// Package buildinfo reports the version depscanner was built from.
//
// Version, Commit and Date are stamped at link time:
//
//	go build -ldflags "-X github.com/matzehuels/depscanner/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/matzehuels/depscanner/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/matzehuels/depscanner/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/depscanner
package buildinfo

import (
	"fmt"
	"runtime"
)

// Stamped by the linker.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info is a snapshot of the build metadata, shaped for JSON output.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Get returns the build metadata of the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// UserAgent is sent on every upstream request, e.g. "depscanner/v1.2.0".
func UserAgent() string {
	return "depscanner/" + Version
}

// Template returns the version template for cobra's --version flag.
func Template() string {
	return fmt.Sprintf("{{.Name}} %s (commit %s, built %s)\n", Version, Commit, Date)
}
