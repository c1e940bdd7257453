package scan

import (
	"maps"
	"slices"
	"time"

	"github.com/matzehuels/depscanner/pkg/store"
)

// VulnerableDependency is a version reached by the scan with the advisory
// keys it carries.
type VulnerableDependency struct {
	Dependency   store.VersionKey `json:"dependency"`
	AdvisoryKeys []string         `json:"advisoryKeys"`
}

// Report is the outcome of one scan.
type Report struct {
	ScanID     string                 `json:"scanId"`
	Vulnerable []VulnerableDependency `json:"vulnerable"`
	Visited    int                    `json:"visited"`
	Failed     int                    `json:"failed"`
	Truncated  bool                   `json:"truncated,omitempty"`
	Duration   time.Duration          `json:"duration"`
}

// Clean reports whether no advisory was found.
func (r *Report) Clean() bool { return len(r.Vulnerable) == 0 }

// findings merges advisory keys by version.
type findings map[store.VersionKey]map[string]struct{}

func (f findings) add(key store.VersionKey, ids []string) {
	if len(ids) == 0 {
		return
	}
	set, ok := f[key]
	if !ok {
		set = make(map[string]struct{}, len(ids))
		f[key] = set
	}
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
}

// sorted returns the findings ordered by version key, each with sorted keys.
func (f findings) sorted() []VulnerableDependency {
	out := make([]VulnerableDependency, 0, len(f))
	for key, set := range f {
		if len(set) == 0 {
			continue
		}
		out = append(out, VulnerableDependency{
			Dependency:   key,
			AdvisoryKeys: slices.Sorted(maps.Keys(set)),
		})
	}
	slices.SortFunc(out, func(a, b VulnerableDependency) int {
		switch {
		case a.Dependency.Less(b.Dependency):
			return -1
		case b.Dependency.Less(a.Dependency):
			return 1
		}
		return 0
	})
	return out
}
