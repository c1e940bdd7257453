package scan

import "time"

const (
	DefaultWorkers  = 8                // Concurrent node resolutions
	DefaultMaxDepth = 50               // Maximum hops from a root
	DefaultMaxNodes = 5000             // Maximum versions visited per scan
	DefaultTimeout  = 10 * time.Minute // Per-scan deadline
)

// Options bounds a scan.
type Options struct {
	Workers  int           // Concurrent resolutions (default: 8)
	MaxDepth int           // Maximum depth to traverse (default: 50)
	MaxNodes int           // Maximum versions to visit (default: 5000)
	Timeout  time.Duration // Per-scan deadline (default: 10m)

	// RootsOnly expands only the requested versions; their dependencies are
	// resolved but not expanded further. By default every visited version
	// is expanded.
	RootsOnly bool
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = DefaultMaxNodes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return opts
}
