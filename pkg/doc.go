// Package pkg provides the core libraries for depscanner.
//
// # Overview
//
// depscanner resolves package metadata from deps.dev, keeps it in a
// persistent store, and walks dependency graphs to find versions affected by
// security advisories. The pkg directory is organized into four areas:
//
//  1. [depsdev] - Upstream client for the deps.dev v3alpha API
//  2. [store] - Persistent cache of packages, versions, graphs and advisories
//  3. [resolve] and [scan] - Cache-first resolvers and the graph walk
//  4. [api] and [events] - Synchronous HTTP queries and asynchronous scans
//
// # Architecture
//
// The typical data flow:
//
//	deps.dev API
//	     ↓
//	[depsdev] client (retries, circuit breaker, response cache)
//	     ↓
//	[resolve] resolvers (store first, upstream on miss)
//	     ↓
//	[scan] engine (bounded worker pool over the dependency closure)
//	     ↓
//	report / AdvisoryFound events / HTTP responses
//
// # Quick Start
//
//	import (
//	    "github.com/matzehuels/depscanner/pkg/depsdev"
//	    "github.com/matzehuels/depscanner/pkg/resolve"
//	    "github.com/matzehuels/depscanner/pkg/scan"
//	    "github.com/matzehuels/depscanner/pkg/store/memory"
//	)
//
//	client := depsdev.NewClient(depsdev.Options{})
//	svc := resolve.NewService(client, memory.New(), resolve.Options{})
//	engine := scan.NewEngine(svc.Versions, svc.Graphs, scan.Options{}, nil)
//
//	report, err := engine.Scan(ctx, keys)
//
// # Supporting packages
//
// [cache] stores raw upstream responses (file, memory or Redis). [config]
// loads TOML, .env and environment settings. [errors] defines the structured
// error codes every layer returns. [render] draws graphs as DOT or SVG.
// [observability] exposes metric hooks, implemented by prommetrics.
//
// [depsdev]: https://pkg.go.dev/github.com/matzehuels/depscanner/pkg/depsdev
// [store]: https://pkg.go.dev/github.com/matzehuels/depscanner/pkg/store
// [resolve]: https://pkg.go.dev/github.com/matzehuels/depscanner/pkg/resolve
// [scan]: https://pkg.go.dev/github.com/matzehuels/depscanner/pkg/scan
// [api]: https://pkg.go.dev/github.com/matzehuels/depscanner/pkg/api
// [events]: https://pkg.go.dev/github.com/matzehuels/depscanner/pkg/events
// [cache]: https://pkg.go.dev/github.com/matzehuels/depscanner/pkg/cache
// [config]: https://pkg.go.dev/github.com/matzehuels/depscanner/pkg/config
// [errors]: https://pkg.go.dev/github.com/matzehuels/depscanner/pkg/errors
// [render]: https://pkg.go.dev/github.com/matzehuels/depscanner/pkg/render
// [observability]: https://pkg.go.dev/github.com/matzehuels/depscanner/pkg/observability
package pkg
