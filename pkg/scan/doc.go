// Package scan walks the transitive dependency closure of a set of versions
// and aggregates the advisories found on it.
//
// An [Engine] starts from a project's direct dependencies. Every reachable
// version is resolved once per scan (the visited set is private to the run),
// so cycles and diamonds terminate. Findings are attributed to the version
// that carries the advisory, and merged by version key.
//
//	engine := scan.NewEngine(svc.Versions, svc.Graphs, scan.Options{}, logger)
//	report, err := engine.Scan(ctx, roots)
//	if report.Clean() { ... }
//
// A [Listener] connects the engine to an [events.Bus]: it consumes
// [events.ScanRequested] and publishes [events.AdvisoryFound] when a scan
// finds anything.
package scan
