package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/depscanner/pkg/depsdev"
	dserrors "github.com/matzehuels/depscanner/pkg/errors"
	"github.com/matzehuels/depscanner/pkg/observability"
	"github.com/matzehuels/depscanner/pkg/resolve"
	"github.com/matzehuels/depscanner/pkg/store"
)

// VersionResolver resolves the current metadata of one version.
type VersionResolver interface {
	Resolve(ctx context.Context, key store.VersionKey) (*depsdev.Version, error)
}

// GraphResolver resolves the direct dependency graph of one version.
type GraphResolver interface {
	Resolve(ctx context.Context, key store.VersionKey) (*resolve.GraphView, error)
}

// Engine runs scans. It holds no per-scan state and is safe for concurrent use.
type Engine struct {
	versions VersionResolver
	graphs   GraphResolver
	opts     Options
	logger   *log.Logger
}

// NewEngine creates an engine. A nil logger uses log.Default().
func NewEngine(versions VersionResolver, graphs GraphResolver, opts Options, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{versions: versions, graphs: graphs, opts: opts.WithDefaults(), logger: logger}
}

// Scan walks the closure of roots under a new scan id.
func (e *Engine) Scan(ctx context.Context, roots []store.VersionKey) (*Report, error) {
	return e.ScanWithID(ctx, "", roots)
}

// ScanWithID walks the closure of roots. An empty scanID is replaced by a
// random one. When the scan is cancelled or times out, the partial report
// is returned together with the context error. It holds every advisory found
// before the deadline and is marked Truncated.
func (e *Engine) ScanWithID(ctx context.Context, scanID string, roots []store.VersionKey) (*Report, error) {
	if scanID == "" {
		scanID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	hooks := observability.Scan()
	hooks.OnScanStart(ctx, scanID, len(roots))
	e.logger.Info("scan started", "scan", scanID, "roots", len(roots))
	start := time.Now()

	s := &scanner{
		ctx:     ctx,
		engine:  e,
		roots:   make(map[store.VersionKey]bool, len(roots)),
		visited: make(map[store.VersionKey]bool),
		found:   make(findings),
		jobs:    make(chan job),
		results: make(chan result, e.opts.Workers),
	}
	canonical := make([]store.VersionKey, len(roots))
	for i, r := range roots {
		canonical[i] = resolve.CanonicalKey(r)
		s.roots[canonical[i]] = true
	}
	err := s.run(canonical)

	report := &Report{
		ScanID:     scanID,
		Vulnerable: s.found.sorted(),
		Visited:    s.completed,
		Failed:     s.failed,
		Truncated:  s.truncated || err != nil,
		Duration:   time.Since(start),
	}
	hooks.OnScanComplete(ctx, scanID, observability.ScanStats{
		Visited:    report.Visited,
		Vulnerable: len(report.Vulnerable),
		Failed:     report.Failed,
	}, report.Duration, err)

	if err != nil {
		e.logger.Warn("scan aborted", "scan", scanID, "visited", report.Visited, "err", err)
		return report, err
	}
	e.logger.Info("scan complete", "scan", scanID, "visited", report.Visited,
		"vulnerable", len(report.Vulnerable), "failed", report.Failed, "duration", report.Duration.Round(time.Millisecond))
	return report, nil
}

// scanner is the state of one scan. Workers resolve nodes and record
// findings as soon as a version resolves, so a deadline keeps what was found.
// The collector (the goroutine in run) owns the visited set and the queue.
type scanner struct {
	ctx    context.Context
	engine *Engine
	roots  map[store.VersionKey]bool

	jobs    chan job
	results chan result
	wg      sync.WaitGroup

	mu    sync.Mutex
	found findings

	queue     []job
	pending   int
	visited   map[store.VersionKey]bool
	completed int
	failed    int
	truncated bool
}

type job struct {
	key   store.VersionKey
	depth int
}

type result struct {
	job
	children []store.VersionKey
	err      error
}

func (s *scanner) run(roots []store.VersionKey) error {
	for range s.engine.opts.Workers {
		s.wg.Add(1)
		go s.worker()
	}
	defer func() {
		close(s.jobs)
		s.wg.Wait()
	}()

	for _, r := range roots {
		s.enqueue(job{key: r})
	}
	for s.pending > 0 {
		if err := s.ctx.Err(); err != nil {
			return err
		}
		var (
			send chan<- job
			next job
		)
		if len(s.queue) > 0 {
			send, next = s.jobs, s.queue[0]
		}
		select {
		case send <- next:
			s.queue = s.queue[1:]
		case r := <-s.results:
			s.pending--
			s.handle(r)
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	}
	return nil
}

func (s *scanner) enqueue(j job) {
	if s.visited[j.key] {
		return
	}
	if len(s.visited) >= s.engine.opts.MaxNodes {
		if !s.truncated {
			s.engine.logger.Warn("node limit reached, closure truncated", "limit", s.engine.opts.MaxNodes)
		}
		s.truncated = true
		return
	}
	s.visited[j.key] = true
	s.pending++
	s.queue = append(s.queue, j)
}

func (s *scanner) handle(r result) {
	s.completed++
	if r.err != nil && s.ctx.Err() == nil {
		s.failed++
	}
	for _, child := range r.children {
		s.enqueue(job{key: child, depth: r.depth + 1})
	}
}

func (s *scanner) worker() {
	defer s.wg.Done()
	for j := range s.jobs {
		r := s.visit(j)
		select {
		case s.results <- r:
		case <-s.ctx.Done():
		}
	}
}

// visit resolves one version and, when it is to be expanded, its direct
// dependencies. A failed version is still expanded.
func (s *scanner) visit(j job) result {
	e := s.engine
	r := result{job: j}
	start := time.Now()

	v, err := e.versions.Resolve(s.ctx, j.key)
	observability.Scan().OnNode(s.ctx, j.key.System, time.Since(start), err)
	switch {
	case err != nil:
		r.err = err
		if s.ctx.Err() != nil {
			return r
		}
		e.logger.Warn("version not resolved", "version", j.key, "err", err)
	default:
		if ids := v.AdvisoryIDs(); len(ids) > 0 {
			e.logger.Debug("advisories found", "version", j.key, "count", len(ids))
			s.record(j.key, ids)
		}
	}

	if !s.expand(j) {
		return r
	}
	g, err := e.graphs.Resolve(s.ctx, j.key)
	switch {
	case err == nil:
		for _, d := range g.Dependencies {
			if d.VersionKey != j.key && d.Relation != depsdev.RelationSelf {
				r.children = append(r.children, d.VersionKey)
			}
		}
	case dserrors.Is(err, dserrors.ErrCodeNoDependencyInformation):
		e.logger.Debug("no dependency graph", "version", j.key)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		e.logger.Warn("dependency graph not resolved", "version", j.key, "err", err)
	}
	return r
}

func (s *scanner) record(key store.VersionKey, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.found.add(key, ids)
}

func (s *scanner) expand(j job) bool {
	if j.depth >= s.engine.opts.MaxDepth {
		return false
	}
	return !s.engine.opts.RootsOnly || s.roots[j.key]
}
