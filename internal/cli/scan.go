package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/matzehuels/depscanner/pkg/config"
	"github.com/matzehuels/depscanner/pkg/depsdev"
	"github.com/matzehuels/depscanner/pkg/events"
	"github.com/matzehuels/depscanner/pkg/scan"
	"github.com/matzehuels/depscanner/pkg/store"
)

type scanOptions struct {
	file        string
	workers     int
	maxDepth    int
	maxNodes    int
	timeout     time.Duration
	rootsOnly   bool
	asJSON      bool
	interactive bool

	publish bool
	project string
	email   string
}

func (c *CLI) scanCommand() *cobra.Command {
	var opts scanOptions

	cmd := &cobra.Command{
		Use:   "scan [SYSTEM:name@version...]",
		Short: "Scan the dependency closure of versions for advisories",
		Long: `Resolve every version reachable from the given roots through deps.dev,
cache the results, and report each version that carries security advisories.

With --publish, the roots are sent as a scan request to the configured event
backend instead, for a running "depscanner serve" to process.`,
		Example: `  depscanner scan NPM:express@4.18.2
  depscanner scan GO:github.com/gin-gonic/gin@v1.9.1 PYPI:requests@2.31.0
  depscanner scan --file deps.json --json
  depscanner scan --publish --project web NPM:express@4.18.2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := collectKeys(args, opts.file)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				return fmt.Errorf("no versions to scan: pass coordinates or --file")
			}
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if opts.publish {
				return c.publishScan(cmd.Context(), cfg, keys, opts)
			}
			return c.runScan(cmd.Context(), cfg, keys, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", `JSON array of {"system","name","version"} ("-" for stdin)`)
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "concurrent resolutions (overrides scan.workers)")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", 0, "maximum hops from a root (overrides scan.max_depth)")
	cmd.Flags().IntVar(&opts.maxNodes, "max-nodes", 0, "maximum versions visited (overrides scan.max_nodes)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "scan deadline (overrides scan.timeout)")
	cmd.Flags().BoolVar(&opts.rootsOnly, "roots-only", false, "expand only the given versions, not their dependencies")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the report as JSON")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "browse findings interactively")
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "send a scan request to the event backend instead of scanning")
	cmd.Flags().StringVar(&opts.project, "project", "cli", "project name for --publish")
	cmd.Flags().StringVar(&opts.email, "email", "", "requester email for --publish")

	return cmd
}

func (o scanOptions) apply(sc *config.ScanConfig) {
	if o.workers > 0 {
		sc.Workers = o.workers
	}
	if o.maxDepth > 0 {
		sc.MaxDepth = o.maxDepth
	}
	if o.maxNodes > 0 {
		sc.MaxNodes = o.maxNodes
	}
	if o.timeout > 0 {
		sc.Timeout = o.timeout
	}
	if o.rootsOnly {
		sc.ExpandAll = false
	}
}

func (c *CLI) runScan(ctx context.Context, cfg *config.Config, keys []store.VersionKey, opts scanOptions) error {
	opts.apply(&cfg.Scan)

	a, err := c.openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	spinner := newSpinner(ctx, fmt.Sprintf("Scanning %d root versions...", len(keys)))
	if !opts.asJSON {
		spinner.Start()
	}
	prog := newProgress(c.Logger)
	report, err := a.engine.Scan(ctx, keys)
	spinner.Stop()
	if err != nil {
		return err
	}
	prog.done("scan finished", "visited", report.Visited, "vulnerable", len(report.Vulnerable))

	switch {
	case opts.asJSON:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case opts.interactive && !report.Clean():
		return browseReport(ctx, a, report)
	default:
		printReport(report)
		if !report.Clean() {
			first := report.Vulnerable[0]
			printNextStep("Inspect an advisory", "depscanner lookup advisory "+first.AdvisoryKeys[0])
		}
		return nil
	}
}

// browseReport loads the advisories of a report and opens the result browser.
func browseReport(ctx context.Context, a *app, report *scan.Report) error {
	details := make(map[string]*depsdev.Advisory)
	for _, v := range report.Vulnerable {
		for _, id := range v.AdvisoryKeys {
			if _, ok := details[id]; ok {
				continue
			}
			adv, err := a.svc.Advisory(ctx, id)
			if err != nil {
				a.logger.Debug("advisory unavailable", "id", id, "err", err)
			}
			details[id] = adv
		}
	}
	_, err := tea.NewProgram(NewReportModel(report, details), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// publishScan sends keys as a scan request for a running service.
func (c *CLI) publishScan(ctx context.Context, cfg *config.Config, keys []store.VersionKey, opts scanOptions) error {
	if cfg.Events.Backend != config.BackendRedis {
		return fmt.Errorf("--publish needs the redis event backend, have %q", cfg.Events.Backend)
	}
	bus, err := openBus(ctx, cfg, c.Logger.WithPrefix("events"))
	if err != nil {
		return err
	}
	defer bus.Close()

	req := events.ScanRequested{
		ScanID:    uuid.NewString(),
		UserEmail: opts.email,
		Project: events.Project{
			ID:        uuid.NewString(),
			Name:      opts.project,
			CreatedAt: time.Now().UTC(),
		},
		Dependencies: keys,
	}
	if err := events.PublishJSON(ctx, bus, events.TopicScanRequested, req); err != nil {
		return fmt.Errorf("publish scan request: %w", err)
	}
	printSuccess("Requested scan %s of %d versions", req.ScanID, len(keys))
	printDetail("topic %s", events.TopicScanRequested)
	return nil
}
