// Package cli implements the depscanner command-line interface.
//
// The same binary runs the long-lived service (serve) and one-shot queries
// against the configured store and deps.dev (scan, check, lookup, graph).
//
// # Commands
//
//   - serve: HTTP query API plus, when an event backend is configured, the
//     scan request listener
//   - scan: resolve the dependency closure of versions and report advisories
//   - check: answer from cached data only whether versions are vulnerable
//   - lookup: resolve a single package, version, graph or advisory
//   - graph: export the dependency graph of a version as DOT or SVG
//   - cache: manage the upstream response cache
//   - version: print build information
//
// Every command reads the layered configuration described in package config;
// --config names the TOML file and --verbose forces debug logging.
package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/depscanner/pkg/buildinfo"
	"github.com/matzehuels/depscanner/pkg/config"
	"github.com/matzehuels/depscanner/pkg/depsdev"
)

// appName is the application name used for display and cache directories.
const appName = "depscanner"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	verbose    bool

	// api replaces the deps.dev HTTP client when set.
	api depsdev.API
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "depscanner resolves dependency graphs and finds vulnerable versions",
		Long:          `depscanner resolves package versions and their transitive dependency graphs through deps.dev, caches them in a local store, and reports the security advisories found anywhere in a project's dependency closure.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to a depscanner.toml file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.scanCommand())
	root.AddCommand(c.checkCommand())
	root.AddCommand(c.lookupCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.versionCommand())

	return root
}

// loadConfig reads the configuration and applies its log level unless
// --verbose was given.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.verbose {
		c.SetLogLevel(LogDebug)
	} else if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		c.SetLogLevel(level)
	}
	return cfg, nil
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the response cache directory: the configured one, or
// the XDG cache home (~/.cache/depscanner/).
func cacheDir(cfg *config.Config) (string, error) {
	if cfg != nil && cfg.Cache.Dir != "" {
		return cfg.Cache.Dir, nil
	}
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
