package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depscanner/pkg/render"
)

const (
	formatDOT = "dot"
	formatSVG = "svg"
)

type graphOptions struct {
	format   string
	output   string
	detailed bool
}

func (c *CLI) graphCommand() *cobra.Command {
	var opts graphOptions

	cmd := &cobra.Command{
		Use:   "graph SYSTEM:name@version",
		Short: "Export the dependency graph of a version as DOT or SVG",
		Long: `Resolve the dependency graph of a version and write it as Graphviz DOT or a
rendered SVG. Vulnerable versions are highlighted.`,
		Example: `  depscanner graph NPM:express@4.18.2 > express.dot
  depscanner graph NPM:express@4.18.2 --format svg --detailed -o express.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.format = strings.ToLower(opts.format)
			if opts.format != formatDOT && opts.format != formatSVG {
				return fmt.Errorf("unsupported format %q: want dot or svg", opts.format)
			}
			key, err := parseCoordinate(args[0])
			if err != nil {
				return err
			}
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := c.openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			spinner := newSpinner(ctx, "Resolving "+coordinate(key)+"...")
			if opts.output != "" {
				spinner.Start()
			}
			defer spinner.Stop()

			view, err := a.svc.Graph(ctx, key.System, key.Name, key.Version)
			if err != nil {
				return err
			}
			out := []byte(render.ToDOT(view, render.Options{Detailed: opts.detailed}))
			if opts.format == formatSVG {
				spinner.Update("Rendering SVG...")
				if out, err = render.RenderSVG(ctx, string(out)); err != nil {
					return err
				}
			}

			if opts.output == "" {
				_, err := stdout.Write(out)
				return err
			}
			if err := os.WriteFile(opts.output, out, 0o644); err != nil {
				return err
			}
			spinner.StopWithSuccess(fmt.Sprintf("Wrote graph of %s (%d nodes)", coordinate(key), len(view.Dependencies)))
			printFile(opts.output)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.format, "format", formatDOT, "output format: dot or svg")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "label nodes with relation, licenses and advisories")

	return cmd
}
