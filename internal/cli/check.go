package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) checkCommand() *cobra.Command {
	var (
		file   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "check [SYSTEM:name@version...]",
		Short: "Check versions against cached data only",
		Long: `Report whether versions are vulnerable using only what earlier scans cached.
A version is vulnerable when it, or any node of its cached dependency graph,
carries an advisory. No upstream calls are made.`,
		Example: `  depscanner check NPM:lib-a@1.0.0 NPM:lib-b@2.0.0
  depscanner check --file deps.json --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := collectKeys(args, file)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				return fmt.Errorf("no versions to check: pass coordinates or --file")
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

			results, err := a.svc.CheckVulnerable(ctx, keys)
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(stdout).Encode(results)
			}
			printCheck(keys, results)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", `JSON array of {"system","name","version"} ("-" for stdin)`)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw results as JSON")

	return cmd
}
