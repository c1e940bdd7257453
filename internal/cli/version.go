package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depscanner/pkg/buildinfo"
)

func (c *CLI) versionCommand() *cobra.Command {
	var short, asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildinfo.Get()
			switch {
			case short:
				fmt.Fprintln(stdout, info.Version)
			case asJSON:
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			default:
				fmt.Fprintln(stdout, StyleTitle.Render(appName)+" "+StyleValue.Render(info.Version))
				printKeyValue("commit", info.Commit)
				printKeyValue("built", info.Date)
				printKeyValue("go", info.GoVersion)
				printKeyValue("platform", info.Platform)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print the version only")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print build information as JSON")
	return cmd
}
