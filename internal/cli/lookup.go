package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

// lookupCommand groups single-entity queries. Each subcommand goes through
// the same cache-first resolvers as the HTTP API.
func (c *CLI) lookupCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Resolve a package, version, dependency graph or advisory",
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print the result as JSON")

	cmd.AddCommand(c.lookupSubcommand("package SYSTEM:name", "List the versions of a package",
		func(ctx context.Context, a *app, arg string) (any, func(), error) {
			key, err := parsePackageCoordinate(arg)
			if err != nil {
				return nil, nil, err
			}
			p, err := a.svc.Package(ctx, key.System, key.Name)
			if err != nil {
				return nil, nil, err
			}
			return p, func() { printPackage(p) }, nil
		}, &asJSON))

	cmd.AddCommand(c.lookupSubcommand("version SYSTEM:name@version", "Show one version with its licenses and advisories",
		func(ctx context.Context, a *app, arg string) (any, func(), error) {
			key, err := parseCoordinate(arg)
			if err != nil {
				return nil, nil, err
			}
			v, err := a.svc.Version(ctx, key.System, key.Name, key.Version)
			if err != nil {
				return nil, nil, err
			}
			return v, func() { printVersion(v) }, nil
		}, &asJSON))

	cmd.AddCommand(c.lookupSubcommand("graph SYSTEM:name@version", "Show the resolved dependency graph of a version",
		func(ctx context.Context, a *app, arg string) (any, func(), error) {
			key, err := parseCoordinate(arg)
			if err != nil {
				return nil, nil, err
			}
			g, err := a.svc.Graph(ctx, key.System, key.Name, key.Version)
			if err != nil {
				return nil, nil, err
			}
			return g, func() { printGraph(g) }, nil
		}, &asJSON))

	cmd.AddCommand(c.lookupSubcommand("advisory ID", "Show a security advisory",
		func(ctx context.Context, a *app, arg string) (any, func(), error) {
			adv, err := a.svc.Advisory(ctx, arg)
			if err != nil {
				return nil, nil, err
			}
			return adv, func() { printAdvisory(adv) }, nil
		}, &asJSON))

	return cmd
}

type lookupFunc func(ctx context.Context, a *app, arg string) (result any, show func(), err error)

func (c *CLI) lookupSubcommand(use, short string, fn lookupFunc, asJSON *bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			result, show, err := fn(ctx, a, args[0])
			if err != nil {
				return err
			}
			if *asJSON {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			show()
			return nil
		},
	}
}
