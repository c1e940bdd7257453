package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/depscanner/pkg/api"
	"github.com/matzehuels/depscanner/pkg/config"
	"github.com/matzehuels/depscanner/pkg/events"
	"github.com/matzehuels/depscanner/pkg/observability/prommetrics"
	"github.com/matzehuels/depscanner/pkg/scan"
)

type serveOptions struct {
	addr     string
	events   string
	noScan   bool
	noMetric bool
}

func (c *CLI) serveCommand() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the query API and the scan request listener",
		Long: "Run the HTTP query API. When an event backend is configured, scan requests\n" +
			"are consumed from the " + events.TopicScanRequested + " topic and findings are\n" +
			"published to " + events.TopicAdvisoryFound + ".",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if opts.addr != "" {
				cfg.Server.Addr = opts.addr
			}
			if opts.events != "" {
				cfg.Events.Backend = opts.events
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return c.runServe(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&opts.events, "events", "", "event backend: none, memory or redis (overrides events.backend)")
	cmd.Flags().BoolVar(&opts.noScan, "no-scan-endpoint", false, "disable POST /scan")
	cmd.Flags().BoolVar(&opts.noMetric, "no-metrics", false, "disable Prometheus metrics")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, cfg *config.Config, opts serveOptions) error {
	logger := c.Logger

	var metrics *prommetrics.Metrics
	if !opts.noMetric {
		metrics = prommetrics.New(nil)
		metrics.Install()
	}

	a, err := c.openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	logger.Info("store opened", "driver", cfg.Store.Driver)

	engine := a.engine
	if opts.noScan {
		engine = nil
	}
	srv := api.New(a.svc, engine, api.Options{
		Metrics: metrics,
		Breaker: a.breakerState,
		Logger:  logger.WithPrefix("api"),
	})

	bus, err := openBus(ctx, cfg, logger.WithPrefix("events"))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
	})
	if bus != nil {
		defer bus.Close()
		listener := scan.NewListener(bus, a.engine, cfg.Events.Group, logger.WithPrefix("listener"))
		g.Go(func() error {
			return listener.Run(gctx)
		})
	} else {
		logger.Info("no event backend configured, scan listener disabled")
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
