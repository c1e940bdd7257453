package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscanner/pkg/cache"
	"github.com/matzehuels/depscanner/pkg/config"
	"github.com/matzehuels/depscanner/pkg/depsdev"
	"github.com/matzehuels/depscanner/pkg/events"
	"github.com/matzehuels/depscanner/pkg/resolve"
	"github.com/matzehuels/depscanner/pkg/scan"
	"github.com/matzehuels/depscanner/pkg/store"
	"github.com/matzehuels/depscanner/pkg/store/memory"
	"github.com/matzehuels/depscanner/pkg/store/mongostore"
	"github.com/matzehuels/depscanner/pkg/store/sqlstore"
)

// app is the object graph shared by the commands: one store, one upstream
// client and the resolvers and engine built on them.
type app struct {
	cfg     *config.Config
	store   store.Store
	cache   cache.Cache
	client  *depsdev.Client // nil when the CLI injects its own API
	svc     *resolve.Service
	engine  *scan.Engine
	logger  *log.Logger
	closers []func() error
}

// openApp wires the components selected by cfg.
func (c *CLI) openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := loggerFromContext(ctx)
	a := &app{cfg: cfg, logger: logger}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	rc, err := openCache(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cache = rc
	a.closers = append(a.closers, rc.Close)

	api := c.api
	if api == nil {
		a.client = depsdev.NewClient(depsdev.Options{
			BaseURL:    cfg.DepsDev.BaseURL,
			Timeout:    cfg.DepsDev.Timeout,
			Retries:    cfg.DepsDev.Retries,
			RetryDelay: cfg.DepsDev.RetryDelay,
			UserAgent:  cfg.DepsDev.UserAgent,
			Breaker: depsdev.BreakerSettings{
				MaxFailures:  uint32(cfg.DepsDev.BreakerFailures),
				FailureRatio: cfg.DepsDev.BreakerFailureRatio,
				Interval:     cfg.DepsDev.BreakerWindow,
				OpenTimeout:  cfg.DepsDev.BreakerTimeout,
			},
			Cache:    cache.Prefixed(rc, "depsdev:"),
			CacheTTL: cfg.Cache.TTL,
			Logger:   logger.WithPrefix("depsdev"),
		})
		api = a.client
	}

	a.svc = resolve.NewService(api, st, resolve.Options{
		GraphTTL: cfg.Scan.GraphTTL,
		Logger:   logger.WithPrefix("resolve"),
	})
	a.engine = scan.NewEngine(a.svc.Versions, a.svc.Graphs, engineOptions(cfg.Scan), logger.WithPrefix("scan"))
	return a, nil
}

// Close releases everything openApp acquired, in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// breakerState reports the upstream breaker for /healthz.
func (a *app) breakerState() string {
	if a.client == nil {
		return "closed"
	}
	return a.client.BreakerState()
}

func engineOptions(sc config.ScanConfig) scan.Options {
	return scan.Options{
		Workers:   sc.Workers,
		MaxDepth:  sc.MaxDepth,
		MaxNodes:  sc.MaxNodes,
		Timeout:   sc.Timeout,
		RootsOnly: !sc.ExpandAll,
	}
}

func openStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		return sqlstore.Open(ctx, sqlstore.SQLite, sc.DSN)
	case config.DriverPostgres:
		return sqlstore.Open(ctx, sqlstore.Postgres, sc.DSN)
	case config.DriverMongo:
		db := sc.Database
		if db == "" {
			db = mongostore.DatabaseName(sc.DSN)
		}
		return mongostore.Open(ctx, sc.DSN, db)
	default:
		return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}
}

func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case config.BackendNone, "":
		return cache.NewNullCache(), nil
	case config.BackendMemory:
		return cache.NewMemoryCache(), nil
	case config.BackendFile:
		dir, err := cacheDir(cfg)
		if err != nil {
			return nil, fmt.Errorf("get cache dir: %w", err)
		}
		return cache.NewFileCache(dir)
	case config.BackendRedis:
		return cache.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// openBus returns nil when no event backend is configured.
func openBus(ctx context.Context, cfg *config.Config, logger *log.Logger) (events.Bus, error) {
	switch cfg.Events.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendMemory:
		return events.NewMemoryBus(logger), nil
	case config.BackendRedis:
		return events.DialRedisBus(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, events.RedisOptions{Logger: logger})
	default:
		return nil, fmt.Errorf("unknown event backend %q", cfg.Events.Backend)
	}
}
