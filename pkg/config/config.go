// Package config loads depscanner settings.
//
// Settings are layered, later layers winning:
//
//  1. built-in defaults ([Defaults])
//  2. a TOML file (--config, $DEPSCANNER_CONFIG, or ./depscanner.toml when present)
//  3. DEPSCANNER_* environment variables, including those set by a .env file
//
// Example depscanner.toml:
//
//	[server]
//	addr = ":8080"
//
//	[store]
//	driver = "postgres"
//	dsn = "postgres://depscanner@localhost/depscanner"
//
//	[scan]
//	timeout = "5m"
//	graph_ttl = "168h"
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultFile is read from the working directory when no file is named.
const DefaultFile = "depscanner.toml"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Response cache and event bus backends.
const (
	BackendNone   = "none"
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the complete configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	DepsDev DepsDevConfig `toml:"depsdev"`
	Cache   CacheConfig   `toml:"cache"`
	Store   StoreConfig   `toml:"store"`
	Redis   RedisConfig   `toml:"redis"`
	Events  EventsConfig  `toml:"events"`
	Scan    ScanConfig    `toml:"scan"`
	Log     LogConfig     `toml:"log"`
}

type ServerConfig struct {
	Addr            string        `toml:"addr"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// DepsDevConfig configures the upstream metadata client.
type DepsDevConfig struct {
	BaseURL    string        `toml:"base_url"`
	Timeout    time.Duration `toml:"timeout"`
	Retries    int           `toml:"retries"`
	RetryDelay time.Duration `toml:"retry_delay"`
	UserAgent  string        `toml:"user_agent"`

	// The circuit breaker opens for BreakerTimeout when BreakerFailureRatio
	// of the calls within BreakerWindow fail, or after BreakerFailures
	// consecutive failures.
	BreakerFailures     int           `toml:"breaker_failures"`
	BreakerFailureRatio float64       `toml:"breaker_failure_ratio"`
	BreakerWindow       time.Duration `toml:"breaker_window"`
	BreakerTimeout      time.Duration `toml:"breaker_timeout"`
}

// CacheConfig configures the upstream response cache.
type CacheConfig struct {
	Backend string        `toml:"backend"` // none, file, memory or redis
	Dir     string        `toml:"dir"`     // file backend; default: user cache dir
	TTL     time.Duration `toml:"ttl"`
}

// StoreConfig selects the persistent store.
type StoreConfig struct {
	Driver   string `toml:"driver"`   // memory, sqlite, postgres or mongo
	DSN      string `toml:"dsn"`      // file path, postgres URL or mongodb URI
	Database string `toml:"database"` // mongo only
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// EventsConfig selects the event bus used by the scan listener.
type EventsConfig struct {
	Backend string `toml:"backend"` // none, memory or redis
	Group   string `toml:"group"`
}

// ScanConfig bounds scans and graph freshness.
type ScanConfig struct {
	Workers   int           `toml:"workers"`
	MaxDepth  int           `toml:"max_depth"`
	MaxNodes  int           `toml:"max_nodes"`
	Timeout   time.Duration `toml:"timeout"`
	ExpandAll bool          `toml:"expand_all"`
	// GraphTTL is the age after which a captured graph is refetched. Zero
	// keeps graphs forever.
	GraphTTL time.Duration `toml:"graph_ttl"`
}

type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn or error
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		DepsDev: DepsDevConfig{
			BaseURL:             "https://api.deps.dev/v3alpha",
			Timeout:             10 * time.Second,
			Retries:             2,
			RetryDelay:          200 * time.Millisecond,
			BreakerFailures:     5,
			BreakerFailureRatio: 0.5,
			BreakerWindow:       time.Minute,
			BreakerTimeout:      30 * time.Second,
		},
		Cache: CacheConfig{
			Backend: BackendNone,
			TTL:     5 * time.Minute,
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
			DSN:    "depscanner.db",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Events: EventsConfig{
			Backend: BackendNone,
			Group:   "vuln-service",
		},
		Scan: ScanConfig{
			Workers:   8,
			MaxDepth:  50,
			MaxNodes:  5000,
			Timeout:   10 * time.Minute,
			ExpandAll: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path and
// the environment. A .env file in the working directory is loaded first;
// variables already set in the environment take precedence over it. An
// empty path falls back to $DEPSCANNER_CONFIG, then to DefaultFile if it
// exists.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path == "" {
		path = os.Getenv("DEPSCANNER_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("read config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// envBindings maps environment variables onto fields. Values must be
// pointers to string, int, bool or time.Duration.
var envBindings = []struct {
	name  string
	field func(*Config) any
}{
	{"DEPSCANNER_ADDR", func(c *Config) any { return &c.Server.Addr }},
	{"DEPSCANNER_SHUTDOWN_TIMEOUT", func(c *Config) any { return &c.Server.ShutdownTimeout }},
	{"DEPSCANNER_DEPSDEV_URL", func(c *Config) any { return &c.DepsDev.BaseURL }},
	{"DEPSCANNER_DEPSDEV_TIMEOUT", func(c *Config) any { return &c.DepsDev.Timeout }},
	{"DEPSCANNER_DEPSDEV_RETRIES", func(c *Config) any { return &c.DepsDev.Retries }},
	{"DEPSCANNER_CACHE", func(c *Config) any { return &c.Cache.Backend }},
	{"DEPSCANNER_CACHE_DIR", func(c *Config) any { return &c.Cache.Dir }},
	{"DEPSCANNER_CACHE_TTL", func(c *Config) any { return &c.Cache.TTL }},
	{"DEPSCANNER_STORE", func(c *Config) any { return &c.Store.Driver }},
	{"DEPSCANNER_STORE_DSN", func(c *Config) any { return &c.Store.DSN }},
	{"DEPSCANNER_STORE_DATABASE", func(c *Config) any { return &c.Store.Database }},
	{"DEPSCANNER_REDIS_ADDR", func(c *Config) any { return &c.Redis.Addr }},
	{"DEPSCANNER_REDIS_PASSWORD", func(c *Config) any { return &c.Redis.Password }},
	{"DEPSCANNER_REDIS_DB", func(c *Config) any { return &c.Redis.DB }},
	{"DEPSCANNER_EVENTS", func(c *Config) any { return &c.Events.Backend }},
	{"DEPSCANNER_EVENTS_GROUP", func(c *Config) any { return &c.Events.Group }},
	{"DEPSCANNER_SCAN_WORKERS", func(c *Config) any { return &c.Scan.Workers }},
	{"DEPSCANNER_SCAN_TIMEOUT", func(c *Config) any { return &c.Scan.Timeout }},
	{"DEPSCANNER_SCAN_EXPAND_ALL", func(c *Config) any { return &c.Scan.ExpandAll }},
	{"DEPSCANNER_GRAPH_TTL", func(c *Config) any { return &c.Scan.GraphTTL }},
	{"DEPSCANNER_LOG_LEVEL", func(c *Config) any { return &c.Log.Level }},
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		raw, ok := lookup(b.name)
		if !ok || raw == "" {
			continue
		}
		var err error
		switch p := b.field(c).(type) {
		case *string:
			*p = raw
		case *int:
			*p, err = strconv.Atoi(raw)
		case *bool:
			*p, err = strconv.ParseBool(raw)
		case *time.Duration:
			*p, err = time.ParseDuration(raw)
		}
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", b.name, raw, err)
		}
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Addr != "", "server.addr is required")
	check(strings.HasPrefix(c.DepsDev.BaseURL, "http://") || strings.HasPrefix(c.DepsDev.BaseURL, "https://"),
		"depsdev.base_url must be an http(s) URL, got %q", c.DepsDev.BaseURL)
	check(c.DepsDev.Timeout > 0, "depsdev.timeout must be positive")
	check(c.DepsDev.Retries >= 1, "depsdev.retries must be at least 1")
	check(c.DepsDev.BreakerFailures >= 1, "depsdev.breaker_failures must be at least 1")
	check(c.DepsDev.BreakerFailureRatio > 0 && c.DepsDev.BreakerFailureRatio <= 1,
		"depsdev.breaker_failure_ratio must be in (0, 1], got %v", c.DepsDev.BreakerFailureRatio)
	check(c.DepsDev.BreakerWindow > 0, "depsdev.breaker_window must be positive")

	check(slices.Contains([]string{BackendNone, BackendFile, BackendMemory, BackendRedis}, c.Cache.Backend),
		"cache.backend must be none, file, memory or redis, got %q", c.Cache.Backend)
	check(c.Cache.TTL >= 0, "cache.ttl must not be negative")

	check(slices.Contains([]string{DriverMemory, DriverSQLite, DriverPostgres, DriverMongo}, c.Store.Driver),
		"store.driver must be memory, sqlite, postgres or mongo, got %q", c.Store.Driver)
	check(c.Store.Driver == DriverMemory || c.Store.DSN != "", "store.dsn is required for driver %q", c.Store.Driver)

	check(slices.Contains([]string{BackendNone, BackendMemory, BackendRedis}, c.Events.Backend),
		"events.backend must be none, memory or redis, got %q", c.Events.Backend)
	needsRedis := c.Cache.Backend == BackendRedis || c.Events.Backend == BackendRedis
	check(!needsRedis || c.Redis.Addr != "", "redis.addr is required by the redis backends")

	check(c.Scan.Workers >= 1, "scan.workers must be at least 1")
	check(c.Scan.MaxDepth >= 1, "scan.max_depth must be at least 1")
	check(c.Scan.MaxNodes >= 1, "scan.max_nodes must be at least 1")
	check(c.Scan.Timeout > 0, "scan.timeout must be positive")
	check(c.Scan.GraphTTL >= 0, "scan.graph_ttl must not be negative")

	check(slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level),
		"log.level must be debug, info, warn or error, got %q", c.Log.Level)

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
