package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Errorf("Defaults().Validate() = %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, t.TempDir(), "custom.toml", `
[server]
addr = ":9090"

[store]
driver = "postgres"
dsn = "postgres://localhost/depscanner"

[scan]
timeout = "90s"
expand_all = false
graph_ttl = "168h"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Store.Driver != DriverPostgres {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Scan.Timeout != 90*time.Second || cfg.Scan.ExpandAll || cfg.Scan.GraphTTL != 168*time.Hour {
		t.Errorf("scan = %+v", cfg.Scan)
	}
	// Untouched sections keep their defaults.
	if cfg.Scan.MaxNodes != 5000 || cfg.DepsDev.Retries != 2 {
		t.Errorf("defaults lost: %+v %+v", cfg.Scan, cfg.DepsDev)
	}
}

func TestLoadDefaultFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, DefaultFile, "[log]\nlevel = \"debug\"\n")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, t.TempDir(), "bad.toml", "[scan]\nmax_nodez = 3\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "scan.max_nodez") {
		t.Errorf("Load = %v, want unknown key error", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, t.TempDir(), "c.toml", "[server]\naddr = \":9090\"\n")
	t.Setenv("DEPSCANNER_ADDR", ":7070")
	t.Setenv("DEPSCANNER_SCAN_TIMEOUT", "2m")
	t.Setenv("DEPSCANNER_SCAN_EXPAND_ALL", "false")
	t.Setenv("DEPSCANNER_REDIS_DB", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("Addr = %q, want :7070", cfg.Server.Addr)
	}
	if cfg.Scan.Timeout != 2*time.Minute || cfg.Scan.ExpandAll || cfg.Redis.DB != 3 {
		t.Errorf("cfg = %+v %+v", cfg.Scan, cfg.Redis)
	}
}

func TestDotenv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "DEPSCANNER_STORE=memory\nDEPSCANNER_LOG_LEVEL=warn\n")
	// Real environment wins over .env.
	t.Setenv("DEPSCANNER_LOG_LEVEL", "error")
	// godotenv sets variables for the process; unset them after the test.
	t.Cleanup(func() { os.Unsetenv("DEPSCANNER_STORE") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != DriverMemory {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want error", cfg.Log.Level)
	}
}

func TestInvalidEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DEPSCANNER_SCAN_WORKERS", "many")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "DEPSCANNER_SCAN_WORKERS") {
		t.Errorf("Load = %v, want env parse error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad driver", func(c *Config) { c.Store.Driver = "oracle" }, "store.driver"},
		{"missing dsn", func(c *Config) { c.Store.DSN = "" }, "store.dsn"},
		{"memory needs no dsn", func(c *Config) { c.Store.Driver, c.Store.DSN = DriverMemory, "" }, ""},
		{"bad cache", func(c *Config) { c.Cache.Backend = "disk" }, "cache.backend"},
		{"redis without addr", func(c *Config) { c.Events.Backend, c.Redis.Addr = BackendRedis, "" }, "redis.addr"},
		{"bad url", func(c *Config) { c.DepsDev.BaseURL = "ftp://x" }, "depsdev.base_url"},
		{"breaker ratio above one", func(c *Config) { c.DepsDev.BreakerFailureRatio = 1.5 }, "depsdev.breaker_failure_ratio"},
		{"zero breaker window", func(c *Config) { c.DepsDev.BreakerWindow = 0 }, "depsdev.breaker_window"},
		{"zero workers", func(c *Config) { c.Scan.Workers = 0 }, "scan.workers"},
		{"negative ttl", func(c *Config) { c.Scan.GraphTTL = -time.Second }, "scan.graph_ttl"},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}
