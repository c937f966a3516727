package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Cache.GeocodeTTL != 7*24*time.Hour || cfg.Cache.GridScanTTL != time.Hour {
		t.Fatalf("unexpected cache ttls: %+v", cfg.Cache)
	}
	if cfg.Cache.WebsiteIntelTTL != 12*time.Hour || cfg.Cache.PageSpeedTTL != 12*time.Hour {
		t.Fatalf("unexpected cache ttls: %+v", cfg.Cache)
	}
	if cfg.Scan.Concurrency != 2 || cfg.Scan.BatchMax != 10 {
		t.Fatalf("unexpected scan defaults: %+v", cfg.Scan)
	}
	if cfg.Scan.ListDefaultLimit != 120 || cfg.Scan.ListMaxLimit != 300 {
		t.Fatalf("unexpected list defaults: %+v", cfg.Scan)
	}
	if cfg.Google.GeocodeTimeoutSeconds != 20 || cfg.Google.SearchTimeoutSeconds != 25 {
		t.Fatalf("unexpected upstream timeouts: %+v", cfg.Google)
	}
	if cfg.DB.Table != "grid_rank_scans" {
		t.Fatalf("unexpected table %q", cfg.DB.Table)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  jwt_secret: secret
  issuer: crm
google:
  api_key: places-key
  search_timeout_seconds: 15
cache:
  grid_scan_ttl: 30m
scan:
  concurrency: 3
headless:
  enabled: true
  max_parallel: 2
storage:
  gcs_bucket: bucket
db:
  dsn: postgres://localhost/gridrank
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.JWTSecret != "secret" || cfg.Auth.Issuer != "crm" {
		t.Fatalf("expected auth overrides, got %+v", cfg.Auth)
	}
	if cfg.Google.SearchTimeoutSeconds != 15 || cfg.Google.GeocodeTimeoutSeconds != 20 {
		t.Fatalf("expected google overrides merged with defaults, got %+v", cfg.Google)
	}
	if cfg.Cache.GridScanTTL != 30*time.Minute {
		t.Fatalf("expected grid scan ttl 30m, got %v", cfg.Cache.GridScanTTL)
	}
	if cfg.Scan.Concurrency != 3 || !cfg.Headless.Enabled || cfg.Logging.Development {
		t.Fatalf("expected overrides to apply: %+v", cfg)
	}
	if got := cfg.Google.PageSpeedKey(); got != "places-key" {
		t.Fatalf("expected pagespeed key to fall back to places key, got %q", got)
	}
}

func TestPageSpeedKeyPrefersDedicatedKey(t *testing.T) {
	t.Parallel()

	g := GoogleConfig{APIKey: "places", PageSpeedAPIKey: "psi"}
	if got := g.PageSpeedKey(); got != "psi" {
		t.Fatalf("expected dedicated key, got %q", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080, RequestTimeoutSeconds: 60},
		Google: GoogleConfig{
			GeocodeTimeoutSeconds:   20,
			SearchTimeoutSeconds:    25,
			DetailsTimeoutSeconds:   25,
			PageSpeedTimeoutSeconds: 25,
		},
		Cache: CacheConfig{
			WebsiteIntelTTL: time.Hour,
			GeocodeTTL:      time.Hour,
			PlaceDetailsTTL: time.Hour,
			PageSpeedTTL:    time.Hour,
			GridScanTTL:     time.Hour,
		},
		Scan: ScanConfig{Concurrency: 2, BatchMax: 10, ListDefaultLimit: 120, ListMaxLimit: 300},
		Site: SiteConfig{TimeoutMs: 4500},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to be valid, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "missing geocode timeout", mutate: func(c *Config) { c.Google.GeocodeTimeoutSeconds = 0 }, want: "google.geocode_timeout_seconds"},
		{name: "missing site timeout", mutate: func(c *Config) { c.Site.TimeoutMs = 0 }, want: "site.timeout_ms"},
		{name: "invalid concurrency", mutate: func(c *Config) { c.Scan.Concurrency = 0 }, want: "scan.concurrency"},
		{name: "list limits inverted", mutate: func(c *Config) { c.Scan.ListMaxLimit = 10 }, want: "scan.list_default_limit"},
		{name: "zero ttl", mutate: func(c *Config) { c.Cache.GeocodeTTL = 0 }, want: "cache ttls"},
		{
			name: "headless missing max parallel",
			mutate: func(c *Config) {
				c.Headless.Enabled = true
				c.Headless.MaxParallel = 0
			},
			want: "headless.max_parallel",
		},
		{name: "auth missing secret", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.jwt_secret"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
