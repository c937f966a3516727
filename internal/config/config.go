// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Google   GoogleConfig   `mapstructure:"google"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Site     SiteConfig     `mapstructure:"site"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// GoogleConfig holds Maps Platform and PageSpeed credentials and call budgets.
type GoogleConfig struct {
	APIKey                  string  `mapstructure:"api_key"`
	PageSpeedAPIKey         string  `mapstructure:"pagespeed_api_key"`
	BaseURL                 string  `mapstructure:"base_url"`
	PageSpeedBaseURL        string  `mapstructure:"pagespeed_base_url"`
	GeocodeTimeoutSeconds   int     `mapstructure:"geocode_timeout_seconds"`
	SearchTimeoutSeconds    int     `mapstructure:"search_timeout_seconds"`
	DetailsTimeoutSeconds   int     `mapstructure:"details_timeout_seconds"`
	PageSpeedTimeoutSeconds int     `mapstructure:"pagespeed_timeout_seconds"`
	RequestsPerSecond       float64 `mapstructure:"requests_per_second"`
	Burst                   int     `mapstructure:"burst"`
}

// CacheConfig sets the TTL of each cache instance.
type CacheConfig struct {
	WebsiteIntelTTL time.Duration `mapstructure:"website_intel_ttl"`
	GeocodeTTL      time.Duration `mapstructure:"geocode_ttl"`
	PlaceDetailsTTL time.Duration `mapstructure:"place_details_ttl"`
	PageSpeedTTL    time.Duration `mapstructure:"pagespeed_ttl"`
	GridScanTTL     time.Duration `mapstructure:"grid_scan_ttl"`
}

// ScanConfig governs grid sampling and listing.
type ScanConfig struct {
	Concurrency      int `mapstructure:"concurrency"`
	BatchMax         int `mapstructure:"batch_max"`
	ListDefaultLimit int `mapstructure:"list_default_limit"`
	ListMaxLimit     int `mapstructure:"list_max_limit"`
}

// SiteConfig configures the website intel probe fetch.
type SiteConfig struct {
	UserAgent    string `mapstructure:"user_agent"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
	MaxBodyBytes int    `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// StorageConfig sets where scan snapshots are archived.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GRIDRANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("google.api_key", "")
	v.SetDefault("google.pagespeed_api_key", "")
	v.SetDefault("google.base_url", "")
	v.SetDefault("google.pagespeed_base_url", "")
	v.SetDefault("google.geocode_timeout_seconds", 20)
	v.SetDefault("google.search_timeout_seconds", 25)
	v.SetDefault("google.details_timeout_seconds", 25)
	v.SetDefault("google.pagespeed_timeout_seconds", 25)
	v.SetDefault("google.requests_per_second", 5.0)
	v.SetDefault("google.burst", 2)
	v.SetDefault("cache.website_intel_ttl", 12*time.Hour)
	v.SetDefault("cache.geocode_ttl", 7*24*time.Hour)
	v.SetDefault("cache.place_details_ttl", 7*24*time.Hour)
	v.SetDefault("cache.pagespeed_ttl", 12*time.Hour)
	v.SetDefault("cache.grid_scan_ttl", time.Hour)
	v.SetDefault("scan.concurrency", 2)
	v.SetDefault("scan.batch_max", 10)
	v.SetDefault("scan.list_default_limit", 120)
	v.SetDefault("scan.list_max_limit", 300)
	v.SetDefault("site.user_agent",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("site.timeout_ms", 4500)
	v.SetDefault("site.max_body_bytes", 220000)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 20)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.local_dir", "")
	v.SetDefault("storage.prefix", "grid-scans")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "grid_rank_scans")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.migrate", true)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	timeouts := []struct {
		key   string
		value int
	}{
		{"google.geocode_timeout_seconds", c.Google.GeocodeTimeoutSeconds},
		{"google.search_timeout_seconds", c.Google.SearchTimeoutSeconds},
		{"google.details_timeout_seconds", c.Google.DetailsTimeoutSeconds},
		{"google.pagespeed_timeout_seconds", c.Google.PageSpeedTimeoutSeconds},
		{"site.timeout_ms", c.Site.TimeoutMs},
	}
	for _, t := range timeouts {
		if t.value <= 0 {
			return fmt.Errorf("%s must be > 0", t.key)
		}
	}
	if c.Scan.Concurrency <= 0 {
		return fmt.Errorf("scan.concurrency must be > 0")
	}
	if c.Scan.BatchMax <= 0 {
		return fmt.Errorf("scan.batch_max must be > 0")
	}
	if c.Scan.ListDefaultLimit <= 0 || c.Scan.ListMaxLimit < c.Scan.ListDefaultLimit {
		return fmt.Errorf("scan.list_default_limit must be > 0 and <= scan.list_max_limit")
	}
	if c.Cache.WebsiteIntelTTL <= 0 || c.Cache.GeocodeTTL <= 0 || c.Cache.PlaceDetailsTTL <= 0 ||
		c.Cache.PageSpeedTTL <= 0 || c.Cache.GridScanTTL <= 0 {
		return fmt.Errorf("cache ttls must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must be set when auth is enabled")
	}
	return nil
}

// RequestTimeout is the upper bound for one HTTP request to this service.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// PageSpeedKey falls back to the Places key when no dedicated key is set.
func (c GoogleConfig) PageSpeedKey() string {
	if c.PageSpeedAPIKey != "" {
		return c.PageSpeedAPIKey
	}
	return c.APIKey
}
