// Package config loads the storefront configuration with viper: built-in
// defaults, then an optional YAML file, then environment variables.
//
// The YAML file is read from $STOREFRONT_CONFIG, or storefront.yaml in the
// working directory when that variable is unset. Environment variables use
// the upper-cased key with dots replaced by underscores, e.g. SERVER_PORT,
// REDIS_URL, CACHE_PRODUCT_TTL, CACHE_PAGES_INDEX.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigFile is read when STOREFRONT_CONFIG is unset
const DefaultConfigFile = "storefront.yaml"

// Config holds the application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	JWTSecret   string          `mapstructure:"jwt_secret"`
	Server      ServerConfig    `mapstructure:"server"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Storage     StorageConfig   `mapstructure:"storage"`
	CDN         CDNConfig       `mapstructure:"cdn"`
	Assets      AssetsConfig    `mapstructure:"assets"`
	CORS        CORSConfig      `mapstructure:"cors"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Theme       ThemeConfig     `mapstructure:"theme"`
	Sweeper     SweeperConfig   `mapstructure:"sweeper"`
	RateLimit   RateLimitConfig `mapstructure:"ratelimit"`
	Tracing     TracingConfig   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig enables the shared page cache tier when URL is set
type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// DatabaseConfig selects Postgres repositories when URL is set; otherwise
// the in-memory repositories are used
type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type StorageConfig struct {
	Root    string        `mapstructure:"root"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CDNConfig is the read-through front for theme files in production
type CDNConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// AssetsConfig is the public URL prefix asset_url builds on
type AssetsConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// CacheConfig holds the TTL policy per cache category
type CacheConfig struct {
	TemplateTTL       time.Duration `mapstructure:"template_ttl"`
	ProductTTL        time.Duration `mapstructure:"product_ttl"`
	CollectionTTL     time.Duration `mapstructure:"collection_ttl"`
	PageDataTTL       time.Duration `mapstructure:"page_data_ttl"`
	NavigationTTL     time.Duration `mapstructure:"navigation_ttl"`
	DomainTTL         time.Duration `mapstructure:"domain_ttl"`
	DomainNotFoundTTL time.Duration `mapstructure:"domain_not_found_ttl"`
	DomainErrorTTL    time.Duration `mapstructure:"domain_error_ttl"`
	Pages             PageTTLConfig `mapstructure:"pages"`
}

// PageTTLConfig is the rendered-page TTL per page type. Zero disables
// caching for that page type.
type PageTTLConfig struct {
	Index      time.Duration `mapstructure:"index"`
	Product    time.Duration `mapstructure:"product"`
	Collection time.Duration `mapstructure:"collection"`
	Page       time.Duration `mapstructure:"page"`
	Blog       time.Duration `mapstructure:"blog"`
	Article    time.Duration `mapstructure:"article"`
	Search     time.Duration `mapstructure:"search"`
	Policies   time.Duration `mapstructure:"policies"`
	NotFound   time.Duration `mapstructure:"not_found"`
	Cart       time.Duration `mapstructure:"cart"`
	Checkout   time.Duration `mapstructure:"checkout"`
}

// ThemeConfig bounds theme uploads
type ThemeConfig struct {
	MaxFiles    int  `mapstructure:"max_files"`
	MaxTotalMB  int  `mapstructure:"max_total_mb"`
	MaxAssetKB  int  `mapstructure:"max_asset_kb"`
	MaxUploadMB int  `mapstructure:"max_upload_mb"`
	Minify      bool `mapstructure:"minify"`
}

type SweeperConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type RateLimitConfig struct {
	AdminPerMinute      int `mapstructure:"admin_per_minute"`
	StorefrontPerMinute int `mapstructure:"storefront_per_minute"`
}

type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// IsProduction reports whether theme reads should go through the CDN
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("jwt_secret", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.prefix", "storefront:")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)

	v.SetDefault("storage.root", "./data")
	v.SetDefault("storage.timeout", "5s")
	v.SetDefault("cdn.base_url", "")
	v.SetDefault("assets.base_url", "/cdn")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})

	v.SetDefault("cache.template_ttl", "60m")
	v.SetDefault("cache.product_ttl", "15m")
	v.SetDefault("cache.collection_ttl", "30m")
	v.SetDefault("cache.page_data_ttl", "30m")
	v.SetDefault("cache.navigation_ttl", "30m")
	v.SetDefault("cache.domain_ttl", "30m")
	v.SetDefault("cache.domain_not_found_ttl", "5m")
	v.SetDefault("cache.domain_error_ttl", "1m")
	v.SetDefault("cache.pages.index", "30m")
	v.SetDefault("cache.pages.product", "60m")
	v.SetDefault("cache.pages.collection", "45m")
	v.SetDefault("cache.pages.page", "24h")
	v.SetDefault("cache.pages.blog", "30m")
	v.SetDefault("cache.pages.article", "60m")
	v.SetDefault("cache.pages.search", "0s")
	v.SetDefault("cache.pages.policies", "24h")
	v.SetDefault("cache.pages.not_found", "24h")
	v.SetDefault("cache.pages.cart", "0s")
	v.SetDefault("cache.pages.checkout", "0s")

	v.SetDefault("theme.max_files", 500)
	v.SetDefault("theme.max_total_mb", 50)
	v.SetDefault("theme.max_asset_kb", 512)
	v.SetDefault("theme.max_upload_mb", 64)
	v.SetDefault("theme.minify", true)

	v.SetDefault("sweeper.interval", "1m")
	v.SetDefault("ratelimit.admin_per_minute", 30)
	v.SetDefault("ratelimit.storefront_per_minute", 1200)
	v.SetDefault("tracing.endpoint", "")
}

// Load reads the configuration from $STOREFRONT_CONFIG (or storefront.yaml
// when present) and the environment
func Load() (*Config, error) {
	path := os.Getenv("STOREFRONT_CONFIG")
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	return LoadFile(path)
}

// LoadFile reads the configuration from path, which may be empty, and the
// environment
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := v.BindEnv("tracing.endpoint", "TRACING_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"); err != nil {
		return nil, fmt.Errorf("failed to bind tracing env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at runtime
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.IsProduction() && c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required in production"))
	}
	if c.Storage.Timeout <= 0 {
		errs = append(errs, errors.New("storage.timeout must be positive"))
	}
	if c.Theme.MaxFiles <= 0 || c.Theme.MaxTotalMB <= 0 {
		errs = append(errs, errors.New("theme limits must be positive"))
	}
	for name, ttl := range map[string]time.Duration{
		"cache.template_ttl":         c.Cache.TemplateTTL,
		"cache.domain_ttl":           c.Cache.DomainTTL,
		"cache.domain_not_found_ttl": c.Cache.DomainNotFoundTTL,
	} {
		if ttl < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.Cache.DomainNotFoundTTL > c.Cache.DomainTTL {
		errs = append(errs, errors.New("cache.domain_not_found_ttl must not exceed cache.domain_ttl"))
	}
	return errors.Join(errs...)
}
