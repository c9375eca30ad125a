// Package config loads storefront settings from the environment and an
// optional config file.
//
// Every key can be set as a bare environment variable (ERP_DOMAIN) or with
// the STOREFRONT_ prefix (STOREFRONT_ERP_DOMAIN); the prefixed form wins.
// A config file uses the nested keys below (erp.domain, cache.ttl.stock).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the optional environment variable prefix.
const EnvPrefix = "STOREFRONT"

// Persistence modes for the persisted cache namespaces.
const (
	PersistNone   = "none"
	PersistRedis  = "redis"
	PersistSQLite = "sqlite"
)

// ErrConfigurationMissing is returned when required settings are absent.
var ErrConfigurationMissing = errors.New("configuration missing")

var validate = validator.New()

// Config is the full storefront configuration.
type Config struct {
	ERP       ERPConfig       `mapstructure:"erp"`
	Currency  string          `mapstructure:"currency" validate:"len=3"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Aggregate AggregateConfig `mapstructure:"aggregate"`
	Images    ImagesConfig    `mapstructure:"images"`
	Warmup    WarmupConfig    `mapstructure:"warmup"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
}

// ERPConfig configures the upstream client.
type ERPConfig struct {
	Domain        string        `mapstructure:"domain" validate:"required,url"`
	APIKey        string        `mapstructure:"api_key" validate:"required"`
	APISecret     string        `mapstructure:"api_secret" validate:"required"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries    int           `mapstructure:"max_retries" validate:"min=1,max=10"`
	PriceList     string        `mapstructure:"price_list" validate:"required"`
	SalePriceList string        `mapstructure:"sale_price_list"`
	UserAgent     string        `mapstructure:"user_agent"`
}

// CacheConfig configures the cache stores.
type CacheConfig struct {
	TTL        TTLConfig `mapstructure:"ttl"`
	MaxSize    int       `mapstructure:"max_size" validate:"min=1"`
	Persist    string    `mapstructure:"persist" validate:"oneof=none redis sqlite"`
	SQLitePath string    `mapstructure:"sqlite_path"`

	// SaveDelay batches writes of persisted namespaces; 0 writes through
	SaveDelay time.Duration `mapstructure:"save_delay" validate:"gte=0"`
}

// TTLConfig holds the per-resource TTLs.
type TTLConfig struct {
	Products   time.Duration `mapstructure:"products" validate:"gt=0"`
	Stock      time.Duration `mapstructure:"stock" validate:"gt=0"`
	Prices     time.Duration `mapstructure:"prices" validate:"gt=0"`
	Categories time.Duration `mapstructure:"categories" validate:"gt=0"`
	Images     time.Duration `mapstructure:"images" validate:"gt=0"`
}

// RedisConfig configures the shared Redis instance.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// AggregateConfig configures the price/stock fan-out.
type AggregateConfig struct {
	Concurrency   int           `mapstructure:"concurrency" validate:"min=1"`
	BranchTimeout time.Duration `mapstructure:"branch_timeout" validate:"gt=0"`
}

// ImagesConfig configures optimized image URLs.
type ImagesConfig struct {
	ResizeURL string `mapstructure:"resize_url" validate:"omitempty,url"`
	Width     int    `mapstructure:"width" validate:"min=1"`
	Quality   int    `mapstructure:"quality" validate:"min=1,max=100"`
}

// WarmupConfig configures startup cache warm-up.
type WarmupConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Pages   int  `mapstructure:"pages" validate:"min=0"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port     int `mapstructure:"port" validate:"min=1,max=65535"`
	PageSize int `mapstructure:"page_size" validate:"min=1,max=100"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Pretty bool   `mapstructure:"pretty"`
}

// envBindings maps config keys to their bare environment variable names.
var envBindings = map[string]string{
	"erp.domain":               "ERP_DOMAIN",
	"erp.api_key":              "ERP_API_KEY",
	"erp.api_secret":           "ERP_API_SECRET",
	"erp.timeout":              "ERP_TIMEOUT",
	"erp.max_retries":          "ERP_MAX_RETRIES",
	"erp.price_list":           "ERP_PRICE_LIST",
	"erp.sale_price_list":      "ERP_SALE_PRICE_LIST",
	"erp.user_agent":           "ERP_USER_AGENT",
	"currency":                 "CURRENCY",
	"cache.ttl.products":       "CACHE_TTL_PRODUCTS",
	"cache.ttl.stock":          "CACHE_TTL_STOCK",
	"cache.ttl.prices":         "CACHE_TTL_PRICES",
	"cache.ttl.categories":     "CACHE_TTL_CATEGORIES",
	"cache.ttl.images":         "CACHE_TTL_IMAGES",
	"cache.max_size":           "CACHE_MAX_SIZE",
	"cache.persist":            "CACHE_PERSIST",
	"cache.sqlite_path":        "CACHE_SQLITE_PATH",
	"cache.save_delay":         "CACHE_SAVE_DELAY",
	"redis.url":                "REDIS_URL",
	"aggregate.concurrency":    "AGGREGATE_CONCURRENCY",
	"aggregate.branch_timeout": "AGGREGATE_BRANCH_TIMEOUT",
	"images.resize_url":        "IMAGE_RESIZE_URL",
	"images.width":             "IMAGE_WIDTH",
	"images.quality":           "IMAGE_QUALITY",
	"warmup.enabled":           "WARMUP_ENABLED",
	"warmup.pages":             "WARMUP_PAGES",
	"server.port":              "PORT",
	"server.page_size":         "PAGE_SIZE",
	"log.level":                "LOG_LEVEL",
	"log.pretty":               "LOG_PRETTY",
}

// Options control where configuration is read from.
type Options struct {
	// File is an explicit config file. When empty, storefront.{yaml,toml,json}
	// is looked up in the working directory and skipped if absent.
	File string
}

// Load reads, normalizes and validates the configuration.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, EnvPrefix+"_"+env, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := readConfigFile(v, opts.File); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	normalizeConfig(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("erp.timeout", 15*time.Second)
	v.SetDefault("erp.max_retries", 1)
	v.SetDefault("erp.price_list", "Standard Selling")
	v.SetDefault("erp.sale_price_list", "")
	v.SetDefault("erp.user_agent", "erp-storefront/0.1.0")
	v.SetDefault("currency", "EUR")

	v.SetDefault("cache.ttl.products", 30*time.Minute)
	v.SetDefault("cache.ttl.stock", 2*time.Minute)
	v.SetDefault("cache.ttl.prices", 15*time.Minute)
	v.SetDefault("cache.ttl.categories", 30*time.Minute)
	v.SetDefault("cache.ttl.images", 24*time.Hour)
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.persist", PersistNone)
	v.SetDefault("cache.sqlite_path", "storefront-cache.db")
	v.SetDefault("cache.save_delay", time.Second)

	v.SetDefault("redis.url", "localhost:6379")

	v.SetDefault("aggregate.concurrency", 10)
	v.SetDefault("aggregate.branch_timeout", 5*time.Second)

	v.SetDefault("images.resize_url", "")
	v.SetDefault("images.width", 600)
	v.SetDefault("images.quality", 80)

	v.SetDefault("warmup.enabled", true)
	v.SetDefault("warmup.pages", 2)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.page_size", 12)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func readConfigFile(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", file, err)
		}
		return nil
	}

	v.SetConfigName("storefront")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", v.ConfigFileUsed(), err)
	}
	return nil
}

func normalizeConfig(cfg *Config) {
	cfg.ERP.Domain = strings.TrimRight(strings.TrimSpace(cfg.ERP.Domain), "/")
	cfg.ERP.APIKey = strings.TrimSpace(cfg.ERP.APIKey)
	cfg.ERP.APISecret = strings.TrimSpace(cfg.ERP.APISecret)
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	cfg.Cache.Persist = strings.ToLower(strings.TrimSpace(cfg.Cache.Persist))
	if cfg.Cache.Persist == "" {
		cfg.Cache.Persist = PersistNone
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
}

func validateConfig(cfg *Config) error {
	var missing []string
	if cfg.ERP.Domain == "" {
		missing = append(missing, "ERP_DOMAIN")
	}
	if cfg.ERP.APIKey == "" {
		missing = append(missing, "ERP_API_KEY")
	}
	if cfg.ERP.APISecret == "" {
		missing = append(missing, "ERP_API_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigurationMissing, strings.Join(missing, ", "))
	}

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
