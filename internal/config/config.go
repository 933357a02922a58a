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
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	DB        DBConfig        `mapstructure:"db"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory stores, which is the local development default.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifetime string `mapstructure:"max_conn_lifetime"`
}

// ScraperConfig governs the static fetch path and inter-request pacing.
type ScraperConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	ListingPath       string `mapstructure:"listing_path"`
	UserAgent         string `mapstructure:"user_agent"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	ProductDelayMs    int    `mapstructure:"product_delay_ms"`
	ListingDelayMs    int    `mapstructure:"listing_delay_ms"`
	MaxListingPages   int    `mapstructure:"max_listing_pages"`
	PreferredStrategy string `mapstructure:"strategy"`
}

// BrowserConfig configures the interactive chromedp strategy.
type BrowserConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	SettleMs      int  `mapstructure:"settle_ms"`
}

// QueueConfig sets sweep retry and timeout behavior.
type QueueConfig struct {
	Depth          int `mapstructure:"depth"`
	MaxAttempts    int `mapstructure:"max_attempts"`
	BackoffBaseSec int `mapstructure:"backoff_base_seconds"`
	TimeoutSec     int `mapstructure:"timeout_seconds"`
}

// SchedulerConfig controls the recurring sweep trigger.
type SchedulerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
}

// Strategy names accepted for scraper.strategy.
const (
	StrategyStatic  = "static"
	StrategyBrowser = "browser"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STOCKTRACKER")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("scraper.base_url", "https://www.canadacomputers.com/en")
	v.SetDefault("scraper.listing_path", "/914/graphics-cards")
	v.SetDefault("scraper.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("scraper.timeout_seconds", 15)
	v.SetDefault("scraper.product_delay_ms", 500)
	v.SetDefault("scraper.listing_delay_ms", 300)
	v.SetDefault("scraper.max_listing_pages", 5)
	v.SetDefault("scraper.strategy", StrategyStatic)
	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.settle_ms", 500)
	v.SetDefault("queue.depth", 16)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.backoff_base_seconds", 60)
	v.SetDefault("queue.timeout_seconds", 300)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_minutes", 10)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.TimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.timeout_seconds must be > 0")
	}
	if c.Scraper.ProductDelayMs < 0 {
		return fmt.Errorf("scraper.product_delay_ms must be >= 0")
	}
	switch c.Scraper.PreferredStrategy {
	case StrategyStatic, StrategyBrowser:
	default:
		return fmt.Errorf("scraper.strategy must be %q or %q", StrategyStatic, StrategyBrowser)
	}
	if c.Scraper.PreferredStrategy == StrategyBrowser && !c.Browser.Enabled {
		return fmt.Errorf("browser.enabled must be true when scraper.strategy is %q", StrategyBrowser)
	}
	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue.max_attempts must be > 0")
	}
	if c.Queue.TimeoutSec <= 0 {
		return fmt.Errorf("queue.timeout_seconds must be > 0")
	}
	if c.Scheduler.Enabled && c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler.interval_minutes must be > 0 when scheduler is enabled")
	}
	return nil
}

// SweepTimeout converts the queue timeout into a duration.
func (c Config) SweepTimeout() time.Duration {
	return time.Duration(c.Queue.TimeoutSec) * time.Second
}

// ProductDelay returns the inter-product pacing duration.
func (c Config) ProductDelay() time.Duration {
	return time.Duration(c.Scraper.ProductDelayMs) * time.Millisecond
}

// ListingDelay returns the pacing between paginated listing fetches.
func (c Config) ListingDelay() time.Duration {
	return time.Duration(c.Scraper.ListingDelayMs) * time.Millisecond
}
