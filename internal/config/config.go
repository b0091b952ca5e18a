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
	Server  ServerConfig  `mapstructure:"server"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Index   IndexConfig   `mapstructure:"index"`
	DB      DBConfig      `mapstructure:"db"`
	Trend   TrendConfig   `mapstructure:"trend"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs frontier and fetch pool behavior.
type CrawlerConfig struct {
	Workers        int      `mapstructure:"workers"`
	MaxDepth       int      `mapstructure:"max_depth"`
	MaxAttempts    int      `mapstructure:"max_attempts"`
	UserAgent      string   `mapstructure:"user_agent"`
	MinDelayMs     int      `mapstructure:"min_delay_ms"`
	FetchTimeoutMs int      `mapstructure:"fetch_timeout_ms"`
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
	RobotsTTLMin   int      `mapstructure:"robots_ttl_minutes"`
	RespectRobots  bool     `mapstructure:"respect_robots"`
	MinRevisitMin  int      `mapstructure:"min_revisit_minutes"`
	Seeds          []string `mapstructure:"seeds"`
}

// IndexConfig locates the embedded full-text index.
type IndexConfig struct {
	Path string `mapstructure:"path"`
}

// DBConfig controls the frontier's durable URL store.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// TrendConfig tunes trending-term decay and retention.
type TrendConfig struct {
	HalfLifeMin  int `mapstructure:"half_life_minutes"`
	RetentionMin int `mapstructure:"retention_minutes"`
	BufferSize   int `mapstructure:"buffer_size"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INTELL")
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
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.max_depth", 2)
	v.SetDefault("crawler.max_attempts", 3)
	v.SetDefault("crawler.user_agent", "intellbot/1.0")
	v.SetDefault("crawler.min_delay_ms", 1000)
	v.SetDefault("crawler.fetch_timeout_ms", 10000)
	v.SetDefault("crawler.max_body_bytes", 2<<20)
	v.SetDefault("crawler.robots_ttl_minutes", 60)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.min_revisit_minutes", 24*60)
	v.SetDefault("index.path", "data/index.bleve")
	v.SetDefault("trend.half_life_minutes", 6*60)
	v.SetDefault("trend.retention_minutes", 24*60)
	v.SetDefault("trend.buffer_size", 1024)
	v.SetDefault("logging.development", false)
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be positive, got %d", c.Crawler.Workers)
	}
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must not be negative, got %d", c.Crawler.MaxDepth)
	}
	if c.Crawler.MaxAttempts <= 0 {
		return fmt.Errorf("crawler.max_attempts must be positive, got %d", c.Crawler.MaxAttempts)
	}
	if c.Crawler.MinDelayMs < 0 {
		return fmt.Errorf("crawler.min_delay_ms must not be negative, got %d", c.Crawler.MinDelayMs)
	}
	if c.Index.Path == "" {
		return fmt.Errorf("index.path must not be empty")
	}
	return nil
}

// MinDelay returns the politeness gap as a Duration.
func (c CrawlerConfig) MinDelay() time.Duration {
	return time.Duration(c.MinDelayMs) * time.Millisecond
}

// FetchTimeout returns the per-fetch timeout as a Duration.
func (c CrawlerConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

// RobotsTTL returns the robots cache lifetime as a Duration.
func (c CrawlerConfig) RobotsTTL() time.Duration {
	return time.Duration(c.RobotsTTLMin) * time.Minute
}

// MinRevisit returns the re-crawl interval as a Duration.
func (c CrawlerConfig) MinRevisit() time.Duration {
	return time.Duration(c.MinRevisitMin) * time.Minute
}

// HalfLife returns the trend decay half-life as a Duration.
func (c TrendConfig) HalfLife() time.Duration {
	return time.Duration(c.HalfLifeMin) * time.Minute
}

// Retention returns the trend retention window as a Duration.
func (c TrendConfig) Retention() time.Duration {
	return time.Duration(c.RetentionMin) * time.Minute
}
