// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Target    TargetConfig    `mapstructure:"target"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Index     IndexConfig     `mapstructure:"index"`
	Chat      ChatConfig      `mapstructure:"chat"`
	DB        DBConfig        `mapstructure:"db"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port               int `mapstructure:"port"`
	RequestTimeoutSecs int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig protects the admin routes.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// TargetConfig names the site this deployment serves.
type TargetConfig struct {
	// URL is the crawl entry point and scope anchor.
	URL string `mapstructure:"url"`
	// PathPrefix optionally narrows the scope below the entry path.
	PathPrefix string `mapstructure:"path_prefix"`
	// SiteName labels the chat assistant; defaults to the URL host.
	SiteName string `mapstructure:"site_name"`
}

// CrawlerConfig governs the crawl loop.
type CrawlerConfig struct {
	PolitenessDelayMs    int  `mapstructure:"politeness_delay_ms"`
	MaxPages             int  `mapstructure:"max_pages"`
	JobTimeoutMinutes    int  `mapstructure:"job_timeout_minutes"`
	WipePages            bool `mapstructure:"wipe_pages"`
	ScrapeFrequencyHours int  `mapstructure:"scrape_frequency_hours"`
}

// FetcherConfig selects and tunes the page fetcher.
type FetcherConfig struct {
	// Mode is "headless" (chromedp) or "static" (plain HTTP).
	Mode              string  `mapstructure:"mode"`
	UserAgent         string  `mapstructure:"user_agent"`
	NavTimeoutSecs    int     `mapstructure:"nav_timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// ChunkingConfig sets the word-window parameters.
type ChunkingConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"`
	APIURL    string `mapstructure:"api_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	BatchSize int    `mapstructure:"batch_size"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	// Provider is "postgres" or "memory".
	Provider string `mapstructure:"provider"`
	// StrictReset makes a failed drop-and-recreate abort the reindex.
	StrictReset bool `mapstructure:"strict_reset"`
}

// ChatConfig configures the answer model.
type ChatConfig struct {
	APIURL    string `mapstructure:"api_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
	TopK      int    `mapstructure:"top_k"`
}

// DBConfig controls the Postgres connection. Provider "memory" runs
// without a database.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
}

// StorageConfig controls the optional raw-HTML archive.
type StorageConfig struct {
	// Provider is "gcs", "memory", or "none".
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// PubSubConfig holds the job-event topic settings.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk and environment. Environment variables
// use the ECHOCHAT_ prefix with underscores (ECHOCHAT_TARGET_URL).
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ECHOCHAT")
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
	// Keys without a meaningful default still need registering so that
	// AutomaticEnv can populate them during Unmarshal.
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("target.url", "")
	v.SetDefault("target.path_prefix", "")
	v.SetDefault("target.site_name", "")
	v.SetDefault("embedding.api_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("chat.api_url", "")
	v.SetDefault("chat.api_key", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("crawler.politeness_delay_ms", 500)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.job_timeout_minutes", 30)
	v.SetDefault("crawler.wipe_pages", true)
	v.SetDefault("crawler.scrape_frequency_hours", 0)
	v.SetDefault("fetcher.mode", "headless")
	v.SetDefault("fetcher.user_agent", "echochat-bot/1.0")
	v.SetDefault("fetcher.nav_timeout_seconds", 45)
	v.SetDefault("fetcher.requests_per_second", 2.0)
	v.SetDefault("chunking.size", 300)
	v.SetDefault("chunking.overlap", 50)
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("index.provider", "memory")
	v.SetDefault("index.strict_reset", false)
	v.SetDefault("chat.model", "claude-sonnet-4-20250514")
	v.SetDefault("chat.max_tokens", 1024)
	v.SetDefault("chat.top_k", 5)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("storage.provider", "none")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and consistent provider choices.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Target.URL == "" {
		return fmt.Errorf("target.url is required")
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be > 0")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, chunking.size)")
	}
	switch c.Fetcher.Mode {
	case "headless", "static":
	default:
		return fmt.Errorf("fetcher.mode must be \"headless\" or \"static\"")
	}
	switch c.Index.Provider {
	case "postgres", "memory":
	default:
		return fmt.Errorf("index.provider must be \"postgres\" or \"memory\"")
	}
	switch c.DB.Provider {
	case "postgres", "memory":
	default:
		return fmt.Errorf("db.provider must be \"postgres\" or \"memory\"")
	}
	if (c.DB.Provider == "postgres" || c.Index.Provider == "postgres") && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required for the postgres provider")
	}
	switch c.Storage.Provider {
	case "gcs", "memory", "none":
	default:
		return fmt.Errorf("storage.provider must be \"gcs\", \"memory\", or \"none\"")
	}
	if c.Storage.Provider == "gcs" && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required for the gcs provider")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic are required when pubsub is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// PolitenessDelay returns the crawl delay as a duration.
func (c Config) PolitenessDelay() time.Duration {
	return time.Duration(c.Crawler.PolitenessDelayMs) * time.Millisecond
}

// JobTimeout returns the wall-clock job budget.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Crawler.JobTimeoutMinutes) * time.Minute
}

// RequestTimeout returns the per-request HTTP timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSecs) * time.Second
}

// NavTimeout returns the fetcher navigation timeout.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Fetcher.NavTimeoutSecs) * time.Second
}

// ScrapeInterval returns the scheduler interval; 0 disables it.
func (c Config) ScrapeInterval() time.Duration {
	return time.Duration(c.Crawler.ScrapeFrequencyHours) * time.Hour
}
