package config

import (
	"fmt"
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/ifuryst/postpilot/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Generator GeneratorConfig `yaml:"generator"`
	Trending  TrendingConfig  `yaml:"trending"`
	Publisher PublisherConfig `yaml:"publisher"`
	Events    EventsConfig    `yaml:"events"`
	Auth      AuthConfig      `yaml:"auth"`
	Notion    NotionConfig    `yaml:"notion"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type SchedulerConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Timezone          string `yaml:"timezone"`
	Workers           int    `yaml:"workers"`
	GenerationTimeout string `yaml:"generation_timeout"`
	PublishTimeout    string `yaml:"publish_timeout"`
	StalePostAfter    string `yaml:"stale_post_after"`
	StatsInterval     string `yaml:"stats_interval"`
}

type GeneratorConfig struct {
	Provider    string  `yaml:"provider"` // openai | gemini
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Tone        string  `yaml:"tone"`
}

type TrendingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	FeedURL  string `yaml:"feed_url"`
	Timeout  string `yaml:"timeout"`
	CacheTTL string `yaml:"cache_ttl"`
	MaxItems int    `yaml:"max_items"`
}

type PublisherConfig struct {
	Twitter PlatformConfig `yaml:"twitter"`
	TikTok  PlatformConfig `yaml:"tiktok"`
}

type PlatformConfig struct {
	Enabled       bool    `yaml:"enabled"`
	BaseURL       string  `yaml:"base_url"`
	RatePerMinute float64 `yaml:"rate_per_minute"`
	Timeout       string  `yaml:"timeout"`
}

type EventsConfig struct {
	NatsURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// NotionConfig imports pages of one Notion database into a user's knowledge
// base.
type NotionConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Token        string `yaml:"token"`
	DatabaseID   string `yaml:"database_id"`
	APIVersion   string `yaml:"api_version"`
	BaseURL      string `yaml:"base_url"`
	UserID       uint   `yaml:"user_id"`
	Category     string `yaml:"category"`
	StatusFilter string `yaml:"status_filter"`
	SyncInterval string `yaml:"sync_interval"`
}

type AuthConfig struct {
	TOTPSecret string `yaml:"totp_secret"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5334
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}

	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "Local"
	}
	if cfg.Scheduler.Workers == 0 {
		cfg.Scheduler.Workers = 4
	}
	if cfg.Scheduler.GenerationTimeout == "" {
		cfg.Scheduler.GenerationTimeout = "60s"
	}
	if cfg.Scheduler.PublishTimeout == "" {
		cfg.Scheduler.PublishTimeout = "30s"
	}
	if cfg.Scheduler.StalePostAfter == "" {
		cfg.Scheduler.StalePostAfter = "15m"
	}
	if cfg.Scheduler.StatsInterval == "" {
		cfg.Scheduler.StatsInterval = "10m"
	}

	if cfg.Generator.Provider == "" {
		cfg.Generator.Provider = "openai"
	}
	if cfg.Generator.Temperature == 0 {
		cfg.Generator.Temperature = 0.8
	}
	if cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = 500
	}
	if cfg.Generator.Tone == "" {
		cfg.Generator.Tone = "professional"
	}

	if cfg.Trending.FeedURL == "" {
		cfg.Trending.FeedURL = "https://trends.google.com/trends/trendingsearches/daily/rss?geo=US"
	}
	if cfg.Trending.Timeout == "" {
		cfg.Trending.Timeout = "10s"
	}
	if cfg.Trending.CacheTTL == "" {
		cfg.Trending.CacheTTL = "1h"
	}
	if cfg.Trending.MaxItems == 0 {
		cfg.Trending.MaxItems = 10
	}

	if cfg.Publisher.Twitter.BaseURL == "" {
		cfg.Publisher.Twitter.BaseURL = "https://api.twitter.com"
	}
	if cfg.Publisher.TikTok.BaseURL == "" {
		cfg.Publisher.TikTok.BaseURL = "https://open.tiktokapis.com"
	}

	if cfg.Notion.APIVersion == "" {
		cfg.Notion.APIVersion = "2022-06-28"
	}
	if cfg.Notion.BaseURL == "" {
		cfg.Notion.BaseURL = "https://api.notion.com"
	}
	if cfg.Notion.Category == "" {
		cfg.Notion.Category = "notion"
	}
	if cfg.Notion.SyncInterval == "" {
		cfg.Notion.SyncInterval = "1h"
	}

	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "postpilot.firings"
	}
}

// Validate reports the first invalid setting.
func (cfg *Config) Validate() error {
	if cfg.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler.workers must be >= 1, got %d", cfg.Scheduler.Workers)
	}
	switch cfg.Generator.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown generator.provider %q", cfg.Generator.Provider)
	}

	durations := map[string]string{
		"scheduler.generation_timeout": cfg.Scheduler.GenerationTimeout,
		"scheduler.publish_timeout":    cfg.Scheduler.PublishTimeout,
		"scheduler.stale_post_after":   cfg.Scheduler.StalePostAfter,
		"scheduler.stats_interval":     cfg.Scheduler.StatsInterval,
		"trending.timeout":             cfg.Trending.Timeout,
		"trending.cache_ttl":           cfg.Trending.CacheTTL,
		"notion.sync_interval":         cfg.Notion.SyncInterval,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}
	if cfg.Notion.Enabled {
		if cfg.Notion.Token == "" || cfg.Notion.DatabaseID == "" {
			return fmt.Errorf("notion.token and notion.database_id are required when notion is enabled")
		}
		if cfg.Notion.UserID == 0 {
			return fmt.Errorf("notion.user_id is required when notion is enabled")
		}
	}
	for name, p := range map[string]PlatformConfig{"twitter": cfg.Publisher.Twitter, "tiktok": cfg.Publisher.TikTok} {
		if p.Timeout == "" {
			continue
		}
		if _, err := time.ParseDuration(p.Timeout); err != nil {
			return fmt.Errorf("invalid publisher.%s.timeout %q: %w", name, p.Timeout, err)
		}
	}

	return nil
}

// Duration parses a value already checked by Validate, falling back to def.
func Duration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
