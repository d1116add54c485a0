// Package config loads the engine configuration from a YAML file with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the engine.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Platform  PlatformConfig  `yaml:"platform"`
	Leadstech LeadstechConfig `yaml:"leadstech"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Engine    EngineConfig    `yaml:"engine"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis settings. An empty Addr disables Redis; the task
// registry then runs on the database alone.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PlatformConfig holds ad platform API settings.
type PlatformConfig struct {
	BaseURL           string `yaml:"base_url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	StatsBatchSize    int    `yaml:"stats_batch_size"`
	StatsBatchDelayMS int    `yaml:"stats_batch_delay_ms"`
	StatsMaxRetries   int    `yaml:"stats_max_retries"`
	StatsRetryDelayMS int    `yaml:"stats_retry_delay_ms"`
}

// Timeout returns the request timeout as a duration.
func (c PlatformConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LeadstechConfig holds revenue attribution API settings.
type LeadstechConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// TelegramConfig holds Telegram Bot API notification settings.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// EngineConfig holds run-behavior tunables shared by the suppression,
// re-enable and scaling passes.
type EngineConfig struct {
	DryRun                bool    `yaml:"dry_run"`
	LookbackDays          int     `yaml:"lookback_days"`
	ReenableROIThreshold  float64 `yaml:"reenable_roi_threshold"`
	ReenableLookbackHours int     `yaml:"reenable_lookback_hours"`
}

// SchedulerConfig holds the daily scheduler settings.
type SchedulerConfig struct {
	Enabled             bool `yaml:"enabled"`
	TickIntervalSeconds int  `yaml:"tick_interval_seconds"`
}

// TickInterval returns the poll interval as a duration.
func (c SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// Load reads the YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Platform.TimeoutSeconds == 0 {
		cfg.Platform.TimeoutSeconds = 30
	}
	if cfg.Platform.StatsBatchSize == 0 {
		cfg.Platform.StatsBatchSize = 100
	}
	if cfg.Platform.StatsBatchDelayMS == 0 {
		cfg.Platform.StatsBatchDelayMS = 500
	}
	if cfg.Platform.StatsMaxRetries == 0 {
		cfg.Platform.StatsMaxRetries = 3
	}
	if cfg.Platform.StatsRetryDelayMS == 0 {
		cfg.Platform.StatsRetryDelayMS = 1000
	}
	if cfg.Leadstech.BaseURL == "" {
		cfg.Leadstech.BaseURL = "https://api.leadstech.io"
	}
	if cfg.Engine.LookbackDays == 0 {
		cfg.Engine.LookbackDays = 3
	}
	if cfg.Engine.ReenableROIThreshold == 0 {
		cfg.Engine.ReenableROIThreshold = 10
	}
	if cfg.Engine.ReenableLookbackHours == 0 {
		cfg.Engine.ReenableLookbackHours = 72
	}
	if cfg.Scheduler.TickIntervalSeconds == 0 {
		cfg.Scheduler.TickIntervalSeconds = 30
	}

	return &cfg, nil
}

// LoadFromEnv loads the YAML file and then applies environment overrides.
// A .env file next to the binary is honored when present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}
	if base := os.Getenv("PLATFORM_BASE_URL"); base != "" {
		cfg.Platform.BaseURL = base
	}
	if key := os.Getenv("LEADSTECH_API_KEY"); key != "" {
		cfg.Leadstech.APIKey = key
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Telegram.BotToken = token
	}
	if chat := os.Getenv("TELEGRAM_CHAT_ID"); chat != "" {
		cfg.Telegram.ChatID = chat
	}

	return cfg, nil
}

// Validate rejects configurations the engine cannot start with.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Platform.BaseURL == "" {
		return fmt.Errorf("platform.base_url is required")
	}
	if c.Leadstech.Enabled && c.Leadstech.APIKey == "" {
		return fmt.Errorf("leadstech.api_key is required when leadstech is enabled")
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id are required when telegram is enabled")
	}
	return nil
}
