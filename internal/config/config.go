// Package config provides YAML-based configuration loading for linegrade.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. LG_RATING_API_KEY.
const EnvPrefix = "LG"

// Config is the top-level configuration, loaded from linegrade.yaml.
type Config struct {
	Database   DatabaseConfig   `yaml:"database" envconfig:"database"`
	Queue      QueueConfig      `yaml:"queue" envconfig:"queue"`
	Rating     RatingConfig     `yaml:"rating" envconfig:"rating"`
	Cache      CacheConfig      `yaml:"cache" envconfig:"cache"`
	Dispatch   DispatchConfig   `yaml:"dispatch" envconfig:"dispatch"`
	Supervisor SupervisorConfig `yaml:"supervisor" envconfig:"supervisor"`
	Alerts     AlertsConfig     `yaml:"alerts" envconfig:"alerts"`
	Server     ServerConfig     `yaml:"server" envconfig:"server"`
	Log        LogConfig        `yaml:"log" envconfig:"log"`
}

// DatabaseConfig selects and addresses the backing SQL database.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" envconfig:"driver"` // "mysql" or "sqlite"
	Host     string `yaml:"host" envconfig:"host"`
	Port     int    `yaml:"port" envconfig:"port"`
	User     string `yaml:"user" envconfig:"user"`
	Password string `yaml:"password" envconfig:"password"`
	Name     string `yaml:"name" envconfig:"name"`
	Path     string `yaml:"path" envconfig:"path"` // sqlite file
}

// QueueConfig controls batching, retries, and worker polling.
type QueueConfig struct {
	BatchSize    int           `yaml:"batch_size" envconfig:"batch_size"`
	MaxAttempts  int           `yaml:"max_attempts" envconfig:"max_attempts"`
	Lease        time.Duration `yaml:"lease" envconfig:"lease"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"poll_interval"`
	Workers      int           `yaml:"workers" envconfig:"workers"`
}

// RatingConfig holds the settings for the external rating service.
type RatingConfig struct {
	BaseURL        string        `yaml:"base_url" envconfig:"base_url"`
	APIKey         string        `yaml:"api_key" envconfig:"api_key"`
	Model          string        `yaml:"model" envconfig:"model"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"timeout"`
	MaxConcurrency int           `yaml:"max_concurrency" envconfig:"max_concurrency"`
	RetryAttempts  int           `yaml:"retry_attempts" envconfig:"retry_attempts"`
}

// CacheConfig sizes the in-process phrase cache that fronts the table.
type CacheConfig struct {
	MemoryEntries int  `yaml:"memory_entries" envconfig:"memory_entries"`
	Disabled      bool `yaml:"disabled" envconfig:"disabled"`
}

// DispatchConfig controls which transcript speakers count as the sales rep.
type DispatchConfig struct {
	RepSpeakers []string `yaml:"rep_speakers" envconfig:"rep_speakers"`
}

// SupervisorConfig controls the lease reclaim and alert sweep schedule.
type SupervisorConfig struct {
	Schedule string `yaml:"schedule" envconfig:"schedule"` // cron expression or @every
	Alert    bool   `yaml:"alert" envconfig:"alert"`
}

// AlertsConfig configures where failed-job alerts are posted.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack" envconfig:"slack"`
	Discord DiscordConfig `yaml:"discord" envconfig:"discord"`
}

// SlackConfig holds Slack bot settings.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token" envconfig:"bot_token"`
	ChannelID string `yaml:"channel_id" envconfig:"channel_id"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token" envconfig:"bot_token"`
	ChannelID string `yaml:"channel_id" envconfig:"channel_id"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" envconfig:"port"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"level"`
	Format string `yaml:"format" envconfig:"format"` // "json" or "console"
}

// Default values applied when the config leaves a field unset.
const (
	DefaultBatchSize      = 5
	DefaultMaxAttempts    = 3
	DefaultLease          = 2 * time.Minute
	DefaultPollInterval   = 2 * time.Second
	DefaultWorkers        = 2
	DefaultRatingTimeout  = 30 * time.Second
	DefaultMaxConcurrency = 4
	DefaultRetryAttempts  = 3
	DefaultMemoryEntries  = 10000
	DefaultSchedule       = "@every 30s"
	DefaultPort           = 8080
)

// DefaultRepSpeakers are the speaker tags treated as the sales rep.
var DefaultRepSpeakers = []string{"rep", "sales_rep", "salesperson", "agent"}

// Load reads a YAML config file from path and returns a validated Config.
// Environment variables prefixed with LG_ override file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "linegrade.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "linegrade"
		}
	}

	if c.Queue.BatchSize == 0 {
		c.Queue.BatchSize = DefaultBatchSize
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = DefaultMaxAttempts
	}
	if c.Queue.Lease == 0 {
		c.Queue.Lease = DefaultLease
	}
	if c.Queue.PollInterval == 0 {
		c.Queue.PollInterval = DefaultPollInterval
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = DefaultWorkers
	}

	if c.Rating.Timeout == 0 {
		c.Rating.Timeout = DefaultRatingTimeout
	}
	if c.Rating.MaxConcurrency == 0 {
		c.Rating.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.Rating.RetryAttempts == 0 {
		c.Rating.RetryAttempts = DefaultRetryAttempts
	}

	if c.Cache.MemoryEntries == 0 {
		c.Cache.MemoryEntries = DefaultMemoryEntries
	}
	if len(c.Dispatch.RepSpeakers) == 0 {
		c.Dispatch.RepSpeakers = append([]string(nil), DefaultRepSpeakers...)
	}
	if c.Supervisor.Schedule == "" {
		c.Supervisor.Schedule = DefaultSchedule
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (mysql, sqlite)", c.Database.Driver))
	}
	if c.Queue.BatchSize < 1 {
		errs = append(errs, "queue.batch_size must be positive")
	}
	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, "queue.max_attempts must be at least 1")
	}
	if c.Queue.Lease < 0 {
		errs = append(errs, "queue.lease must be positive")
	}
	if c.Queue.Workers < 1 {
		errs = append(errs, "queue.workers must be positive")
	}
	if c.Rating.MaxConcurrency < 1 {
		errs = append(errs, "rating.max_concurrency must be positive")
	}
	if _, err := cron.ParseStandard(c.Supervisor.Schedule); err != nil {
		errs = append(errs, fmt.Sprintf("supervisor.schedule %q: %v", c.Supervisor.Schedule, err))
	}
	if c.Alerts.Slack.BotToken != "" && c.Alerts.Slack.ChannelID == "" {
		errs = append(errs, "alerts.slack.channel_id is required with a bot token")
	}
	if c.Alerts.Discord.BotToken != "" && c.Alerts.Discord.ChannelID == "" {
		errs = append(errs, "alerts.discord.channel_id is required with a bot token")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not supported (json, console)", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
