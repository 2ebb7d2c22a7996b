// Package config holds the process configuration: a YAML file overlaid
// with environment variables, then validated and defaulted by Normalize.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	RunModeWebhook  = "webhook"
	RunModeLongpoll = "longpoll"
)

// Storage drivers.
const (
	StorageJSON     = "json"
	StoragePostgres = "postgres"
)

// Update kinds accepted by rate_limit.exclude_updates.
const (
	UpdateCallback = "callback"
	UpdateMessage  = "message"
)

type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds is how long getUpdates waits; 0 takes the
	// poller default.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig is required in webhook mode only.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
	// KeysOrder is a comma separated key list for line layout, or "default".
	KeysOrder string `yaml:"keys_order"`
	// DebugSample is "n/d"; "0/0" logs every sampled debug line.
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile is "prod", "dev" or "debug"; the latter two default to kv output.
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// RateLimitConfig is the per-user flood guard. ExcludeUpdates lists update
// kinds ("callback", "message") it never throttles.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// BotConfig carries the behaviour of the system workflows.
type BotConfig struct {
	// AuthorizedUsers is the allow-list of Telegram user ids permitted to use the bot.
	AuthorizedUsers    []int64 `yaml:"authorized_users" envconfig:"AUTHORIZED_USERS"`
	CooldownSeconds    int     `yaml:"cooldown_seconds" envconfig:"COOLDOWN_SECONDS"`
	FlowTimeoutSeconds int     `yaml:"flow_timeout_seconds" envconfig:"FLOW_TIMEOUT_SECONDS"`
}

type StorageConfig struct {
	Driver          string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	JSONPath        string `yaml:"json_path" envconfig:"STORAGE_JSON_PATH"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds" envconfig:"STORAGE_CACHE_TTL_SECONDS"`
}

// DatabaseConfig is used by the postgres driver.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
}

type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Bot       BotConfig       `yaml:"bot"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// CoreConfig lets *Config satisfy the runner's ConfigCarrier.
func (c *Config) CoreConfig() *Config { return c }

// Load reads the YAML file at path, applies environment overrides and
// normalizes the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := new(Config)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if err := Normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
