package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalid wraps every validation failure reported by Normalize.
var ErrInvalid = errors.New("config: invalid")

const (
	defaultCooldownSeconds    = 7
	defaultFlowTimeoutSeconds = 300
	defaultCacheTTLSeconds    = 10
	defaultJSONPath           = "data/systems.json"
	defaultDBPort             = "5432"
	defaultDBSSLMode          = "disable"
	defaultDBConnections      = 4
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func fold(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Normalize validates cfg and fills in the defaults, section by section.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return invalid("nil config")
	}
	steps := []func() error{
		cfg.normalizeTransport,
		cfg.RateLimit.normalize,
		cfg.Bot.normalize,
		cfg.normalizeStorage,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) normalizeTransport() error {
	if c.Telegram.Token == "" {
		return invalid("telegram.token is required")
	}
	mode := fold(c.Telegram.RunMode)
	switch mode {
	case "", "polling", RunModeLongpoll:
		mode = RunModeLongpoll
		if c.Telegram.LongPollTimeoutSeconds < 0 {
			return invalid("telegram.longpoll_timeout_seconds must be >= 0")
		}
	case RunModeWebhook:
		wh := c.Webhook
		switch {
		case strings.TrimSpace(wh.URL) == "":
			return invalid("webhook.url is required in webhook mode")
		case strings.TrimSpace(wh.Listen) == "":
			return invalid("webhook.listen is required in webhook mode")
		case wh.Port <= 0:
			return invalid("webhook.port must be > 0 in webhook mode")
		}
	default:
		return invalid("telegram.run_mode %q; want webhook or longpoll", c.Telegram.RunMode)
	}
	c.Telegram.RunMode = mode
	return nil
}

func (r *RateLimitConfig) normalize() error {
	kinds := []string{UpdateCallback, UpdateMessage}
	for i, v := range r.ExcludeUpdates {
		k := fold(v)
		if k != "" && !slices.Contains(kinds, k) {
			return invalid("rate_limit.exclude_updates %q; want callback or message", v)
		}
		r.ExcludeUpdates[i] = k
	}
	return nil
}

func (b *BotConfig) normalize() error {
	if len(b.AuthorizedUsers) == 0 {
		return invalid("bot.authorized_users must list at least one user id")
	}
	if i := slices.IndexFunc(b.AuthorizedUsers, func(id int64) bool { return id <= 0 }); i >= 0 {
		return invalid("bot.authorized_users entry %d", b.AuthorizedUsers[i])
	}
	if err := defaultSeconds(&b.CooldownSeconds, defaultCooldownSeconds, "bot.cooldown_seconds"); err != nil {
		return err
	}
	return defaultSeconds(&b.FlowTimeoutSeconds, defaultFlowTimeoutSeconds, "bot.flow_timeout_seconds")
}

// defaultSeconds rejects a negative *v and replaces zero with def.
func defaultSeconds(v *int, def int, key string) error {
	switch {
	case *v < 0:
		return invalid("%s must be >= 0", key)
	case *v == 0:
		*v = def
	}
	return nil
}

func (c *Config) normalizeStorage() error {
	s, db := &c.Storage, &c.Database
	driver := fold(s.Driver)
	switch driver {
	case "", StorageJSON:
		driver = StorageJSON
		if strings.TrimSpace(s.JSONPath) == "" {
			s.JSONPath = defaultJSONPath
		}
	case StoragePostgres:
		if strings.TrimSpace(db.Host) == "" || strings.TrimSpace(db.Name) == "" {
			return invalid("database.host and database.name are required for the postgres driver")
		}
		if db.Port == "" {
			db.Port = defaultDBPort
		}
		if db.SSLMode == "" {
			db.SSLMode = defaultDBSSLMode
		}
		if db.MaxConnections <= 0 {
			db.MaxConnections = defaultDBConnections
		}
	default:
		return invalid("storage.driver %q; want json or postgres", s.Driver)
	}
	s.Driver = driver
	return defaultSeconds(&s.CacheTTLSeconds, defaultCacheTTLSeconds, "storage.cache_ttl_seconds")
}
