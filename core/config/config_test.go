package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc"},
		Bot:      BotConfig{AuthorizedUsers: []int64{42}},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q, want %q", cfg.Telegram.RunMode, RunModeLongpoll)
	}
	if cfg.Bot.CooldownSeconds != 7 {
		t.Fatalf("cooldown = %d, want 7", cfg.Bot.CooldownSeconds)
	}
	if cfg.Bot.FlowTimeoutSeconds != 300 {
		t.Fatalf("flow timeout = %d, want 300", cfg.Bot.FlowTimeoutSeconds)
	}
	if cfg.Storage.Driver != StorageJSON || cfg.Storage.JSONPath != "data/systems.json" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Storage.CacheTTLSeconds != 10 {
		t.Fatalf("cache ttl = %d, want 10", cfg.Storage.CacheTTLSeconds)
	}
}

func TestNormalizeRejectsEmptyAllowList(t *testing.T) {
	cfg := validConfig()
	cfg.Bot.AuthorizedUsers = nil
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for empty authorized_users")
	}
}

func TestNormalizeRejectsUnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Driver = "redis"
	if err := Normalize(cfg); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestNormalizePostgresRequiresHost(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Driver = "Postgres"
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error without database host")
	}
	cfg.Database.Host = "localhost"
	cfg.Database.Name = "systems"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Storage.Driver != StoragePostgres || cfg.Database.Port != "5432" {
		t.Fatalf("unexpected postgres defaults: %+v %+v", cfg.Storage, cfg.Database)
	}
}

func TestNormalizeWebhookRequiresURL(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "webhook"
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for webhook without url")
	}
}

func TestLoadAppliesEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("telegram:\n  token: from-file\nbot:\n  authorized_users: [1]\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AUTHORIZED_USERS", "10,20")
	t.Setenv("COOLDOWN_SECONDS", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "from-file" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Bot.AuthorizedUsers) != 2 || cfg.Bot.AuthorizedUsers[1] != 20 {
		t.Fatalf("authorized users = %v", cfg.Bot.AuthorizedUsers)
	}
	if cfg.Bot.CooldownSeconds != 3 {
		t.Fatalf("cooldown = %d, want 3", cfg.Bot.CooldownSeconds)
	}
}

func TestNormalizeRateLimitKinds(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.ExcludeUpdates = []string{" Callback ", ""}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.RateLimit.ExcludeUpdates[0] != UpdateCallback {
		t.Fatalf("exclude = %q", cfg.RateLimit.ExcludeUpdates)
	}
	cfg.RateLimit.ExcludeUpdates = []string{"inline"}
	if err := Normalize(cfg); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestNormalizeRejectsNegativeCooldown(t *testing.T) {
	cfg := validConfig()
	cfg.Bot.CooldownSeconds = -1
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for negative cooldown")
	}
}
