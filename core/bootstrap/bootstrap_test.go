package bootstrap

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/systembot/core/config"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunJSONDriverSkipsDatabase(t *testing.T) {
	cfg := &coreconfig.Config{Storage: coreconfig.StorageConfig{Driver: coreconfig.StorageJSON}}
	res, err := Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: noLogger,
		Connect: func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error) {
			t.Fatal("connect must not run for the json driver")
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.DB != nil {
		t.Fatal("unexpected database handle")
	}
	if err := res.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRunPropagatesFailures(t *testing.T) {
	if _, err := Run(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}

	boom := errors.New("boom")
	cfg := &coreconfig.Config{}
	_, err := Run(context.Background(), Options{Config: cfg, LoggerInit: func(*coreconfig.Config) error { return boom }})
	if !errors.Is(err, boom) {
		t.Fatalf("logger failure = %v", err)
	}

	cfg.Storage.Driver = coreconfig.StoragePostgres
	_, err = Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: noLogger,
		Migrations: fstest.MapFS{"migrations/0001_x.up.sql": {Data: []byte("select 1;")}},
		Connect: func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error) {
			return nil, boom
		},
		Migrate: func(context.Context, coreconfig.DatabaseConfig, fs.FS, string) error {
			t.Fatal("migrate must not run after a failed connect")
			return nil
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("connect failure = %v", err)
	}
}
