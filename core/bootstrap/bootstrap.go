// Package bootstrap prepares process infrastructure ahead of the bot: the
// logger first, then the database when the postgres driver is selected.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/systembot/core/config"
	coredatabase "github.com/m3rciful/systembot/core/database"
	"github.com/m3rciful/systembot/core/logger"
)

var errNilConfig = errors.New("bootstrap: nil config")

// Options configure Run. The function fields are test seams and default to
// logger.InitLogger, database.Connect and database.RunMigrations.
type Options struct {
	Config *coreconfig.Config

	// Migrations holds the SQL files applied when the postgres driver is
	// selected; nil skips migrating.
	Migrations    fs.FS
	MigrationsDir string

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(context.Context, coreconfig.DatabaseConfig, fs.FS, string) error
}

func (o Options) withDefaults() Options {
	if o.LoggerInit == nil {
		o.LoggerInit = logger.InitLogger
	}
	if o.Connect == nil {
		o.Connect = coredatabase.Connect
	}
	if o.Migrate == nil {
		o.Migrate = coredatabase.RunMigrations
	}
	return o
}

// Result is the infrastructure Run opened. DB is nil unless the postgres
// driver is configured.
type Result struct {
	DB *sqlx.DB
}

// Close releases what Run opened.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errNilConfig
	}
	opts = opts.withDefaults()
	if err := opts.LoggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger: %w", err)
	}
	if cfg.Storage.Driver != coreconfig.StoragePostgres {
		return &Result{}, nil
	}

	db, err := opts.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database: %w", err)
	}
	if opts.Migrations == nil {
		return &Result{DB: db}, nil
	}
	if err := opts.Migrate(ctx, cfg.Database, opts.Migrations, opts.MigrationsDir); err != nil {
		return nil, errors.Join(fmt.Errorf("bootstrap: migrations: %w", err), db.Close())
	}
	return &Result{DB: db}, nil
}
