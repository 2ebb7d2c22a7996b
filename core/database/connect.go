// Package database opens the Postgres pool and applies schema migrations.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	coreconfig "github.com/m3rciful/systembot/core/config"
	"github.com/m3rciful/systembot/core/logger"
)

const (
	driverName   = "postgres"
	connectLimit = 5 * time.Second
	readyPoll    = 2 * time.Second
)

// DSN renders the libpq key/value connection string for cfg.
func DSN(cfg coreconfig.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
}

// URL renders cfg as a postgres:// URL, the form golang-migrate expects.
func URL(cfg coreconfig.DatabaseConfig) string {
	q := url.Values{}
	q.Set("sslmode", cfg.SSLMode)
	return (&url.URL{
		Scheme:   driverName,
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + cfg.Port,
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}).String()
}

func target(cfg coreconfig.DatabaseConfig) []slog.Attr {
	return []slog.Attr{
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
	}
}

// Connect opens a pool of at most cfg.MaxConnections and checks it answers
// within a few seconds.
func Connect(ctx context.Context, cfg coreconfig.DatabaseConfig) (*sqlx.DB, error) {
	start := time.Now()
	db, err := sqlx.Open(driverName, DSN(cfg))
	if err == nil {
		db.SetMaxOpenConns(cfg.MaxConnections)
		db.SetMaxIdleConns(cfg.MaxConnections)
		pingCtx, cancel := context.WithTimeout(ctx, connectLimit)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			_ = db.Close()
		}
	}
	attrs := append(target(cfg), slog.Duration("duration", logger.Took(start)))
	if err != nil {
		logger.Error(ctx, "db", "db.connect", append(attrs, slog.String("status", "fail"), logger.Err(err))...)
		return nil, fmt.Errorf("database: connect %s: %w", cfg.Host, err)
	}
	logger.Info(ctx, "db", "db.connect", append(attrs,
		slog.String("status", "ok"),
		slog.Int("pool_open", cfg.MaxConnections),
	)...)
	return db, nil
}

// WaitForPostgres pings dsn every couple of seconds until it answers, ctx
// ends or timeout elapses.
func WaitForPostgres(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("database: open: %w", err)
	}
	defer db.Close()

	tick := time.NewTicker(readyPoll)
	defer tick.Stop()
	for attempt := 1; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}
		logger.Debug(ctx, "db", "db.wait", slog.String("status", "retry"), slog.Int("attempt", attempt), logger.Err(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("database: not ready after %s: %w", timeout, err)
		case <-tick.C:
		}
	}
}
