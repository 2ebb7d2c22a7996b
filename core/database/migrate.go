package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	coreconfig "github.com/m3rciful/systembot/core/config"
	"github.com/m3rciful/systembot/core/logger"
)

const readyTimeout = 30 * time.Second

// RunMigrations waits for the database, then applies every pending up
// migration under dir in fsys.
func RunMigrations(ctx context.Context, cfg coreconfig.DatabaseConfig, fsys fs.FS, dir string) error {
	if err := WaitForPostgres(ctx, DSN(cfg), readyTimeout); err != nil {
		logger.Error(ctx, "db.migrate", "db.migrate", slog.String("status", "fail"), logger.Err(err))
		return err
	}

	files := listMigrationFiles(fsys, dir)
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("database: migrations source %s: %w", dir, err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, URL(cfg))
	if err != nil {
		logger.Error(ctx, "db.migrate", "db.migrate", slog.String("status", "fail"), logger.Err(err))
		return fmt.Errorf("database: migrator: %w", err)
	}
	defer func() {
		if err := errors.Join(m.Close()); err != nil {
			logger.Warn(ctx, "db.migrate", "close", logger.Err(err))
		}
	}()

	from := currentVersion(m)
	start := time.Now()
	upErr := m.Up()
	took := logger.Took(start)
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.Error(ctx, "db.migrate", "apply",
			slog.String("status", "fail"),
			slog.Uint64("from_ver", from),
			slog.Duration("duration", took),
			logger.Err(upErr),
		)
		return fmt.Errorf("database: apply migrations: %w", upErr)
	}

	to := currentVersion(m)
	applied := selectApplied(files, from, to)
	status := "ok"
	if len(applied) == 0 {
		status = "skip"
	}
	logger.Info(ctx, "db.migrate", "summary",
		slog.String("status", status),
		slog.Uint64("from_ver", from),
		slog.Uint64("to_ver", to),
		slog.Int("count", len(applied)),
		slog.String("payload", strings.Join(applied, ",")),
		slog.Duration("duration", took),
	)
	return nil
}

// currentVersion is 0 for a database with no migrations applied.
func currentVersion(m *migrate.Migrate) uint64 {
	v, _, err := m.Version()
	if err != nil {
		return 0
	}
	return uint64(v)
}

// listMigrationFiles returns the sorted up-migration names in dir, nil when
// dir is unreadable.
func listMigrationFiles(fsys fs.FS, dir string) []string {
	matches, err := fs.Glob(fsys, dir+"/*.up.sql")
	if err != nil || len(matches) == 0 {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimPrefix(m, dir+"/"))
	}
	slices.Sort(names)
	return names
}

// parseVersion reads the numeric prefix of "0042_name.up.sql".
func parseVersion(name string) uint64 {
	head, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(head, 10, 64)
	return v
}

// selectApplied picks the files with a version in (from, to].
func selectApplied(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		if v := parseVersion(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
