// Package postgres implements systems.Store on a Postgres table through sqlx.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/systembot/internal/systems"
)

// Migrations holds the schema applied by core/database.RunMigrations.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations holding the scripts.
const MigrationsDir = "migrations"

// Store persists records in the systems table.
type Store struct {
	db *sqlx.DB
}

var _ systems.Store = (*Store)(nil)

// New wraps an open connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type row struct {
	Name        string         `db:"name"`
	Description string         `db:"description"`
	FileURL     sql.NullString `db:"file_url"`
	FileName    sql.NullString `db:"file_name"`
	FileSize    sql.NullInt64  `db:"file_size"`
	CreatedBy   int64          `db:"created_by"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r row) record() systems.Record {
	rec := systems.Record{
		Name:        r.Name,
		Description: r.Description,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt.UTC(),
	}
	if r.FileURL.Valid && r.FileURL.String != "" {
		rec.File = &systems.File{
			URL:       r.FileURL.String,
			Name:      r.FileName.String,
			SizeBytes: r.FileSize.Int64,
		}
	}
	return rec
}

func fromRecord(rec systems.Record) row {
	r := row{
		Name:        rec.Name,
		Description: rec.Description,
		CreatedBy:   rec.CreatedBy,
		CreatedAt:   rec.CreatedAt,
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if rec.File != nil {
		r.FileURL = sql.NullString{String: rec.File.URL, Valid: true}
		r.FileName = sql.NullString{String: rec.File.Name, Valid: true}
		r.FileSize = sql.NullInt64{Int64: rec.File.SizeBytes, Valid: true}
	}
	return r
}

const selectColumns = `name, description, file_url, file_name, file_size, created_by, created_at`

// All returns every record ordered by creation time.
func (s *Store) All(ctx context.Context) ([]systems.Record, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+selectColumns+` FROM systems ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("postgres: list systems: %w", err)
	}
	out := make([]systems.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

// Get looks a record up by case-insensitive name.
func (s *Store) Get(ctx context.Context, name string) (systems.Record, bool, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `SELECT `+selectColumns+` FROM systems WHERE lower(name) = $1`, systems.Key(name))
	if errors.Is(err, sql.ErrNoRows) {
		return systems.Record{}, false, nil
	}
	if err != nil {
		return systems.Record{}, false, fmt.Errorf("postgres: get system: %w", err)
	}
	return r.record(), true, nil
}

// Upsert inserts rec or overwrites the row sharing its lower-cased name.
func (s *Store) Upsert(ctx context.Context, rec systems.Record) error {
	const q = `
INSERT INTO systems (name, description, file_url, file_name, file_size, created_by, created_at)
VALUES (:name, :description, :file_url, :file_name, :file_size, :created_by, :created_at)
ON CONFLICT ((lower(name))) DO UPDATE SET
    name        = EXCLUDED.name,
    description = EXCLUDED.description,
    file_url    = EXCLUDED.file_url,
    file_name   = EXCLUDED.file_name,
    file_size   = EXCLUDED.file_size,
    created_by  = EXCLUDED.created_by,
    created_at  = EXCLUDED.created_at`
	if _, err := s.db.NamedExecContext(ctx, q, fromRecord(rec)); err != nil {
		return fmt.Errorf("postgres: upsert system: %w", err)
	}
	return nil
}

// Remove deletes the named record and reports whether a row was affected.
func (s *Store) Remove(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM systems WHERE lower(name) = $1`, systems.Key(name))
	if err != nil {
		return false, fmt.Errorf("postgres: remove system: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: rows affected: %w", err)
	}
	return n > 0, nil
}
