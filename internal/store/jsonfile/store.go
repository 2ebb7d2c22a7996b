// Package jsonfile keeps system records in a single JSON array on disk.
// Writes are atomic: JSON → temp file → fsync → rename.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/m3rciful/systembot/core/logger"
	"github.com/m3rciful/systembot/internal/systems"
)

// Store implements systems.Store on top of one JSON file.
type Store struct {
	path string
	mu   sync.Mutex
}

var _ systems.Store = (*Store)(nil)

// New returns a store backed by path. The file and its directory are
// created on the first write.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// All returns every record sorted by creation time.
func (s *Store) All(ctx context.Context) ([]systems.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Get looks a record up by case-insensitive name.
func (s *Store) Get(ctx context.Context, name string) (systems.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(ctx)
	if err != nil {
		return systems.Record{}, false, err
	}
	if i := indexOf(recs, name); i >= 0 {
		return recs[i].Clone(), true, nil
	}
	return systems.Record{}, false, nil
}

// Upsert inserts rec or replaces the record with the same key. It fails
// rather than overwrite a file it cannot read.
func (s *Store) Upsert(ctx context.Context, rec systems.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.read()
	if err != nil {
		return err
	}
	if i := indexOf(recs, rec.Name); i >= 0 {
		recs[i] = rec.Clone()
	} else {
		recs = append(recs, rec.Clone())
	}
	return s.write(ctx, recs)
}

// Remove deletes the record named name and reports whether one existed.
func (s *Store) Remove(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.read()
	if err != nil {
		return false, err
	}
	i := indexOf(recs, name)
	if i < 0 {
		return false, nil
	}
	recs = append(recs[:i], recs[i+1:]...)
	return true, s.write(ctx, recs)
}

func indexOf(recs []systems.Record, name string) int {
	key := systems.Key(name)
	for i := range recs {
		if systems.Key(recs[i].Name) == key {
			return i
		}
	}
	return -1
}

// ErrUnreadable wraps read and parse failures of the backing file.
var ErrUnreadable = errors.New("jsonfile: unreadable store file")

// load is the lenient read used by lookups: an unreadable or corrupt file
// is logged and served as empty.
func (s *Store) load(ctx context.Context) ([]systems.Record, error) {
	recs, err := s.read()
	if err != nil {
		logger.Error(ctx, "store", "load.failed",
			slog.String("driver", "json"),
			slog.String("path", s.path),
			logger.Err(err),
		)
		return nil, nil
	}
	return recs, nil
}

// read parses the file sorted by creation time. A missing or empty file
// is an empty store.
func (s *Store) read() ([]systems.Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var recs []systems.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrUnreadable, s.path, err)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	return recs, nil
}

func (s *Store) write(ctx context.Context, recs []systems.Record) error {
	if recs == nil {
		recs = []systems.Record{}
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("jsonfile: create dir %s: %w", dir, err)
	}

	tmpPath := s.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("jsonfile: create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("jsonfile: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("jsonfile: fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("jsonfile: close: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("jsonfile: rename: %w", err)
	}

	logger.Debug(ctx, "store", "write",
		slog.String("status", "ok"),
		slog.String("driver", "json"),
		slog.Int("count", len(recs)),
	)
	return nil
}
