// Package cached decorates a systems.Store with a short-lived listing cache.
package cached

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/m3rciful/systembot/core/logger"
	"github.com/m3rciful/systembot/internal/systems"
)

const allKey = "all_systems"

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "systembot_store_cache_hits_total",
		Help: "Listing requests served from the record cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "systembot_store_cache_misses_total",
		Help: "Listing requests that had to read the backing store.",
	})
)

// Store caches All() for ttl and purges on every successful write.
// Get always reads through so confirm steps see current data.
type Store struct {
	next  systems.Store
	cache *expirable.LRU[string, []systems.Record]
}

var _ systems.Store = (*Store)(nil)

// New wraps next. A non-positive ttl disables caching.
func New(next systems.Store, ttl time.Duration) systems.Store {
	if ttl <= 0 {
		return next
	}
	return &Store{
		next:  next,
		cache: expirable.NewLRU[string, []systems.Record](1, nil, ttl),
	}
}

// All returns the cached listing when fresh.
func (s *Store) All(ctx context.Context) ([]systems.Record, error) {
	if recs, ok := s.cache.Get(allKey); ok {
		cacheHitsTotal.Inc()
		logger.Debug(ctx, "store", "cache", slog.String("cache", "hit"), slog.Int("count", len(recs)))
		return cloneAll(recs), nil
	}
	cacheMissesTotal.Inc()
	recs, err := s.next.All(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Add(allKey, cloneAll(recs))
	logger.Debug(ctx, "store", "cache", slog.String("cache", "miss"), slog.Int("count", len(recs)))
	return recs, nil
}

// Get reads through to the backing store.
func (s *Store) Get(ctx context.Context, name string) (systems.Record, bool, error) {
	return s.next.Get(ctx, name)
}

// Upsert writes through and purges the listing.
func (s *Store) Upsert(ctx context.Context, rec systems.Record) error {
	if err := s.next.Upsert(ctx, rec); err != nil {
		return err
	}
	s.purge(ctx)
	return nil
}

// Remove deletes through and purges the listing when something was removed.
func (s *Store) Remove(ctx context.Context, name string) (bool, error) {
	removed, err := s.next.Remove(ctx, name)
	if err != nil {
		return false, err
	}
	if removed {
		s.purge(ctx)
	}
	return removed, nil
}

func (s *Store) purge(ctx context.Context) {
	s.cache.Purge()
	logger.Debug(ctx, "store", "cache", slog.String("cache", "purge"))
}

func cloneAll(recs []systems.Record) []systems.Record {
	if recs == nil {
		return nil
	}
	out := make([]systems.Record, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}
