package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/arcadia-data/querylayer/logger"
)

// DefaultTTL is used when Set is called with ttl <= 0.
const DefaultTTL = 5 * time.Minute

// Store chains cache tiers in priority order. Reads return the first
// non-expired hit; writes attempt every tier and succeed if at least one tier
// wrote. Tier failures are absorbed and logged, never surfaced: a fully
// degraded store behaves as a cache that always misses.
type Store struct {
	tiers      []Tier
	log        logger.Logger
	defaultTTL time.Duration
	hits       atomic.Int64
	misses     atomic.Int64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithDefaultTTL sets the TTL applied when Set receives ttl <= 0.
func WithDefaultTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.defaultTTL = d }
}

// NewStore builds a Store over the given tiers, tried in order on read.
// Constructing a store with no tiers is valid: every read is a miss and
// every write a no-op.
func NewStore(log logger.Logger, tiers ...Tier) *Store {
	return &Store{
		tiers:      tiers,
		log:        logger.Coalesce(log),
		defaultTTL: DefaultTTL,
	}
}

// Configure applies options after construction.
func (s *Store) Configure(opts ...StoreOption) *Store {
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the raw serialized payload for key from the first tier that has
// a non-expired entry.
func (s *Store) Get(ctx context.Context, key string) (bool, []byte) {
	for _, tier := range s.tiers {
		found, raw, err := tier.Get(ctx, key)
		if err != nil {
			s.log.Warn("cache get error", "tier", tier.Name(), "key", truncateKey(key), "error", err)
			continue
		}
		if found {
			s.hits.Add(1)
			s.log.Debug("cache hit", "tier", tier.Name(), "key", truncateKey(key))
			return true, raw
		}
	}
	s.misses.Add(1)
	s.log.Debug("cache miss", "key", truncateKey(key))
	return false, nil
}

// Set serializes val and writes it to every tier independently. Returns true
// if at least one tier accepted the write; callers must not assume
// durability in all tiers. A value that cannot be serialized is a write
// failure, not a request failure.
func (s *Store) Set(ctx context.Context, key string, val any, ttl time.Duration) bool {
	if len(s.tiers) == 0 {
		return false
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	raw, err := msgpack.Marshal(val)
	if err != nil {
		s.log.Warn("cache set: payload not serializable", "key", truncateKey(key), "error", err)
		return false
	}
	ok := false
	for _, tier := range s.tiers {
		if err := tier.Set(ctx, key, raw, ttl); err != nil {
			s.log.Warn("cache set error", "tier", tier.Name(), "key", truncateKey(key), "error", err)
			continue
		}
		s.log.Debug("cache set", "tier", tier.Name(), "key", truncateKey(key), "ttl", ttl)
		ok = true
	}
	return ok
}

// GetAs reads key from the store and deserializes it into T.
func GetAs[T any](ctx context.Context, s *Store, key string) (bool, T) {
	var out T
	found, raw := s.Get(ctx, key)
	if !found {
		return false, out
	}
	if err := msgpack.Unmarshal(raw, &out); err != nil {
		s.log.Warn("cache payload corrupt, treating as miss", "key", truncateKey(key), "error", err)
		return false, out
	}
	return true, out
}

// Clear removes entries across tiers. With a pattern, only tiers that
// support partial clears remove anything (the durable tier does not; see
// the sqlite Tier). Returns true when every available tier processed
// the request without error.
func (s *Store) Clear(ctx context.Context, pattern string) bool {
	ok := true
	for _, tier := range s.tiers {
		n, err := tier.Clear(ctx, pattern)
		if err != nil {
			s.log.Warn("cache clear error", "tier", tier.Name(), "pattern", pattern, "error", err)
			ok = false
			continue
		}
		s.log.Info("cache cleared", "tier", tier.Name(), "pattern", pattern, "removed", n)
	}
	return ok
}

// Stats aggregates per-tier stats with store-level hit/miss counters.
func (s *Store) Stats(ctx context.Context) map[string]any {
	tiers := make([]map[string]any, 0, len(s.tiers))
	for _, tier := range s.tiers {
		tiers = append(tiers, tier.Stats(ctx))
	}
	return map[string]any{
		"tiers":  tiers,
		"hits":   s.hits.Load(),
		"misses": s.misses.Load(),
	}
}

// Close closes all tiers, returning the first error.
func (s *Store) Close() error {
	var firstErr error
	for _, tier := range s.tiers {
		if err := tier.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
