package cache

import (
	"context"
	"time"
)

// Tier is one backing store in the cache's priority-ordered fallback chain.
// Implementations store opaque bytes with a TTL and must be safe for
// concurrent use. A Tier that cannot serve a request returns an error; the
// Store absorbs tier errors and falls through to the next tier.
type Tier interface {
	// Name identifies the tier in logs and stats.
	Name() string

	// Get returns (true, value, nil) on a non-expired hit and
	// (false, nil, nil) on a miss. Expired entries behave as absent even if
	// physically still stored.
	Get(ctx context.Context, key string) (bool, []byte, error)

	// Set stores value under key with an absolute expiry of now+ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Clear removes entries. With an empty pattern the whole tier is
	// cleared; with a pattern, only matching keys are removed on tiers that
	// support it. Returns the number of entries removed.
	Clear(ctx context.Context, pattern string) (int, error)

	// Stats returns a descriptive mapping for observability.
	Stats(ctx context.Context) map[string]any

	// Close releases resources.
	Close() error
}
