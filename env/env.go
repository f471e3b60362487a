// Package env loads process configuration from environment variables.
//
// Every knob has a documented default so the process starts with no
// environment at all; only the warehouse DSN is required, and only once a
// connector is actually constructed.
package env

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	str2duration "github.com/xhit/go-str2duration/v2"
)

// Config is the resolved process configuration.
type Config struct {
	// RedisURL is the primary cache tier address (redis:// URL). Empty
	// disables the primary tier; the process runs on the fallback tier only.
	RedisURL string
	// CacheDir is the directory backing the durable fallback tier.
	CacheDir string
	// WarehouseURL is the analytic warehouse DSN.
	WarehouseURL string

	// DefaultTTL applies to cached paginated responses.
	DefaultTTL time.Duration
	// QueryTTL applies to cached raw query results.
	QueryTTL time.Duration

	DefaultPageSize int
	MaxPageSize     int

	// LongQueryThreshold is the query text length above which an implicit
	// row bound is injected when none is present.
	LongQueryThreshold int
	// PaginateAtSourceThreshold is the query text length above which
	// pagination happens in the warehouse rather than in memory.
	PaginateAtSourceThreshold int
	// DefaultRowBound is the implicit bound for unfiltered long queries.
	DefaultRowBound int
	// FilteredRowBound is the implicit bound for long queries that match a
	// narrow-filter marker.
	FilteredRowBound int
	// NarrowFilterMarkers are allow-listed query fragments that identify a
	// query as narrowly filtered.
	NarrowFilterMarkers []string

	// ListenAddr is the HTTP listen address for queryd serve.
	ListenAddr string
}

const (
	defaultCacheDir      = "cache"
	defaultTTL           = 5 * time.Minute
	defaultQueryTTL      = 30 * time.Minute
	defaultPageSize      = 50
	defaultMaxPageSize   = 200
	defaultLongQuery     = 2000
	defaultPaginateAt    = 1000
	defaultRowBound      = 100
	defaultFilteredBound = 15000
	defaultNarrowMarker  = "WHERE INV_EXT_ID IN"
	defaultListenAddr    = ":8000"
	envPrefix            = "QUERYLAYER_"
)

func lookup(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		return v
	}
	return def
}

func lookupInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "env: %s%s is not an integer", envPrefix, key)
	}
	return n, nil
}

func lookupDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return def, nil
	}
	// accepts day/week units too, e.g. "1d12h"
	d, err := str2duration.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "env: %s%s is not a duration", envPrefix, key)
	}
	return d, nil
}

// Load resolves the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		RedisURL:            lookup("REDIS_URL", ""),
		CacheDir:            lookup("CACHE_DIR", defaultCacheDir),
		WarehouseURL:        lookup("WAREHOUSE_URL", ""),
		NarrowFilterMarkers: []string{lookup("NARROW_FILTER_MARKER", defaultNarrowMarker)},
		ListenAddr:          lookup("LISTEN_ADDR", defaultListenAddr),
	}

	var err error
	if cfg.DefaultTTL, err = lookupDuration("CACHE_TTL", defaultTTL); err != nil {
		return nil, err
	}
	if cfg.QueryTTL, err = lookupDuration("QUERY_CACHE_TTL", defaultQueryTTL); err != nil {
		return nil, err
	}
	if cfg.DefaultPageSize, err = lookupInt("DEFAULT_PAGE_SIZE", defaultPageSize); err != nil {
		return nil, err
	}
	if cfg.MaxPageSize, err = lookupInt("MAX_PAGE_SIZE", defaultMaxPageSize); err != nil {
		return nil, err
	}
	if cfg.LongQueryThreshold, err = lookupInt("LONG_QUERY_THRESHOLD", defaultLongQuery); err != nil {
		return nil, err
	}
	if cfg.PaginateAtSourceThreshold, err = lookupInt("PAGINATE_AT_SOURCE_THRESHOLD", defaultPaginateAt); err != nil {
		return nil, err
	}
	if cfg.DefaultRowBound, err = lookupInt("DEFAULT_ROW_BOUND", defaultRowBound); err != nil {
		return nil, err
	}
	if cfg.FilteredRowBound, err = lookupInt("FILTERED_ROW_BOUND", defaultFilteredBound); err != nil {
		return nil, err
	}

	if cfg.DefaultPageSize < 1 {
		return nil, errors.Newf("env: %sDEFAULT_PAGE_SIZE must be >= 1", envPrefix)
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		return nil, errors.Newf("env: %sMAX_PAGE_SIZE must be >= default page size", envPrefix)
	}
	return cfg, nil
}
