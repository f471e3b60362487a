// Package query orchestrates cached, bounded execution of warehouse queries.
// It decides whether a request is served from cache, applies implicit row
// bounds to protect against unbounded transfers, and populates the cache on
// successful execution.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arcadia-data/querylayer/cache"
	"github.com/arcadia-data/querylayer/logger"
	"github.com/arcadia-data/querylayer/paginate"
	"github.com/arcadia-data/querylayer/warehouse"
)

// Options control a single execution.
type Options struct {
	// UseCache enables the cache-aside path: read before executing, write
	// back after a successful non-empty result.
	UseCache bool
	// TTL overrides the executor's default cache TTL when > 0.
	TTL time.Duration
	// Unlimited disables the implicit row bound for this call.
	Unlimited bool
}

// Limits configures the implicit bound policy. The thresholds are a policy
// choice, not a correctness requirement; tune them per deployment.
type Limits struct {
	// LongQueryThreshold is the query text length above which a bound is
	// injected when none is present.
	LongQueryThreshold int
	// PaginateAtSourceThreshold is the query text length above which
	// ExecutePaginated bounds the query at the warehouse instead of
	// fetching everything and slicing in memory.
	PaginateAtSourceThreshold int
	// DefaultRowBound applies to long queries with no recognized filter.
	DefaultRowBound int
	// FilteredRowBound applies to long queries matching a narrow-filter
	// marker; such queries target a known id-set and may return more rows.
	FilteredRowBound int
	// NarrowFilterMarkers are allow-listed fragments identifying narrowly
	// filtered queries.
	NarrowFilterMarkers []string
}

// DefaultLimits mirrors the thresholds the dashboard deployment has run with.
func DefaultLimits() Limits {
	return Limits{
		LongQueryThreshold:        2000,
		PaginateAtSourceThreshold: 1000,
		DefaultRowBound:           100,
		FilteredRowBound:          15000,
		NarrowFilterMarkers:       []string{"WHERE INV_EXT_ID IN"},
	}
}

// Executor is the query execution orchestrator. Construct once and share; it
// is safe for concurrent use. Concurrent identical misses may each reach the
// warehouse: an accepted inefficiency, not a correctness problem.
type Executor struct {
	conn       warehouse.Connector
	store      *cache.Store
	engine     *paginate.Engine
	log        logger.Logger
	limits     Limits
	defaultTTL time.Duration
	tracer     trace.Tracer
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLimits overrides the implicit bound policy.
func WithLimits(l Limits) ExecutorOption {
	return func(e *Executor) { e.limits = l }
}

// WithDefaultTTL sets the cache TTL used when Options.TTL is zero.
func WithDefaultTTL(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.defaultTTL = d }
}

// NewExecutor wires the orchestrator. store may be nil, which disables
// caching entirely.
func NewExecutor(conn warehouse.Connector, store *cache.Store, engine *paginate.Engine, log logger.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		conn:       conn,
		store:      store,
		engine:     engine,
		log:        logger.Coalesce(log),
		limits:     DefaultLimits(),
		defaultTTL: 30 * time.Minute,
		tracer:     otel.Tracer("querylayer/query"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a query through the cache-aside path. Connector errors are
// logged and propagated unchanged; cache failures never surface. Zero-row
// results are not cached, since an empty set may reflect a transient
// warehouse hiccup rather than true emptiness.
func (e *Executor) Execute(ctx context.Context, query string, params map[string]any, opts Options) (*warehouse.Result, error) {
	qid := uuid.NewString()[:8]
	ctx, span := e.tracer.Start(ctx, "query.Execute", trace.WithAttributes(
		attribute.Int("query.length", len(query)),
		attribute.Bool("query.use_cache", opts.UseCache),
	))
	defer span.End()

	useCache := opts.UseCache && e.store != nil
	var key string
	if useCache {
		key = cache.DeriveKey(query, params)
		if found, res := cache.GetAs[warehouse.Result](ctx, e.store, key); found {
			span.SetAttributes(attribute.Bool("query.cache_hit", true))
			e.log.Debug("served from cache", "qid", qid, "rows", len(res.Rows))
			return &res, nil
		}
	}
	span.SetAttributes(attribute.Bool("query.cache_hit", false))

	bounded := e.applyImplicitBound(query, opts.Unlimited, qid)
	res, err := e.conn.Execute(ctx, bounded, params)
	if err != nil {
		e.log.Error("query execution failed", "qid", qid, "query_length", len(bounded), "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("query.rows", len(res.Rows)))
	e.log.Info("query executed", "qid", qid, "rows", len(res.Rows))

	if useCache && len(res.Rows) > 0 {
		e.store.Set(ctx, key, res, e.ttl(opts))
	}
	return res, nil
}

// PagedResult is one page of warehouse rows with pagination metadata.
type PagedResult = paginate.Page[warehouse.Row]

// ExecutePaginated serves one page of a base query. Long queries are bounded
// at the source to avoid transferring the full result; short queries are
// fetched whole (and cacheable as a whole) then sliced in memory, so
// subsequent pages of the same base query hit the cache.
func (e *Executor) ExecutePaginated(ctx context.Context, query string, page, pageSize int, opts Options) (*PagedResult, error) {
	page, pageSize = e.engine.Clamp(page, pageSize)

	useCache := opts.UseCache && e.store != nil
	var key string
	if useCache {
		key = cache.DeriveKey(query, map[string]any{"page": page, "page_size": pageSize})
		if found, cached := cache.GetAs[PagedResult](ctx, e.store, key); found {
			return &cached, nil
		}
	}

	var result PagedResult
	if len(query) > e.limits.PaginateAtSourceThreshold {
		rewritten := e.engine.Rewrite(query, page, pageSize)
		res, err := e.conn.Execute(ctx, rewritten, nil)
		if err != nil {
			e.log.Error("paginated execution failed", "page", page, "error", err)
			return nil, err
		}
		total := e.estimateTotal(len(res.Rows), page, pageSize)
		result = PagedResult{
			Data:       res.Rows,
			Pagination: e.engine.Metadata(total, page, pageSize),
		}
	} else {
		full, err := e.Execute(ctx, query, nil, Options{UseCache: opts.UseCache, TTL: opts.TTL, Unlimited: opts.Unlimited})
		if err != nil {
			return nil, err
		}
		result = paginate.Slice(e.engine, full.Rows, page, pageSize)
	}

	if useCache && len(result.Data) > 0 {
		e.store.Set(ctx, key, result, e.ttl(opts))
	}
	return &result, nil
}

// estimateTotal avoids an exact COUNT round-trip on the source-paginated
// path. A short page means the tail was reached and the total is exact;
// otherwise the total is a coarse multiple, refined as later pages arrive.
// Callers needing exact numbers use Count.
func (e *Executor) estimateTotal(got, page, pageSize int) int {
	if got < pageSize {
		return (page-1)*pageSize + got
	}
	return got * 10
}

// Count runs the COUNT(*) form of a base query and returns the total row
// count, for callers that need exact (not estimated) pagination metadata.
func (e *Executor) Count(ctx context.Context, query string, params map[string]any, opts Options) (int, error) {
	res, err := e.Execute(ctx, e.engine.CountQuery(query), params, opts)
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 {
		return 0, nil
	}
	switch v := res.Rows[0]["total_count"].(type) {
	case int64:
		return int(v), nil
	case int32:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("query: unexpected count type %T", v)
	}
}

// CacheStats exposes the store's descriptive stats to route handlers.
func (e *Executor) CacheStats(ctx context.Context) map[string]any {
	if e.store == nil {
		return map[string]any{"enabled": false}
	}
	stats := e.store.Stats(ctx)
	stats["enabled"] = true
	return stats
}

// ClearCache removes cached entries, optionally limited to keys matching
// pattern on tiers that support it.
func (e *Executor) ClearCache(ctx context.Context, pattern string) bool {
	if e.store == nil {
		return false
	}
	return e.store.Clear(ctx, pattern)
}

func (e *Executor) ttl(opts Options) time.Duration {
	if opts.TTL > 0 {
		return opts.TTL
	}
	return e.defaultTTL
}

// applyImplicitBound injects a conservative LIMIT into unusually long queries
// that carry no explicit bound, unless the caller asked for unlimited
// results. Narrowly filtered queries are allowed a much larger bound than
// wholly unfiltered ones.
func (e *Executor) applyImplicitBound(query string, unlimited bool, qid string) string {
	if unlimited || len(query) <= e.limits.LongQueryThreshold || paginate.HasBound(query) {
		return query
	}
	bound := e.limits.DefaultRowBound
	for _, marker := range e.limits.NarrowFilterMarkers {
		if strings.Contains(query, marker) {
			bound = e.limits.FilteredRowBound
			break
		}
	}
	e.log.Warn("injecting implicit bound into long query", "qid", qid, "bound", bound, "query_length", len(query))
	return fmt.Sprintf("%s\nLIMIT %d", paginate.StripBound(query), bound)
}
