package query

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcadia-data/querylayer/cache"
	"github.com/arcadia-data/querylayer/logger"
	"github.com/arcadia-data/querylayer/paginate"
	"github.com/arcadia-data/querylayer/warehouse"
)

// stubConnector scripts warehouse responses and counts calls.
type stubConnector struct {
	mu      sync.Mutex
	calls   int
	queries []string
	result  *warehouse.Result
	err     error
}

var _ warehouse.Connector = (*stubConnector)(nil)

func (s *stubConnector) Connect(context.Context) error    { return nil }
func (s *stubConnector) Disconnect(context.Context) error { return nil }

func (s *stubConnector) Execute(_ context.Context, query string, _ map[string]any) (*warehouse.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubConnector) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubConnector) lastQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return ""
	}
	return s.queries[len(s.queries)-1]
}

func rowsOf(n int) *warehouse.Result {
	res := &warehouse.Result{Columns: []string{"id", "name"}}
	for i := 0; i < n; i++ {
		res.Rows = append(res.Rows, warehouse.Row{
			"id":   fmt.Sprintf("row-%02d", i+1),
			"name": fmt.Sprintf("item %d", i+1),
		})
	}
	return res
}

func newTestExecutor(conn warehouse.Connector, opts ...ExecutorOption) *Executor {
	log := logger.NewTestLogger()
	store := cache.NewStore(log, cache.NewMemoryTier())
	engine := paginate.NewEngine(50, 200, log)
	return NewExecutor(conn, store, engine, log, opts...)
}

func TestExecuteCacheMissThenHit(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnector{result: rowsOf(3)}
	exec := newTestExecutor(conn)

	first, err := exec.Execute(ctx, "SELECT * FROM t", nil, Options{UseCache: true})
	require.NoError(t, err)
	require.Len(t, first.Rows, 3)
	assert.Equal(t, 1, conn.callCount())

	second, err := exec.Execute(ctx, "SELECT * FROM t", nil, Options{UseCache: true})
	require.NoError(t, err)
	require.Len(t, second.Rows, 3)
	assert.Equal(t, 1, conn.callCount(), "identical request must be served from cache")
	assert.EqualValues(t, first.Rows[0]["id"], second.Rows[0]["id"])
	assert.Equal(t, first.Columns, second.Columns)
}

func TestExecuteCacheDisabled(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnector{result: rowsOf(1)}
	exec := newTestExecutor(conn)

	for i := 0; i < 3; i++ {
		_, err := exec.Execute(ctx, "SELECT * FROM t", nil, Options{})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, conn.callCount())
}

func TestExecuteZeroRowsNotCached(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnector{result: rowsOf(0)}
	exec := newTestExecutor(conn)

	_, err := exec.Execute(ctx, "SELECT * FROM empty", nil, Options{UseCache: true})
	require.NoError(t, err)
	_, err = exec.Execute(ctx, "SELECT * FROM empty", nil, Options{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, 2, conn.callCount(), "empty results must not be cached")
}

func TestExecuteDifferentParamsMissSeparately(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnector{result: rowsOf(1)}
	exec := newTestExecutor(conn)

	_, err := exec.Execute(ctx, "SELECT * FROM t WHERE id = @id", map[string]any{"id": 1}, Options{UseCache: true})
	require.NoError(t, err)
	_, err = exec.Execute(ctx, "SELECT * FROM t WHERE id = @id", map[string]any{"id": 2}, Options{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, 2, conn.callCount())
}

func TestExecuteRemoteErrorPropagates(t *testing.T) {
	ctx := context.Background()
	wantErr := errors.New("warehouse unreachable")
	conn := &stubConnector{err: wantErr}
	exec := newTestExecutor(conn)

	_, err := exec.Execute(ctx, "SELECT * FROM t", nil, Options{UseCache: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

func longQuery(marker string) string {
	var sb strings.Builder
	sb.WriteString("SELECT * FROM hierarchy ")
	if marker != "" {
		sb.WriteString(marker)
		sb.WriteString(" ('A', 'B') ")
	}
	for sb.Len() < 2100 {
		sb.WriteString("/* padding to exceed the long query threshold */ ")
	}
	return sb.String()
}

func TestImplicitBoundOnLongUnfilteredQuery(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnector{result: rowsOf(1)}
	exec := newTestExecutor(conn)

	_, err := exec.Execute(ctx, longQuery(""), nil, Options{})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(conn.lastQuery(), "LIMIT 100"), "unfiltered long query gets the conservative bound")
}

func TestImplicitBoundOnLongFilteredQuery(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnector{result: rowsOf(1)}
	exec := newTestExecutor(conn)

	_, err := exec.Execute(ctx, longQuery("WHERE INV_EXT_ID IN"), nil, Options{})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(conn.lastQuery(), "LIMIT 15000"), "narrowly filtered query is permitted a larger bound")
}

func TestImplicitBoundSkippedWhenUnlimited(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnector{result: rowsOf(1)}
	exec := newTestExecutor(conn)

	q := longQuery("")
	_, err := exec.Execute(ctx, q, nil, Options{Unlimited: true})
	require.NoError(t, err)
	assert.Equal(t, q, conn.lastQuery())
}

func TestImplicitBoundSkippedWhenAlreadyBounded(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnector{result: rowsOf(1)}
	exec := newTestExecutor(conn)

	q := longQuery("") + " LIMIT 7"
	_, err := exec.Execute(ctx, q, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, q, conn.lastQuery())
}

func TestImplicitBoundShortQueryUntouched(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnector{result: rowsOf(1)}
	exec := newTestExecutor(conn)

	_, err := exec.Execute(ctx, "SELECT * FROM t", nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t", conn.lastQuery())
}

func TestExecutePaginatedInMemory(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnector{result: rowsOf(25)}
	exec := newTestExecutor(conn)

	// short query: fetched whole, sliced in memory
	page, err := exec.ExecutePaginated(ctx, "SELECT * FROM t", 2, 10, Options{UseCache: true})
	require.NoError(t, err)

	assert.Len(t, page.Data, 10)
	assert.EqualValues(t, "row-11", page.Data[0]["id"])
	md := page.Pagination
	assert.Equal(t, 25, md.TotalCount)
	assert.Equal(t, 3, md.TotalPages)
	assert.True(t, md.HasNext)
	assert.True(t, md.HasPrevious)
	require.NotNil(t, md.NextPage)
	require.NotNil(t, md.PreviousPage)
	assert.Equal(t, 3, *md.NextPage)
	assert.Equal(t, 1, *md.PreviousPage)
}

func TestExecutePaginatedAtSource(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnector{result: rowsOf(10)}
	exec := newTestExecutor(conn, WithLimits(Limits{
		LongQueryThreshold:        2000,
		PaginateAtSourceThreshold: 10,
		DefaultRowBound:           100,
		FilteredRowBound:          15000,
	}))

	page, err := exec.ExecutePaginated(ctx, "SELECT * FROM a_table_somewhere", 2, 10, Options{})
	require.NoError(t, err)

	// bounded at the source: offset (page-1)*size, limit size
	assert.True(t, strings.HasSuffix(conn.lastQuery(), "LIMIT 10 OFFSET 10"), "got %q", conn.lastQuery())
	assert.Len(t, page.Data, 10)
	assert.Equal(t, 2, page.Pagination.CurrentPage)
}

func TestExecutePaginatedTailPageEstimatesExactTotal(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnector{result: rowsOf(5)}
	exec := newTestExecutor(conn, WithLimits(Limits{
		LongQueryThreshold:        2000,
		PaginateAtSourceThreshold: 10,
		DefaultRowBound:           100,
		FilteredRowBound:          15000,
	}))

	// page 3 of size 10 returns 5 rows: the tail, so total is exact
	page, err := exec.ExecutePaginated(ctx, "SELECT * FROM a_table_somewhere", 3, 10, Options{})
	require.NoError(t, err)
	assert.Equal(t, 25, page.Pagination.TotalCount)
	assert.Equal(t, 3, page.Pagination.TotalPages)
	assert.False(t, page.Pagination.HasNext)
}

func TestExecutePaginatedCached(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnector{result: rowsOf(25)}
	exec := newTestExecutor(conn)

	_, err := exec.ExecutePaginated(ctx, "SELECT * FROM t", 1, 10, Options{UseCache: true})
	require.NoError(t, err)
	calls := conn.callCount()

	again, err := exec.ExecutePaginated(ctx, "SELECT * FROM t", 1, 10, Options{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, calls, conn.callCount(), "repeat page request must be served from cache")
	assert.Len(t, again.Data, 10)
}

func TestConcurrentExecute(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnector{result: rowsOf(2)}
	exec := newTestExecutor(conn)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := fmt.Sprintf("SELECT * FROM t WHERE shard = %d", i%4)
			res, err := exec.Execute(ctx, q, nil, Options{UseCache: true})
			assert.NoError(t, err)
			assert.Len(t, res.Rows, 2)
		}(i)
	}
	wg.Wait()
}

func TestCacheStatsAndClear(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnector{result: rowsOf(1)}
	exec := newTestExecutor(conn)

	_, err := exec.Execute(ctx, "SELECT * FROM t", nil, Options{UseCache: true})
	require.NoError(t, err)

	stats := exec.CacheStats(ctx)
	assert.Equal(t, true, stats["enabled"])

	require.True(t, exec.ClearCache(ctx, ""))
	_, err = exec.Execute(ctx, "SELECT * FROM t", nil, Options{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, 2, conn.callCount(), "clear must force the next request back to the warehouse")
}

func TestExecutorWithoutStore(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnector{result: rowsOf(1)}
	engine := paginate.NewEngine(50, 200, logger.NewTestLogger())
	exec := NewExecutor(conn, nil, engine, logger.NewTestLogger())

	res, err := exec.Execute(ctx, "SELECT 1", nil, Options{UseCache: true})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)

	assert.Equal(t, map[string]any{"enabled": false}, exec.CacheStats(ctx))
	assert.False(t, exec.ClearCache(ctx, ""))
}

func TestCustomTTLUsedForCacheWrites(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnector{result: rowsOf(1)}
	exec := newTestExecutor(conn)

	_, err := exec.Execute(ctx, "SELECT * FROM t", nil, Options{UseCache: true, TTL: 30 * time.Millisecond})
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)

	_, err = exec.Execute(ctx, "SELECT * FROM t", nil, Options{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, 2, conn.callCount(), "entry written with a short TTL must expire")
}
