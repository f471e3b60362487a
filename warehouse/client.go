package warehouse

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"github.com/arcadia-data/querylayer/logger"
)

// Client is a Connector over a single logical warehouse connection. pgx
// connections are not safe for concurrent use, so in-flight queries are
// serialized by a mutex; callers needing parallelism construct one Client per
// worker.
type Client struct {
	dsn string
	log logger.Logger

	mu   sync.Mutex
	conn *pgx.Conn
}

var _ Connector = (*Client)(nil)

// NewClient builds a Client from a DSN. The connection is established by
// Connect, not here.
func NewClient(dsn string, log logger.Logger) (*Client, error) {
	if dsn == "" {
		return nil, errors.New("warehouse: missing DSN")
	}
	return &Client{dsn: dsn, log: logger.Coalesce(log)}, nil
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, err := pgx.Connect(ctx, c.dsn)
	if err != nil {
		return errors.Wrap(err, "warehouse: connect failed")
	}
	c.conn = conn
	c.log.Info("connected to warehouse")
	return nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(ctx)
	c.conn = nil
	c.log.Info("disconnected from warehouse")
	return err
}

// Execute runs a query and materializes all rows, preserving result-set
// column order. Parameters are passed as named arguments (@name placeholders
// in the query text), never interpolated.
func (c *Client) Execute(ctx context.Context, query string, params map[string]any) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	args := make([]any, 0, 1)
	if len(params) > 0 {
		args = append(args, pgx.NamedArgs(params))
	}
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "warehouse: query failed")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	result := &Result{Columns: columns, Rows: []Row{}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, "warehouse: row scan failed")
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "warehouse: result iteration failed")
	}
	return result, nil
}
