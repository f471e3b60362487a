// Package warehouse is the remote connector for the analytic SQL warehouse.
// It exposes a narrow connect/execute/disconnect surface; everything above it
// treats the warehouse as an opaque row source.
package warehouse

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ErrNotConnected is returned by Execute when Connect has not been called or
// the connection has been closed.
var ErrNotConnected = errors.New("warehouse: not connected")

// Row is one result row keyed by column name.
type Row = map[string]any

// Result holds query rows together with the result-set column order, which a
// plain map cannot preserve.
type Result struct {
	Columns []string `json:"columns" msgpack:"columns"`
	Rows    []Row    `json:"rows" msgpack:"rows"`
}

// Connector executes raw SQL over a managed connection.
type Connector interface {
	// Connect establishes the connection. Calling Connect on a connected
	// client is a no-op.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. Safe to call when not connected.
	Disconnect(ctx context.Context) error

	// Execute runs a query with optional named parameters and returns all
	// rows. Returns ErrNotConnected when no connection is established.
	Execute(ctx context.Context, query string, params map[string]any) (*Result, error)
}
