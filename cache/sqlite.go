package cache

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/arcadia-data/querylayer/logger"
)

type sqliteTier struct {
	db   *sql.DB
	path string
	log  logger.Logger
}

var _ Tier = (*sqliteTier)(nil)

// NewSQLiteTier opens the durable fallback tier backed by a SQLite database
// under dir. If the backing files are corrupt, they are purged and
// initialization is retried exactly once; a second failure disables the tier
// (the caller runs uncached but correct).
func NewSQLiteTier(dir string, log logger.Logger) (Tier, error) {
	log = logger.Coalesce(log)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "cache: create cache dir")
	}
	path := filepath.Join(dir, "cache.db")

	db, err := openSQLite(path)
	if err != nil {
		log.Warn("fallback tier corrupt, purging backing files", "path", path, "error", err)
		purgeSQLiteFiles(path, log)
		db, err = openSQLite(path)
		if err != nil {
			return nil, errors.Wrap(err, "cache: reinitialize fallback tier")
		}
		log.Info("fallback tier reinitialized after purge", "path", path)
	}
	return &sqliteTier{db: db, path: path, log: log}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL keeps concurrent readers from blocking the writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_cache_expires_at ON cache(expires_at)`); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// purgeSQLiteFiles removes the database and its WAL/SHM siblings.
func purgeSQLiteFiles(path string, log logger.Logger) {
	matches, _ := filepath.Glob(path + "*")
	for _, f := range matches {
		if err := os.Remove(f); err != nil {
			log.Warn("could not remove cache file", "file", f, "error", err)
			continue
		}
		log.Debug("removed corrupt cache file", "file", f)
	}
}

func (t *sqliteTier) Name() string { return "sqlite" }

func (t *sqliteTier) Get(ctx context.Context, key string) (bool, []byte, error) {
	qctx, cancel := context.WithTimeout(ctx, tierTimeout)
	defer cancel()

	var value []byte
	var expiresAt int64
	err := t.db.QueryRowContext(qctx,
		`SELECT value, expires_at FROM cache WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	// the store does not self-expire; enforce the timestamp at read time
	if expiresAt < time.Now().UnixNano() {
		_, _ = t.db.ExecContext(qctx, `DELETE FROM cache WHERE key = ?`, key)
		return false, nil, nil
	}
	return true, value, nil
}

func (t *sqliteTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	qctx, cancel := context.WithTimeout(ctx, tierTimeout)
	defer cancel()

	now := time.Now()
	_, err := t.db.ExecContext(qctx,
		`INSERT INTO cache (key, value, created_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key, value, now.UnixNano(), now.Add(ttl).UnixNano(),
	)
	return err
}

// Clear wipes the tier when no pattern is given. Pattern-based partial clear
// is not supported on the durable tier: a non-empty pattern clears nothing.
func (t *sqliteTier) Clear(ctx context.Context, pattern string) (int, error) {
	if pattern != "" {
		t.log.Debug("pattern clear unsupported on fallback tier", "pattern", pattern)
		return 0, nil
	}
	qctx, cancel := context.WithTimeout(ctx, tierTimeout)
	defer cancel()
	res, err := t.db.ExecContext(qctx, `DELETE FROM cache`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (t *sqliteTier) Stats(ctx context.Context) map[string]any {
	stats := map[string]any{
		"tier":      t.Name(),
		"available": true,
		"path":      t.path,
	}
	qctx, cancel := context.WithTimeout(ctx, tierTimeout)
	defer cancel()
	var entries, live int
	now := time.Now().UnixNano()
	if err := t.db.QueryRowContext(qctx, `SELECT COUNT(*) FROM cache`).Scan(&entries); err == nil {
		stats["entries"] = entries
	}
	if err := t.db.QueryRowContext(qctx, `SELECT COUNT(*) FROM cache WHERE expires_at >= ?`, now).Scan(&live); err == nil {
		stats["live_entries"] = live
	}
	return stats
}

func (t *sqliteTier) Close() error {
	return t.db.Close()
}
