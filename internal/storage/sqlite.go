package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const (
	sqliteInsertSQL = `INSERT INTO vault_watcher (ts_ms, address, name, balance)
VALUES (?, ?, ?, ?)
ON CONFLICT (ts_ms, name, address) DO NOTHING;`

	sqliteRecentSQL = `SELECT ts_ms, address, name, balance
FROM vault_watcher
ORDER BY ts_ms DESC
LIMIT ?;`

	sqliteBetweenSQL = `SELECT ts_ms, address, name, balance
FROM vault_watcher
WHERE (? = '' OR name = ?)
  AND ts_ms >= ?
  AND ts_ms < ?
ORDER BY ts_ms;`
)

// SQLiteStore persists samples in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens path, applies pragmas and runs migrations.
func OpenSQLite(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	if err := configure(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(ctx, db, dialectSQLite, logger); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func configure(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// Ping checks database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	return s.db.PingContext(ctx)
}

// Commit writes one sample.
func (s *SQLiteStore) Commit(ctx context.Context, sample Sample) error {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	_, err := s.db.ExecContext(ctx, sqliteInsertSQL, sample.Timestamp.UnixMilli(), sample.Address, sample.Name, sample.Value)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// ListRecent lists the most recent samples ordered by descending time.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]Sample, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	rows, err := s.db.QueryContext(ctx, sqliteRecentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent samples: %w", err)
	}
	return scanSQLiteSamples(rows)
}

// ListBetween lists samples within a time window.
func (s *SQLiteStore) ListBetween(ctx context.Context, name string, from, to time.Time) ([]Sample, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	rows, err := s.db.QueryContext(ctx, sqliteBetweenSQL, name, name, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list samples between: %w", err)
	}
	return scanSQLiteSamples(rows)
}

func scanSQLiteSamples(rows *sql.Rows) ([]Sample, error) {
	defer rows.Close()

	samples := make([]Sample, 0)
	for rows.Next() {
		var (
			ms     int64
			sample Sample
		)
		if err := rows.Scan(&ms, &sample.Address, &sample.Name, &sample.Value); err != nil {
			return nil, err
		}
		sample.Timestamp = time.UnixMilli(ms).UTC()
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

var _ Store = (*SQLiteStore)(nil)
