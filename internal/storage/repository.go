package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	insertSampleSQL = `INSERT INTO vault_watcher (timestamp, address, name, balance)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (timestamp, name, address) DO NOTHING;`

	listRecentSamplesSQL = `SELECT timestamp, address, name, balance
    FROM vault_watcher
    ORDER BY timestamp DESC
    LIMIT $1;`

	listSamplesBetweenSQL = `SELECT timestamp, address, name, balance
    FROM vault_watcher
    WHERE ($1::text = '' OR name = $1::text)
      AND timestamp >= $2
      AND timestamp < $3
    ORDER BY timestamp;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PostgresStore persists samples in PostgreSQL or TimescaleDB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Commit writes one sample.
func (s *PostgresStore) Commit(ctx context.Context, sample Sample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, insertSampleSQL, sample.Timestamp.UTC(), sample.Address, sample.Name, sample.Value); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// ListRecent lists the most recent samples ordered by descending time.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Sample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRecentSamplesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent samples: %w", err)
	}
	return collectSamples(rows)
}

// ListBetween lists samples within a time window.
func (s *PostgresStore) ListBetween(ctx context.Context, name string, from, to time.Time) ([]Sample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listSamplesBetweenSQL, name, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list samples between: %w", err)
	}
	return collectSamples(rows)
}

func collectSamples(rows pgx.Rows) ([]Sample, error) {
	defer rows.Close()

	samples := make([]Sample, 0)
	for rows.Next() {
		var sample Sample
		if err := rows.Scan(&sample.Timestamp, &sample.Address, &sample.Name, &sample.Value); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

var (
	_ Store          = (*PostgresStore)(nil)
	_ AdvisoryLocker = (*PostgresStore)(nil)
)
