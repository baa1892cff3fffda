package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	goretry "github.com/sethvargo/go-retry"

	"vault-watcher/internal/config"
)

// OpenOptions carries what store bootstrap needs beyond DatabaseConfig.
type OpenOptions struct {
	// RefreshPeriod and Accounts size the TimescaleDB chunk interval.
	RefreshPeriod time.Duration
	Accounts      int
	// ReadOnly opens the store for queries only: no migrations, no hypertable changes.
	ReadOnly bool
	Logger   zerolog.Logger
}

// bootstrap lists the schema steps OpenPostgres performs.
type bootstrap struct {
	Migrate    bool
	Hypertable bool
	SizeChunks bool
}

func planBootstrap(cfg config.DatabaseConfig, opts OpenOptions) bootstrap {
	if opts.ReadOnly {
		return bootstrap{}
	}
	return bootstrap{
		Migrate:    true,
		Hypertable: cfg.Timescale,
		SizeChunks: cfg.Timescale && opts.Accounts > 0,
	}
}

// Open connects to the configured database and brings its schema up to date.
// It returns ErrNotConfigured when no driver is set.
func Open(ctx context.Context, cfg config.DatabaseConfig, opts OpenOptions) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return nil, ErrNotConfigured
	case "sqlite":
		return OpenSQLite(ctx, cfg.DSN, opts.Logger)
	case "postgres":
		return OpenPostgres(ctx, cfg, opts)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenPostgres connects with retry, migrates, and optionally enables TimescaleDB.
// With opts.ReadOnly it only connects.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig, opts OpenOptions) (*PostgresStore, error) {
	logger := opts.Logger.With().Str("component", "storage").Logger()
	plan := planBootstrap(cfg, opts)

	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if plan.Migrate {
		db, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("open migration connection: %w", err)
		}
		err = migrate(ctx, db, dialectPostgres, logger)
		db.Close()
		if err != nil {
			pool.Close()
			return nil, err
		}
	}

	if plan.Hypertable {
		chunk := time.Duration(0)
		if plan.SizeChunks {
			if memBytes, err := HostMemory(); err != nil {
				logger.Warn().Err(err).Msg("host memory unknown; keeping default chunk interval")
			} else {
				chunk = ChunkInterval(opts.RefreshPeriod, memBytes, opts.Accounts)
			}
		}
		if err := EnableHypertable(ctx, pool, chunk); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info().Dur("chunk_interval", chunk).Msg("timescale hypertable ready")
	}

	return NewPostgresStore(pool), nil
}

// Connect opens a pool and pings it, retrying every ConnectInterval.
// ConnectAttempts of zero retries until ctx is cancelled.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*pgxpool.Pool, error) {
	interval := cfg.ConnectInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	backoff := goretry.NewConstant(interval)
	if cfg.ConnectAttempts > 0 {
		backoff = goretry.WithMaxRetries(cfg.ConnectAttempts, backoff)
	}

	var pool *pgxpool.Pool
	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			logger.Warn().Err(err).Msg("failed to connect to database, retrying")
			return goretry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return pool, nil
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}
