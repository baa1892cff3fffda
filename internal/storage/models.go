package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured indicates no database driver was configured.
var ErrNotConfigured = errors.New("storage: database not configured")

// Sample is one observation of one account: a row of the vault_watcher table.
type Sample struct {
	Timestamp time.Time
	Address   string
	Name      string
	// Value is the scaled balance for vaults, 1 or 0 for programs.
	Value float64
}

// Sink persists samples.
type Sink interface {
	Commit(ctx context.Context, sample Sample) error
}

// Reader queries persisted samples.
type Reader interface {
	// ListRecent returns the newest samples first.
	ListRecent(ctx context.Context, limit int) ([]Sample, error)
	// ListBetween returns samples in [from, to) in ascending time order.
	// An empty name matches every account.
	ListBetween(ctx context.Context, name string, from, to time.Time) ([]Sample, error)
}

// Store is a Sink and Reader backed by a database.
type Store interface {
	Sink
	Reader
	Ping(ctx context.Context) error
	Close()
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}
