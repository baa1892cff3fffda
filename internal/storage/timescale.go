package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shirou/gopsutil/mem"
)

const (
	// rowSize is the approximate on-disk size of one vault_watcher row, in bytes.
	rowSize = 110
	// chunkMemoryShare is the fraction of host memory one chunk may occupy.
	chunkMemoryShare = 0.10
	minChunkAccounts = 10
	// maxChunkInterval caps chunks on hosts with much memory or long refresh periods.
	maxChunkInterval = 365 * 24 * time.Hour

	createHypertableSQL = `SELECT create_hypertable('vault_watcher', 'timestamp', if_not_exists => TRUE, migrate_data => TRUE);`
	setChunkIntervalSQL = `SELECT set_chunk_time_interval('vault_watcher', make_interval(secs => $1));`
)

// ChunkInterval sizes a hypertable chunk so that the rows written during one
// chunk take about chunkMemoryShare of memBytes. The result is capped at maxChunkInterval.
func ChunkInterval(refresh time.Duration, memBytes uint64, accounts int) time.Duration {
	if accounts < minChunkAccounts {
		accounts = minChunkAccounts
	}
	ticks := float64(memBytes) / rowSize / float64(accounts)
	secs := refresh.Seconds() * ticks * chunkMemoryShare
	if secs >= maxChunkInterval.Seconds() {
		return maxChunkInterval
	}
	return time.Duration(secs * float64(time.Second))
}

// HostMemory reports total physical memory.
func HostMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("read host memory: %w", err)
	}
	return vm.Total, nil
}

// EnableHypertable converts vault_watcher into a TimescaleDB hypertable and sets its chunk interval.
func EnableHypertable(ctx context.Context, pool *pgxpool.Pool, chunk time.Duration) error {
	if _, err := pool.Exec(ctx, createHypertableSQL); err != nil {
		return fmt.Errorf("create hypertable: %w", err)
	}
	if chunk <= 0 {
		return nil
	}
	if _, err := pool.Exec(ctx, setChunkIntervalSQL, chunk.Seconds()); err != nil {
		return fmt.Errorf("set chunk interval: %w", err)
	}
	return nil
}
