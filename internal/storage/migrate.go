package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

type dialect struct {
	name string
	dir  string
}

var (
	dialectPostgres = dialect{name: "postgres", dir: "migrations/postgres"}
	dialectSQLite   = dialect{name: "sqlite3", dir: "migrations/sqlite"}
)

// goose keeps its dialect, filesystem and logger in package globals.
var gooseMu sync.Mutex

func migrate(ctx context.Context, db *sql.DB, d dialect, logger zerolog.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationFS)
	goose.SetLogger(gooseLogger{logger: logger.With().Str("component", "migrations").Logger()})
	if err := goose.SetDialect(d.name); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, d.dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// gooseLogger routes goose output through zerolog.
type gooseLogger struct {
	logger zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
