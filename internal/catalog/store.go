// Package catalog owns the on-disk database: schema, migrations, writes,
// filtered reads, and aggregate statistics.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go driver

	"videoanalyzer/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Config defines SQLite operational parameters applied at connection open.
type Config struct {
	BusyTimeout time.Duration
}

// DefaultConfig returns the tuning this module always opens databases with:
// WAL journaling, normal synchronous mode, a 64MB cache, and an in-memory
// temp store, per spec §4.4 "Pragmas/tuning".
func DefaultConfig() Config {
	return Config{BusyTimeout: 5 * time.Second}
}

// Store is the Catalog Store: a migrated, pragma-tuned SQLite database plus
// the CRUD and query surface over it. The zero value is not usable; build
// one with Open.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path, applies the
// mandatory PRAGMAs via the connection DSN so they hold for every pooled
// connection, and runs pending goose migrations.
func Open(path string, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)&_pragma=cache_size(-64000)&_pragma=temp_store(MEMORY)&_pragma=foreign_keys(ON)",
		path, cfg.BusyTimeout.Milliseconds(),
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	// The pool may hold up to 8 connections. SQLite's own write lock lets
	// only one of them write at a time, and busy_timeout makes a second
	// writer wait for it instead of failing; WAL lets readers proceed
	// alongside the writer.
	db.SetMaxOpenConns(8)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, &model.MigrationFailedError{Reason: err.Error()}
	}

	return &Store{db: db}, nil
}

// OpenDB wraps an already-open, already-migrated *sql.DB. Used by tests
// that want to share one in-memory database across assertions.
func OpenDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	// Reapplying is a no-op once the latest version is recorded, per
	// spec §4.4 — goose.Up only applies migrations newer than the
	// recorded version.
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for callers (e.g. the integrity
// verification pragma) that need direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// VerifyIntegrity runs SQLite's own structural integrity pragma against the
// database file. mode is "quick" (PRAGMA quick_check) or "full" (PRAGMA
// integrity_check). A nil, nil-error result means the database is healthy.
func VerifyIntegrity(ctx context.Context, path string, mode string) ([]string, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(2000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open for verify: %w", err)
	}
	defer db.Close()

	pragma := "PRAGMA quick_check;"
	if mode == "full" {
		pragma = "PRAGMA integrity_check;"
	}

	rows, err := db.QueryContext(ctx, pragma)
	if err != nil {
		return nil, fmt.Errorf("catalog: integrity pragma: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var res string
		if err := rows.Scan(&res); err != nil {
			return nil, fmt.Errorf("catalog: scan integrity row: %w", err)
		}
		results = append(results, res)
	}
	if len(results) == 1 && results[0] == "ok" {
		return nil, nil
	}
	return results, nil
}
