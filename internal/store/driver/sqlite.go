package driver

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

type sqliteDriver struct{}

func (d *sqliteDriver) Dialect() Dialect {
	return DialectSQLite
}

// Open opens a SQLite database at the given path. In-memory databases are
// pinned to a single connection: with pooling, every new connection would
// otherwise see its own empty database.
func (d *sqliteDriver) Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	return db, nil
}

// Rebind is a no-op: SQLite uses ? placeholders natively.
func (d *sqliteDriver) Rebind(query string) string {
	return query
}

func (d *sqliteDriver) Migrate(ctx context.Context, db *sql.DB, schema fs.FS) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS _migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT DEFAULT (datetime('now'))
		)
	`
	return applyMigrations(ctx, db, schema, "sqlite_", ddl, "INSERT INTO _migrations (version) VALUES (?)")
}
