// Package driver abstracts the SQL dialects the store can run on. Queries
// in the store are written with ? placeholders and passed through Rebind,
// which numbers them for PostgreSQL and leaves them alone for SQLite.
package driver

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
)

// Dialect identifies a supported database dialect.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Driver is the dialect-specific surface the store depends on.
type Driver interface {
	// Dialect returns the dialect identifier.
	Dialect() Dialect

	// Open opens a database handle for the given DSN.
	Open(dsn string) (*sql.DB, error)

	// Rebind rewrites ? placeholders into the dialect's native form.
	Rebind(query string) string

	// Migrate applies pending schema migrations from the embedded schema
	// directory. Files are named {dialect}_NNN.sql and tracked in a
	// _migrations version table.
	Migrate(ctx context.Context, db *sql.DB, schema fs.FS) error
}

// New returns the driver for a dialect.
func New(dialect Dialect) (Driver, error) {
	switch dialect {
	case DialectSQLite:
		return &sqliteDriver{}, nil
	case DialectPostgres:
		return &postgresDriver{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}
}

// ParseDialect parses a dialect string, accepting common aliases.
func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unknown dialect: %s", s)
	}
}
