// Package store provides the SQL-backed implementation of the repository
// contracts in package repo. It runs on SQLite by default and on
// PostgreSQL behind the same queries via the driver abstraction.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/taskorchestrator/taskorchestrator/internal/store/driver"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Store is a database handle plus its dialect driver. One Store value
// satisfies repo.Set.
type Store struct {
	db  *sql.DB
	drv driver.Driver
}

// Open opens (creating if needed) a SQLite store at the given path, runs
// migrations, and seeds the built-in template catalog.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return OpenDSN(driver.DialectSQLite, path)
}

// OpenDSN opens a store on a specific dialect, runs migrations, and seeds
// the built-in template catalog.
func OpenDSN(dialect driver.Dialect, dsn string) (*Store, error) {
	drv, err := driver.New(dialect)
	if err != nil {
		return nil, err
	}

	db, err := drv.Open(dsn)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, drv: drv}
	ctx := context.Background()

	if err := drv.Migrate(ctx, db, schemaFS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.seedBuiltinTemplates(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed templates: %w", err)
	}

	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect returns the active dialect.
func (s *Store) Dialect() driver.Dialect {
	return s.drv.Dialect()
}

// exec runs a write query after placeholder rebinding.
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.drv.Rebind(query), args...)
}

// query runs a read query after placeholder rebinding.
func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.drv.Rebind(query), args...)
}

// queryRow runs a single-row read query after placeholder rebinding.
func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.drv.Rebind(query), args...)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// --- Column encoding helpers ---

// encodeTags serializes a tag list as a JSON array. Nil encodes as [].
func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// decodeTags parses a JSON tag column. Malformed values yield nil.
func decodeTags(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}

// formatTime writes a timestamp in the store's canonical RFC3339 form.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime reads a stored RFC3339 timestamp. Unparseable values yield the
// zero time rather than failing the whole row.
func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableStr converts an optional reference to its column value.
func nullableStr(p *string) any {
	if p == nil || *p == "" {
		return nil
	}
	return *p
}

// strPtr converts a scanned nullable column back to an optional reference.
func strPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	v := ns.String
	return &v
}
