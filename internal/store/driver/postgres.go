package driver

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

type postgresDriver struct{}

func (d *postgresDriver) Dialect() Dialect {
	return DialectPostgres
}

// Open opens a PostgreSQL connection and verifies it with a ping.
func (d *postgresDriver) Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Rebind numbers ? placeholders as $1, $2, ...
func (d *postgresDriver) Rebind(query string) string {
	return rebindNumbered(query)
}

func (d *postgresDriver) Migrate(ctx context.Context, db *sql.DB, schema fs.FS) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS _migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`
	return applyMigrations(ctx, db, schema, "postgres_", ddl, "INSERT INTO _migrations (version) VALUES ($1)")
}
