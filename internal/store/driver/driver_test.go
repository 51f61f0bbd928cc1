package driver

import "testing"

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"sqlite", DialectSQLite, false},
		{"sqlite3", DialectSQLite, false},
		{"postgres", DialectPostgres, false},
		{"postgresql", DialectPostgres, false},
		{"pg", DialectPostgres, false},
		{"mysql", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDialect(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDialect(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDialect(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRebindNumbered(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT * FROM tasks WHERE id = ?", "SELECT * FROM tasks WHERE id = $1"},
		{"UPDATE tasks SET status = ?, modified_at = ? WHERE id = ?", "UPDATE tasks SET status = $1, modified_at = $2 WHERE id = $3"},
		{"SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		if got := rebindNumbered(tt.in); got != tt.want {
			t.Errorf("rebindNumbered(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   int
	}{
		{"sqlite_001.sql", "sqlite_", 1},
		{"sqlite_012.sql", "sqlite_", 12},
		{"postgres_003.sql", "postgres_", 3},
	}
	for _, tt := range tests {
		if got := extractVersion(tt.name, tt.prefix); got != tt.want {
			t.Errorf("extractVersion(%q, %q) = %d, want %d", tt.name, tt.prefix, got, tt.want)
		}
	}
}

func TestSQLiteRebindIsIdentity(t *testing.T) {
	d := &sqliteDriver{}
	q := "SELECT * FROM tasks WHERE id = ?"
	if got := d.Rebind(q); got != q {
		t.Errorf("sqlite Rebind changed query: %q", got)
	}
}
