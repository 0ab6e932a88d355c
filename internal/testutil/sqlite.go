package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// SQLiteDSN returns the DSN of a file database at path with foreign keys,
// WAL and a busy timeout enabled on every pooled connection.
func SQLiteDSN(path string) string {
	return "file:" + path +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(wal)"
}

// SetupSQLite opens a fresh file-backed SQLite database in the test's temp
// directory. A file is used instead of :memory: so that every pooled
// connection sees the same database and transactions behave as in production.
// The connection is closed when the test completes.
func SetupSQLite(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tablepp.db")
	db, err := sql.Open("sqlite", SQLiteDSN(path))
	if err != nil {
		t.Fatalf("failed to open sqlite connection: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Fatalf("failed to ping sqlite: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// -----------------------------------------------------------------------------
// Schema assertions
// -----------------------------------------------------------------------------

// AssertTableExists checks that a table exists in the SQLite database.
func AssertTableExists(t *testing.T, db *sql.DB, table string) {
	t.Helper()

	if !sqliteObjectExists(t, db, "table", table) {
		t.Errorf("expected table %q to exist, but it does not", table)
	}
}

// AssertTableNotExists checks that a table does not exist in the SQLite database.
func AssertTableNotExists(t *testing.T, db *sql.DB, table string) {
	t.Helper()

	if sqliteObjectExists(t, db, "table", table) {
		t.Errorf("expected table %q to not exist, but it does", table)
	}
}

// AssertIndexExists checks that an index exists in the SQLite database.
func AssertIndexExists(t *testing.T, db *sql.DB, index string) {
	t.Helper()

	if !sqliteObjectExists(t, db, "index", index) {
		t.Errorf("expected index %q to exist, but it does not", index)
	}
}

// AssertColumnExists checks that a column exists in a SQLite table.
func AssertColumnExists(t *testing.T, db *sql.DB, table, column string) {
	t.Helper()

	if !sqliteColumnExists(t, db, table, column) {
		t.Errorf("expected column %q to exist in table %q, but it does not", column, table)
	}
}

// AssertColumnNotExists checks that a column does not exist in a SQLite table.
func AssertColumnNotExists(t *testing.T, db *sql.DB, table, column string) {
	t.Helper()

	if sqliteColumnExists(t, db, table, column) {
		t.Errorf("expected column %q to not exist in table %q, but it does", column, table)
	}
}

func sqliteObjectExists(t *testing.T, db *sql.DB, kind, name string) bool {
	t.Helper()

	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?`,
		kind, name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("failed to check %s %q: %v", kind, name, err)
	}
	return n > 0
}

func sqliteColumnExists(t *testing.T, db *sql.DB, table, column string) bool {
	t.Helper()

	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&n)
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	return n > 0
}

// -----------------------------------------------------------------------------
// Data helpers
// -----------------------------------------------------------------------------

// ExecSQL executes a SQL statement and fails the test on error.
func ExecSQL(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()

	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("failed to execute SQL:\n%s\nerror: %v", query, err)
	}
}

// AssertRowCount checks that a table has the expected number of rows.
func AssertRowCount(t *testing.T, db *sql.DB, table string, expected int) {
	t.Helper()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "` + table + `"`).Scan(&count); err != nil {
		t.Fatalf("failed to count rows in %s: %v", table, err)
	}

	if count != expected {
		t.Errorf("expected %d rows in %s, got %d", expected, table, count)
	}
}
