// Package dialect provides database-specific SQL generation.
// Each dialect implements type mappings from physical column types to SQL,
// identifier quoting, and DDL statement generation.
package dialect

import (
	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/ast"
)

// Dialect defines the interface for database-specific SQL generation.
// Implementations exist for PostgreSQL and SQLite.
type Dialect interface {
	// Name returns the dialect name (postgres, sqlite).
	Name() string

	// -------------------------------------------------------------------------
	// Type mappings (physical type -> SQL)
	// -------------------------------------------------------------------------

	// IDType returns the auto-increment primary key type.
	// PostgreSQL: BIGSERIAL
	// SQLite: INTEGER (with AUTOINCREMENT)
	IDType() string

	// StringType returns a bounded string type.
	// PostgreSQL/SQLite: VARCHAR(length)
	StringType(length int) string

	// TextType returns an unbounded text type.
	// All dialects: TEXT
	TextType() string

	// IntegerType returns a 64-bit integer type.
	// PostgreSQL: BIGINT
	// SQLite: INTEGER
	IntegerType() string

	// FloatType returns a double precision floating-point type.
	// PostgreSQL: DOUBLE PRECISION
	// SQLite: REAL
	FloatType() string

	// -------------------------------------------------------------------------
	// Identifiers and expressions
	// -------------------------------------------------------------------------

	// QuoteIdent quotes an identifier (table/column name) for the dialect.
	// PostgreSQL/SQLite: "name"
	QuoteIdent(name string) string

	// Placeholder returns a parameter placeholder for the given index (1-based).
	// PostgreSQL: $1, $2, $3, ...
	// SQLite: ?, ?, ?, ...
	Placeholder(index int) string

	// ILike returns the case-insensitive LIKE operator.
	// PostgreSQL: ILIKE
	// SQLite: LIKE (case-insensitive for ASCII by default)
	ILike() string

	// -------------------------------------------------------------------------
	// SQL generation for operations
	// -------------------------------------------------------------------------

	// CreateTableSQL generates CREATE TABLE statement.
	CreateTableSQL(op *ast.CreateTable) (string, error)

	// DropTableSQL generates DROP TABLE statement.
	DropTableSQL(op *ast.DropTable) (string, error)

	// AddColumnSQL generates ALTER TABLE ADD COLUMN statement.
	AddColumnSQL(op *ast.AddColumn) (string, error)

	// DropColumnSQL generates the statements removing a column. Dialects that
	// cannot drop a referencing column in place return a table rebuild.
	DropColumnSQL(op *ast.DropColumn) ([]string, error)

	// CreateIndexSQL generates CREATE INDEX statement.
	CreateIndexSQL(op *ast.CreateIndex) (string, error)

	// DropIndexSQL generates DROP INDEX statement.
	DropIndexSQL(op *ast.DropIndex) (string, error)
}

// Get returns the dialect implementation for the given name.
// Valid names: "postgres", "postgresql", "sqlite", "sqlite3".
// Returns nil if the dialect is not supported.
func Get(name string) Dialect {
	switch name {
	case "postgres", "postgresql":
		return Postgres()
	case "sqlite", "sqlite3":
		return SQLite()
	default:
		return nil
	}
}

// Names returns the list of supported dialect names.
func Names() []string {
	return []string{"postgres", "sqlite"}
}

// DriverName returns the database/sql driver registered for the dialect.
func DriverName(d Dialect) string {
	if d.Name() == "postgres" {
		return "postgres"
	}
	return "sqlite"
}

// Statements renders a single operation to one or more SQL statements.
func Statements(d Dialect, op ast.Operation) ([]string, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}

	var (
		sql string
		err error
	)
	switch o := op.(type) {
	case *ast.CreateTable:
		sql, err = d.CreateTableSQL(o)
	case *ast.DropTable:
		sql, err = d.DropTableSQL(o)
	case *ast.AddColumn:
		sql, err = d.AddColumnSQL(o)
	case *ast.DropColumn:
		return d.DropColumnSQL(o)
	case *ast.CreateIndex:
		sql, err = d.CreateIndexSQL(o)
	case *ast.DropIndex:
		sql, err = d.DropIndexSQL(o)
	default:
		return nil, alerr.New(alerr.EInternalError, "unsupported operation").
			With("operation", op.Type().String())
	}
	if err != nil {
		return nil, err
	}
	return []string{sql}, nil
}
