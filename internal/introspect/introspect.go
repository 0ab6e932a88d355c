// Package introspect provides database schema introspection for all supported dialects.
// It queries database system catalogs to discover the managed physical tables,
// their columns, indexes and foreign keys, then converts them to AST structures
// for schema comparison.
package introspect

import (
	"context"
	"database/sql"
	"strings"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/ast"
	"github.com/Zhukowych/tablepp/internal/dialect"
	"github.com/Zhukowych/tablepp/internal/engine"
	"github.com/Zhukowych/tablepp/internal/registry"
)

// Introspector queries database catalogs to discover schema information.
// It satisfies engine.Inspector.
type Introspector interface {
	// Inspect returns every managed table. Metadata tables and anything not
	// created by the synchronizer are skipped.
	Inspect(ctx context.Context, q engine.Queryer) (*engine.Schema, error)

	// Table returns a single table definition, or nil if not found.
	Table(ctx context.Context, q engine.Queryer, name string) (*ast.TableDef, error)

	// TableExists checks if a table exists in the database.
	TableExists(ctx context.Context, q engine.Queryer, name string) (bool, error)
}

// New creates an Introspector for the given dialect.
func New(d dialect.Dialect) (Introspector, error) {
	if d == nil {
		return nil, alerr.New(alerr.EUnsupportedDialect, "dialect is required")
	}
	switch d.Name() {
	case "postgres":
		return &postgresIntrospector{}, nil
	case "sqlite":
		return &sqliteIntrospector{}, nil
	default:
		return nil, alerr.New(alerr.EUnsupportedDialect, "introspection not supported").
			With("dialect", d.Name())
	}
}

// RawColumn represents column metadata from database catalog.
type RawColumn struct {
	Name         string
	DataType     string // Raw SQL type (VARCHAR, INTEGER, etc.)
	IsNullable   bool
	Default      sql.NullString // Raw default expression
	IsPrimaryKey bool
	MaxLength    sql.NullInt64 // For VARCHAR(n)
}

// normalizeAction converts a catalog action to the form ast uses.
func normalizeAction(action string) string {
	switch strings.ToUpper(action) {
	case "CASCADE":
		return "CASCADE"
	case "SET NULL":
		return "SET NULL"
	case "SET DEFAULT":
		return "SET DEFAULT"
	case "RESTRICT":
		return "RESTRICT"
	default:
		return ""
	}
}

// isManaged reports whether a table belongs to the synchronizer.
func isManaged(name string) bool {
	return registry.IsManagedTable(name)
}
