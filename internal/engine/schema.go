// Package engine is the Migration Synchronizer. It reconciles the physical
// tables of a database with the schema the registry describes: it diffs the
// expected schema against the introspected one, orders the resulting
// operations by dependency and applies them.
package engine

import (
	"context"
	"database/sql"
	"slices"

	"github.com/Zhukowych/tablepp/internal/ast"
	"github.com/Zhukowych/tablepp/internal/model"
)

// Queryer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Inspector reads the live physical schema of the managed tables.
type Inspector interface {
	Inspect(ctx context.Context, q Queryer) (*Schema, error)
}

// Schema is a set of physical tables keyed by name.
type Schema struct {
	Tables map[string]*ast.TableDef
}

// NewSchema creates a new empty Schema.
func NewSchema() *Schema {
	return &Schema{Tables: make(map[string]*ast.TableDef)}
}

// SchemaFromTables creates a Schema from a slice of table definitions.
func SchemaFromTables(tables []*ast.TableDef) *Schema {
	s := NewSchema()
	for _, t := range tables {
		s.Add(t)
	}
	return s
}

// Expected returns the schema the models describe.
func Expected(models []*model.Model) *Schema {
	defs := make([]*ast.TableDef, len(models))
	for i, m := range models {
		defs[i] = m.Def
	}
	return SchemaFromTables(defs)
}

// Add inserts or replaces a table.
func (s *Schema) Add(t *ast.TableDef) {
	s.Tables[t.Name] = t
}

// Get returns the table with the given name, or nil.
func (s *Schema) Get(name string) *ast.TableDef {
	return s.Tables[name]
}

// Names returns the table names in sorted order.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of tables.
func (s *Schema) Len() int {
	return len(s.Tables)
}
