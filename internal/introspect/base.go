// Package introspect provides database schema introspection.
// This file contains shared helper functions used by all introspector implementations.
package introspect

import (
	"context"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/ast"
	"github.com/Zhukowych/tablepp/internal/engine"
)

// catalog is the per-dialect catalog access shared by the introspectors.
type catalog interface {
	listTables(ctx context.Context, q engine.Queryer) ([]string, error)
	introspectColumns(ctx context.Context, q engine.Queryer, table string) ([]*ast.ColumnDef, error)
	introspectIndexes(ctx context.Context, q engine.Queryer, table string) ([]*ast.IndexDef, error)
	introspectReferences(ctx context.Context, q engine.Queryer, table string) (map[string]*ast.Reference, error)
}

// inspectCommon is the shared implementation of Inspect.
func inspectCommon(ctx context.Context, c catalog, q engine.Queryer) (*engine.Schema, error) {
	schema := engine.NewSchema()

	tables, err := c.listTables(ctx, q)
	if err != nil {
		return nil, err
	}

	for _, name := range tables {
		if !isManaged(name) {
			continue
		}
		def, err := tableCommon(ctx, c, q, name)
		if err != nil {
			return nil, err
		}
		if def != nil {
			schema.Add(def)
		}
	}
	return schema, nil
}

// tableCommon is the shared implementation of Table.
func tableCommon(ctx context.Context, c catalog, q engine.Queryer, name string) (*ast.TableDef, error) {
	columns, err := c.introspectColumns(ctx, q, name)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, nil // Table doesn't exist
	}

	refs, err := c.introspectReferences(ctx, q, name)
	if err != nil {
		return nil, err
	}
	for _, col := range columns {
		if ref, ok := refs[col.Name]; ok {
			col.Reference = ref
		}
	}

	indexes, err := c.introspectIndexes(ctx, q, name)
	if err != nil {
		return nil, err
	}

	return &ast.TableDef{
		Name:    name,
		Columns: columns,
		Indexes: indexes,
	}, nil
}

// collectStrings scans a single-column result set.
func collectStrings(ctx context.Context, q engine.Queryer, op, table, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to "+op).WithTable(table)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to scan "+op).WithTable(table)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to "+op).WithTable(table)
	}
	return out, nil
}
