package introspect

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/ast"
	"github.com/Zhukowych/tablepp/internal/engine"
)

type sqliteIntrospector struct{}

func (s *sqliteIntrospector) Inspect(ctx context.Context, q engine.Queryer) (*engine.Schema, error) {
	return inspectCommon(ctx, s, q)
}

func (s *sqliteIntrospector) Table(ctx context.Context, q engine.Queryer, name string) (*ast.TableDef, error) {
	return tableCommon(ctx, s, q, name)
}

func (s *sqliteIntrospector) listTables(ctx context.Context, q engine.Queryer) ([]string, error) {
	return collectStrings(ctx, q, "list tables", "", `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY name
	`)
}

func (s *sqliteIntrospector) introspectColumns(ctx context.Context, q engine.Queryer, table string) ([]*ast.ColumnDef, error) {
	// Returns: cid, name, type, notnull, dflt_value, pk
	rows, err := q.QueryContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to introspect columns").WithTable(table)
	}
	defer rows.Close()

	var columns []*ast.ColumnDef
	for rows.Next() {
		var (
			raw     RawColumn
			notNull int
			pk      int
		)
		if err := rows.Scan(&raw.Name, &raw.DataType, &notNull, &raw.Default, &pk); err != nil {
			return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to scan column").WithTable(table)
		}
		raw.IsNullable = notNull == 0
		raw.IsPrimaryKey = pk > 0

		columns = append(columns, columnFromRaw(raw, MapSQLiteType(raw)))
	}
	if err := rows.Err(); err != nil {
		return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to introspect columns").WithTable(table)
	}
	return columns, nil
}

func (s *sqliteIntrospector) introspectIndexes(ctx context.Context, q engine.Queryer, table string) ([]*ast.IndexDef, error) {
	// Only indexes created by CREATE INDEX (origin 'c'); constraint
	// autoindexes are part of the table definition.
	// Names are collected first and the rows closed before the per-index
	// queries, so a single-connection queryer is never asked for two open
	// result sets.
	rows, err := q.QueryContext(ctx,
		`SELECT name, "unique" FROM pragma_index_list(?) WHERE origin = 'c' ORDER BY name`, table)
	if err != nil {
		return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to introspect indexes").WithTable(table)
	}

	var indexes []*ast.IndexDef
	for rows.Next() {
		var (
			name   string
			unique int
		)
		if err := rows.Scan(&name, &unique); err != nil {
			rows.Close()
			return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to scan index").WithTable(table)
		}
		indexes = append(indexes, &ast.IndexDef{Name: name, Unique: unique == 1})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to introspect indexes").WithTable(table)
	}
	rows.Close()

	for _, idx := range indexes {
		cols, err := collectStrings(ctx, q, "get index info", table,
			`SELECT name FROM pragma_index_info(?) ORDER BY seqno`, idx.Name)
		if err != nil {
			return nil, err
		}
		idx.Columns = cols
	}
	return indexes, nil
}

func (s *sqliteIntrospector) introspectReferences(ctx context.Context, q engine.Queryer, table string) (map[string]*ast.Reference, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT "table", "from", "to", on_delete FROM pragma_foreign_key_list(?)`, table)
	if err != nil {
		return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to introspect foreign keys").WithTable(table)
	}
	defer rows.Close()

	refs := make(map[string]*ast.Reference)
	for rows.Next() {
		var (
			refTable, from, onDelete string
			to                       sql.NullString
		)
		if err := rows.Scan(&refTable, &from, &to, &onDelete); err != nil {
			return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to scan foreign key").WithTable(table)
		}
		refs[from] = &ast.Reference{
			Table:    refTable,
			Column:   to.String,
			OnDelete: normalizeAction(onDelete),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to introspect foreign keys").WithTable(table)
	}
	return refs, nil
}

func (s *sqliteIntrospector) TableExists(ctx context.Context, q engine.Queryer, name string) (bool, error) {
	var found string
	err := q.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, alerr.Wrap(alerr.ErrIntrospection, err, "failed to check table existence").WithTable(name)
	}
	return true, nil
}
