package introspect

import (
	"context"
	"strings"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/ast"
	"github.com/Zhukowych/tablepp/internal/engine"
)

type postgresIntrospector struct{}

func (p *postgresIntrospector) Inspect(ctx context.Context, q engine.Queryer) (*engine.Schema, error) {
	return inspectCommon(ctx, p, q)
}

func (p *postgresIntrospector) Table(ctx context.Context, q engine.Queryer, name string) (*ast.TableDef, error) {
	return tableCommon(ctx, p, q, name)
}

func (p *postgresIntrospector) listTables(ctx context.Context, q engine.Queryer) ([]string, error) {
	return collectStrings(ctx, q, "list tables", "", `
		SELECT tablename FROM pg_tables
		WHERE schemaname = current_schema()
		ORDER BY tablename
	`)
}

func (p *postgresIntrospector) introspectColumns(ctx context.Context, q engine.Queryer, table string) ([]*ast.ColumnDef, error) {
	query := `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.column_default,
			c.character_maximum_length,
			COALESCE(pk.is_pk, FALSE) as is_primary_key
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT kcu.column_name, TRUE as is_pk
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.table_name = $1
				AND tc.constraint_type = 'PRIMARY KEY'
				AND tc.table_schema = current_schema()
		) pk ON c.column_name = pk.column_name
		WHERE c.table_schema = current_schema()
			AND c.table_name = $1
		ORDER BY c.ordinal_position
	`

	rows, err := q.QueryContext(ctx, query, table)
	if err != nil {
		return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to introspect columns").WithTable(table)
	}
	defer rows.Close()

	var columns []*ast.ColumnDef
	for rows.Next() {
		var (
			raw        RawColumn
			isNullable string
		)
		if err := rows.Scan(&raw.Name, &raw.DataType, &isNullable, &raw.Default, &raw.MaxLength, &raw.IsPrimaryKey); err != nil {
			return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to scan column").WithTable(table)
		}
		raw.IsNullable = isNullable == "YES"

		columns = append(columns, columnFromRaw(raw, MapPostgresType(raw)))
	}
	if err := rows.Err(); err != nil {
		return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to introspect columns").WithTable(table)
	}
	return columns, nil
}

func (p *postgresIntrospector) introspectIndexes(ctx context.Context, q engine.Queryer, table string) ([]*ast.IndexDef, error) {
	query := `
		SELECT
			i.relname as index_name,
			ix.indisunique as is_unique,
			array_to_string(array_agg(a.attname ORDER BY x.n), ',') as columns
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS x(attnum, n) ON TRUE
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = x.attnum
		WHERE t.relname = $1
			AND t.relnamespace = (SELECT oid FROM pg_namespace WHERE nspname = current_schema())
			AND NOT ix.indisprimary
		GROUP BY i.relname, ix.indisunique
		ORDER BY i.relname
	`

	rows, err := q.QueryContext(ctx, query, table)
	if err != nil {
		return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to introspect indexes").WithTable(table)
	}
	defer rows.Close()

	var indexes []*ast.IndexDef
	for rows.Next() {
		var (
			name    string
			unique  bool
			columns string
		)
		if err := rows.Scan(&name, &unique, &columns); err != nil {
			return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to scan index").WithTable(table)
		}
		indexes = append(indexes, &ast.IndexDef{
			Name:    name,
			Columns: strings.Split(columns, ","),
			Unique:  unique,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to introspect indexes").WithTable(table)
	}
	return indexes, nil
}

func (p *postgresIntrospector) introspectReferences(ctx context.Context, q engine.Queryer, table string) (map[string]*ast.Reference, error) {
	query := `
		SELECT
			kcu.column_name,
			ccu.table_name AS foreign_table_name,
			ccu.column_name AS foreign_column_name,
			rc.delete_rule
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		JOIN information_schema.referential_constraints AS rc
			ON rc.constraint_name = tc.constraint_name
			AND rc.constraint_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_name = $1
			AND tc.table_schema = current_schema()
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`

	rows, err := q.QueryContext(ctx, query, table)
	if err != nil {
		return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to introspect foreign keys").WithTable(table)
	}
	defer rows.Close()

	refs := make(map[string]*ast.Reference)
	for rows.Next() {
		var column, refTable, refColumn, onDelete string
		if err := rows.Scan(&column, &refTable, &refColumn, &onDelete); err != nil {
			return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to scan foreign key").WithTable(table)
		}
		refs[column] = &ast.Reference{
			Table:    refTable,
			Column:   refColumn,
			OnDelete: normalizeAction(onDelete),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to introspect foreign keys").WithTable(table)
	}
	return refs, nil
}

func (p *postgresIntrospector) TableExists(ctx context.Context, q engine.Queryer, name string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_tables
			WHERE schemaname = current_schema() AND tablename = $1
		)
	`, name).Scan(&exists)
	if err != nil {
		return false, alerr.Wrap(alerr.ErrIntrospection, err, "failed to check table existence").WithTable(name)
	}
	return exists, nil
}
