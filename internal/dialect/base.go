// Package dialect provides database-specific SQL generation.
// This file contains shared helper functions used by all dialect implementations.
package dialect

import (
	"strings"

	"github.com/Zhukowych/tablepp/internal/ast"
)

// QuoteIdentFunc is a function that quotes an identifier.
type QuoteIdentFunc func(name string) string

// quoteIdentDoubleQuote quotes an identifier with double quotes, doubling any
// embedded quote. PostgreSQL and SQLite share this rule.
func quoteIdentDoubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral renders a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// writeQuotedList writes comma-separated quoted identifiers to the builder.
func writeQuotedList(b *strings.Builder, items []string, quote QuoteIdentFunc) {
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quote(item))
	}
}

// TypeMapper provides type-specific SQL generation.
// Each dialect implements these methods.
type TypeMapper interface {
	IDType() string
	StringType(length int) string
	TextType() string
	IntegerType() string
	FloatType() string
}

// buildColumnTypeSQL generates the SQL type for a column using the type mapper.
func buildColumnTypeSQL(col *ast.ColumnDef, mapper TypeMapper) string {
	switch col.Type {
	case ast.TypeID:
		return mapper.IDType()
	case ast.TypeString:
		length := col.Length()
		if length <= 0 {
			length = 255
		}
		return mapper.StringType(length)
	case ast.TypeText:
		return mapper.TextType()
	case ast.TypeInteger:
		return mapper.IntegerType()
	case ast.TypeFloat:
		return mapper.FloatType()
	default:
		return strings.ToUpper(col.Type)
	}
}

// ColumnDefConfig holds the callbacks and config for buildColumnDefSQL.
type ColumnDefConfig struct {
	QuoteIdent QuoteIdentFunc
	Types      TypeMapper
	// PrimaryKeySuffix is appended after PRIMARY KEY on id columns
	// (" AUTOINCREMENT" for SQLite).
	PrimaryKeySuffix string
}

// buildColumnDefSQL generates the SQL for a column definition.
// Order: name, type, PRIMARY KEY, NOT NULL, REFERENCES.
func buildColumnDefSQL(col *ast.ColumnDef, cfg ColumnDefConfig) string {
	var b strings.Builder

	b.WriteString(cfg.QuoteIdent(col.Name))
	b.WriteString(" ")
	b.WriteString(buildColumnTypeSQL(col, cfg.Types))

	if col.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
		if col.Type == ast.TypeID {
			b.WriteString(cfg.PrimaryKeySuffix)
		}
	} else if !col.Nullable {
		b.WriteString(" NOT NULL")
	}

	if col.Reference != nil {
		b.WriteString(" REFERENCES ")
		b.WriteString(cfg.QuoteIdent(col.Reference.Table))
		b.WriteString("(")
		b.WriteString(cfg.QuoteIdent(col.Reference.TargetColumn()))
		b.WriteString(")")

		if action, err := ast.NormalizeFKAction(col.Reference.OnDelete); err == nil && action != "" {
			b.WriteString(" ON DELETE ")
			b.WriteString(action)
		}
	}

	return b.String()
}

// ColumnDefFunc generates SQL for a column definition.
type ColumnDefFunc func(col *ast.ColumnDef) string

// buildCreateTableSQL generates CREATE TABLE SQL using provided helper functions.
// Indexes are not part of the statement; callers emit CreateIndex for them.
func buildCreateTableSQL(op *ast.CreateTable, quoteIdent QuoteIdentFunc, columnDef ColumnDefFunc) (string, error) {
	var b strings.Builder

	b.WriteString("CREATE TABLE ")
	if op.IfNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(quoteIdent(op.Table()))
	b.WriteString(" (\n")

	for i, col := range op.Columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString("  ")
		b.WriteString(columnDef(col))
	}

	b.WriteString("\n)")
	return b.String(), nil
}

// buildDropTableSQL generates DROP TABLE SQL.
func buildDropTableSQL(op *ast.DropTable, quoteIdent QuoteIdentFunc) (string, error) {
	var b strings.Builder
	b.WriteString("DROP TABLE ")
	if op.IfExists {
		b.WriteString("IF EXISTS ")
	}
	b.WriteString(quoteIdent(op.Table()))
	return b.String(), nil
}

// buildAddColumnSQL generates ALTER TABLE ADD COLUMN SQL.
func buildAddColumnSQL(op *ast.AddColumn, quoteIdent QuoteIdentFunc, columnDef ColumnDefFunc) (string, error) {
	var b strings.Builder
	b.WriteString("ALTER TABLE ")
	b.WriteString(quoteIdent(op.Table()))
	b.WriteString(" ADD COLUMN ")
	b.WriteString(columnDef(op.Column))
	return b.String(), nil
}

// buildDropColumnSQL generates ALTER TABLE DROP COLUMN SQL.
func buildDropColumnSQL(op *ast.DropColumn, quoteIdent QuoteIdentFunc) (string, error) {
	var b strings.Builder
	b.WriteString("ALTER TABLE ")
	b.WriteString(quoteIdent(op.Table()))
	b.WriteString(" DROP COLUMN ")
	b.WriteString(quoteIdent(op.Name))
	return b.String(), nil
}

// buildDropIndexSQL generates DROP INDEX SQL for PostgreSQL and SQLite.
func buildDropIndexSQL(op *ast.DropIndex, quoteIdent QuoteIdentFunc) (string, error) {
	var b strings.Builder

	b.WriteString("DROP INDEX ")
	if op.IfExists {
		b.WriteString("IF EXISTS ")
	}
	b.WriteString(quoteIdent(op.Name))

	return b.String(), nil
}

// IndexName returns the default index name: uniq_<table>_<cols> or
// idx_<table>_<cols>.
func IndexName(table string, unique bool, cols ...string) string {
	prefix := "idx_"
	if unique {
		prefix = "uniq_"
	}
	return prefix + table + "_" + strings.Join(cols, "_")
}

// buildCreateIndexSQL generates CREATE INDEX SQL.
func buildCreateIndexSQL(op *ast.CreateIndex, quoteIdent QuoteIdentFunc) (string, error) {
	var b strings.Builder

	b.WriteString("CREATE ")
	if op.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	if op.IfNotExists {
		b.WriteString("IF NOT EXISTS ")
	}

	indexName := op.Name
	if indexName == "" {
		indexName = IndexName(op.Table(), op.Unique, op.Columns...)
	}

	b.WriteString(quoteIdent(indexName))
	b.WriteString(" ON ")
	b.WriteString(quoteIdent(op.Table()))
	b.WriteString(" (")
	writeQuotedList(&b, op.Columns, quoteIdent)
	b.WriteString(")")

	return b.String(), nil
}
