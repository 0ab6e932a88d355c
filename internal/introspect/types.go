package introspect

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/Zhukowych/tablepp/internal/ast"
)

// TypeMapping holds the result of parsing a SQL type back to a physical type.
type TypeMapping struct {
	Type     string
	TypeArgs []any
}

// MapPostgresType converts a PostgreSQL catalog type to a physical type.
// Auto-increment primary keys map to ast.TypeID.
func MapPostgresType(raw RawColumn) TypeMapping {
	upper := strings.ToUpper(raw.DataType)

	switch {
	case raw.IsPrimaryKey && isIntegerType(upper) && raw.Default.Valid &&
		strings.HasPrefix(raw.Default.String, "nextval("):
		return TypeMapping{Type: ast.TypeID}

	case strings.HasPrefix(upper, "CHARACTER VARYING"), strings.HasPrefix(upper, "VARCHAR"):
		if raw.MaxLength.Valid && raw.MaxLength.Int64 > 0 {
			return TypeMapping{Type: ast.TypeString, TypeArgs: []any{int(raw.MaxLength.Int64)}}
		}
		return TypeMapping{Type: ast.TypeText}

	case upper == "TEXT":
		return TypeMapping{Type: ast.TypeText}

	case isIntegerType(upper):
		return TypeMapping{Type: ast.TypeInteger}

	case upper == "REAL", upper == "FLOAT4", upper == "DOUBLE PRECISION", upper == "FLOAT8":
		return TypeMapping{Type: ast.TypeFloat}

	default:
		// Types tablepp never creates; kept verbatim so drift shows them.
		return TypeMapping{Type: strings.ToLower(raw.DataType)}
	}
}

func isIntegerType(upper string) bool {
	switch upper {
	case "INTEGER", "INT", "INT4", "SMALLINT", "INT2", "BIGINT", "INT8":
		return true
	}
	return false
}

// MapSQLiteType converts a declared SQLite type to a physical type.
// SQLite keeps declared types verbatim, so VARCHAR(n) keeps its length.
func MapSQLiteType(raw RawColumn) TypeMapping {
	upper := strings.ToUpper(strings.TrimSpace(raw.DataType))

	switch {
	case raw.IsPrimaryKey && upper == "INTEGER":
		return TypeMapping{Type: ast.TypeID}

	case strings.HasPrefix(upper, "VARCHAR"):
		if n, ok := parseLength(upper); ok {
			return TypeMapping{Type: ast.TypeString, TypeArgs: []any{n}}
		}
		return TypeMapping{Type: ast.TypeText}

	case upper == "TEXT":
		return TypeMapping{Type: ast.TypeText}

	case upper == "INTEGER", upper == "BIGINT", upper == "INT":
		return TypeMapping{Type: ast.TypeInteger}

	case upper == "REAL", upper == "DOUBLE", upper == "FLOAT":
		return TypeMapping{Type: ast.TypeFloat}

	default:
		return TypeMapping{Type: strings.ToLower(raw.DataType)}
	}
}

// parseLength reads n from "VARCHAR(n)".
func parseLength(sqlType string) (int, bool) {
	open := strings.IndexByte(sqlType, '(')
	end := strings.IndexByte(sqlType, ')')
	if open < 0 || end <= open+1 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(sqlType[open+1 : end]))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// columnFromRaw builds a column definition from catalog metadata.
func columnFromRaw(raw RawColumn, m TypeMapping) *ast.ColumnDef {
	return &ast.ColumnDef{
		Name:       raw.Name,
		Type:       m.Type,
		TypeArgs:   m.TypeArgs,
		Nullable:   raw.IsNullable && !raw.IsPrimaryKey, // PK columns are never nullable
		PrimaryKey: raw.IsPrimaryKey,
	}
}

// nullString is a convenience for tests and callers building RawColumn values.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
