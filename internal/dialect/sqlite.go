package dialect

import (
	"fmt"
	"strings"

	"github.com/Zhukowych/tablepp/internal/ast"
)

// sqlite implements the Dialect interface for SQLite.
type sqlite struct{}

// SQLite returns the SQLite dialect implementation.
func SQLite() Dialect {
	return &sqlite{}
}

func (d *sqlite) Name() string {
	return "sqlite"
}

// -----------------------------------------------------------------------------
// Type mappings
// SQLite has dynamic typing with type affinities. Declared types are kept
// verbatim in the catalog, so VARCHAR(n) survives introspection.
// -----------------------------------------------------------------------------

func (d *sqlite) IDType() string {
	return "INTEGER"
}

func (d *sqlite) StringType(length int) string {
	return fmt.Sprintf("VARCHAR(%d)", length)
}

func (d *sqlite) TextType() string {
	return "TEXT"
}

func (d *sqlite) IntegerType() string {
	return "INTEGER"
}

func (d *sqlite) FloatType() string {
	return "REAL"
}

// -----------------------------------------------------------------------------
// Identifiers
// -----------------------------------------------------------------------------

func (d *sqlite) QuoteIdent(name string) string {
	return quoteIdentDoubleQuote(name)
}

func (d *sqlite) Placeholder(index int) string {
	// SQLite uses ? for all placeholders
	return "?"
}

func (d *sqlite) ILike() string {
	return "LIKE"
}

// -----------------------------------------------------------------------------
// SQL generation
// -----------------------------------------------------------------------------

func (d *sqlite) CreateTableSQL(op *ast.CreateTable) (string, error) {
	return buildCreateTableSQL(op, d.QuoteIdent, d.columnDefSQL)
}

func (d *sqlite) DropTableSQL(op *ast.DropTable) (string, error) {
	return buildDropTableSQL(op, d.QuoteIdent)
}

func (d *sqlite) AddColumnSQL(op *ast.AddColumn) (string, error) {
	// ADD COLUMN with REFERENCES is accepted as long as the column is
	// nullable without a default, which is always the case here.
	return buildAddColumnSQL(op, d.QuoteIdent, d.columnDefSQL)
}

// DropColumnSQL drops a column in place (SQLite 3.35+) unless the column
// carries a foreign key, which SQLite refuses to drop. Such columns are
// removed by rebuilding the table:
//  1. create a copy without the column
//  2. copy rows and the autoincrement counter
//  3. drop the original and rename the copy
//  4. recreate the surviving indexes
//
// The caller must run the rebuild with foreign key enforcement disabled on
// the connection, otherwise dropping the original fires ON DELETE actions
// in referencing tables.
func (d *sqlite) DropColumnSQL(op *ast.DropColumn) ([]string, error) {
	dropped := op.Dropped()
	if dropped == nil || dropped.Reference == nil {
		sql, err := buildDropColumnSQL(op, d.QuoteIdent)
		if err != nil {
			return nil, err
		}
		return []string{sql}, nil
	}
	return d.rebuildWithout(op.Current, op.Name)
}

func (d *sqlite) rebuildWithout(current *ast.TableDef, column string) ([]string, error) {
	table := current.Name
	tmp := "_rebuild_" + table
	remaining := current.Without(column)

	create, err := d.CreateTableSQL(&ast.CreateTable{
		TableOp: ast.TableOp{Name: tmp},
		Columns: remaining.Columns,
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, len(remaining.Columns))
	for i, col := range remaining.Columns {
		names[i] = col.Name
	}
	var cols strings.Builder
	writeQuotedList(&cols, names, d.QuoteIdent)

	stmts := []string{
		create,
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			d.QuoteIdent(tmp), cols.String(), cols.String(), d.QuoteIdent(table)),
	}
	if pk := remaining.PrimaryKey(); pk != nil && pk.Type == ast.TypeID {
		stmts = append(stmts,
			fmt.Sprintf("DELETE FROM sqlite_sequence WHERE name = %s", quoteLiteral(tmp)),
			fmt.Sprintf("INSERT INTO sqlite_sequence (name, seq) SELECT %s, seq FROM sqlite_sequence WHERE name = %s",
				quoteLiteral(tmp), quoteLiteral(table)),
		)
	}
	stmts = append(stmts,
		fmt.Sprintf("DROP TABLE %s", d.QuoteIdent(table)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.QuoteIdent(tmp), d.QuoteIdent(table)),
	)

	for _, idx := range remaining.Indexes {
		sql, err := d.CreateIndexSQL(&ast.CreateIndex{
			TableRef: ast.TableRef{Table_: table},
			Name:     idx.Name,
			Columns:  idx.Columns,
			Unique:   idx.Unique,
		})
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, sql)
	}
	return stmts, nil
}

func (d *sqlite) CreateIndexSQL(op *ast.CreateIndex) (string, error) {
	return buildCreateIndexSQL(op, d.QuoteIdent)
}

func (d *sqlite) DropIndexSQL(op *ast.DropIndex) (string, error) {
	return buildDropIndexSQL(op, d.QuoteIdent)
}

// -----------------------------------------------------------------------------
// Helper methods
// -----------------------------------------------------------------------------

// columnDefSQL generates the SQL for a column definition.
func (d *sqlite) columnDefSQL(col *ast.ColumnDef) string {
	return buildColumnDefSQL(col, ColumnDefConfig{
		QuoteIdent:       d.QuoteIdent,
		Types:            d,
		PrimaryKeySuffix: " AUTOINCREMENT",
	})
}
