package dialect

import (
	"strings"
	"testing"

	"github.com/Zhukowych/tablepp/internal/ast"
)

func contactsTable() *ast.TableDef {
	return &ast.TableDef{
		Name: "table_c0ffee",
		Columns: []*ast.ColumnDef{
			{Name: "id", Type: ast.TypeID, PrimaryKey: true},
			{Name: "column_name", Type: ast.TypeString, TypeArgs: []any{64}, Nullable: true},
			{Name: "column_age", Type: ast.TypeInteger, Nullable: true},
			{Name: "column_company", Type: ast.TypeInteger, Nullable: true,
				Reference: &ast.Reference{Table: "table_beef", OnDelete: "SET NULL"}},
		},
		Indexes: []*ast.IndexDef{
			{Name: "table_c0ffee_uq_1", Columns: []string{"column_name", "column_age"}, Unique: true},
		},
	}
}

func TestGet(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"postgres", "postgres"},
		{"postgresql", "postgres"},
		{"sqlite", "sqlite"},
		{"sqlite3", "sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Get(tt.name)
			if d == nil || d.Name() != tt.want {
				t.Fatalf("Get(%q) = %v, want %s", tt.name, d, tt.want)
			}
			if DriverName(d) != tt.want {
				t.Errorf("DriverName() = %q, want %q", DriverName(d), tt.want)
			}
		})
	}
	if Get("mysql") != nil {
		t.Error("Get(mysql) should be nil")
	}
}

// -----------------------------------------------------------------------------
// CREATE TABLE
// -----------------------------------------------------------------------------

func TestCreateTableSQL(t *testing.T) {
	def := contactsTable()
	op := &ast.CreateTable{TableOp: ast.TableOp{Name: def.Name}, Columns: def.Columns}

	tests := []struct {
		dialect Dialect
		want    string
	}{
		{SQLite(), `CREATE TABLE "table_c0ffee" (
  "id" INTEGER PRIMARY KEY AUTOINCREMENT,
  "column_name" VARCHAR(64),
  "column_age" INTEGER,
  "column_company" INTEGER REFERENCES "table_beef"("id") ON DELETE SET NULL
)`},
		{Postgres(), `CREATE TABLE "table_c0ffee" (
  "id" BIGSERIAL PRIMARY KEY,
  "column_name" VARCHAR(64),
  "column_age" BIGINT,
  "column_company" BIGINT REFERENCES "table_beef"("id") ON DELETE SET NULL
)`},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.Name(), func(t *testing.T) {
			got, err := tt.dialect.CreateTableSQL(op)
			if err != nil {
				t.Fatalf("CreateTableSQL() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CreateTableSQL() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestColumnTypes(t *testing.T) {
	tests := []struct {
		col    *ast.ColumnDef
		sqlite string
		pg     string
	}{
		{&ast.ColumnDef{Name: "column_a", Type: ast.TypeText, Nullable: true}, `"column_a" TEXT`, `"column_a" TEXT`},
		{&ast.ColumnDef{Name: "column_a", Type: ast.TypeFloat, Nullable: true}, `"column_a" REAL`, `"column_a" DOUBLE PRECISION`},
		{&ast.ColumnDef{Name: "column_a", Type: ast.TypeString, TypeArgs: []any{128}}, `"column_a" VARCHAR(128) NOT NULL`, `"column_a" VARCHAR(128) NOT NULL`},
	}

	for _, tt := range tests {
		t.Run(tt.col.Type, func(t *testing.T) {
			if got := SQLite().(*sqlite).columnDefSQL(tt.col); got != tt.sqlite {
				t.Errorf("sqlite columnDefSQL() = %q, want %q", got, tt.sqlite)
			}
			if got := Postgres().(*postgres).columnDefSQL(tt.col); got != tt.pg {
				t.Errorf("postgres columnDefSQL() = %q, want %q", got, tt.pg)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Column and index operations
// -----------------------------------------------------------------------------

func TestAddColumnSQL(t *testing.T) {
	op := &ast.AddColumn{
		TableRef: ast.TableRef{Table_: "table_c0ffee"},
		Column:   &ast.ColumnDef{Name: "column_notes", Type: ast.TypeText, Nullable: true},
	}
	got, err := SQLite().AddColumnSQL(op)
	if err != nil {
		t.Fatal(err)
	}
	want := `ALTER TABLE "table_c0ffee" ADD COLUMN "column_notes" TEXT`
	if got != want {
		t.Errorf("AddColumnSQL() = %q, want %q", got, want)
	}
}

func TestIndexSQL(t *testing.T) {
	create := &ast.CreateIndex{
		TableRef: ast.TableRef{Table_: "table_c0ffee"},
		Columns:  []string{"column_name", "column_age"},
		Unique:   true,
	}
	got, _ := Postgres().CreateIndexSQL(create)
	want := `CREATE UNIQUE INDEX "uniq_table_c0ffee_column_name_column_age" ON "table_c0ffee" ("column_name", "column_age")`
	if got != want {
		t.Errorf("CreateIndexSQL() = %q, want %q", got, want)
	}

	drop := &ast.DropIndex{Name: "table_c0ffee_uq_1", IfExists: true}
	got, _ = SQLite().DropIndexSQL(drop)
	if got != `DROP INDEX IF EXISTS "table_c0ffee_uq_1"` {
		t.Errorf("DropIndexSQL() = %q", got)
	}
}

func TestDropColumnSQL(t *testing.T) {
	t.Run("plain_column_in_place", func(t *testing.T) {
		op := &ast.DropColumn{TableRef: ast.TableRef{Table_: "table_c0ffee"}, Name: "column_age", Current: contactsTable()}
		for _, d := range []Dialect{SQLite(), Postgres()} {
			stmts, err := d.DropColumnSQL(op)
			if err != nil {
				t.Fatal(err)
			}
			if len(stmts) != 1 || stmts[0] != `ALTER TABLE "table_c0ffee" DROP COLUMN "column_age"` {
				t.Errorf("%s DropColumnSQL() = %v", d.Name(), stmts)
			}
		}
	})

	t.Run("postgres_drops_reference_in_place", func(t *testing.T) {
		op := &ast.DropColumn{TableRef: ast.TableRef{Table_: "table_c0ffee"}, Name: "column_company", Current: contactsTable()}
		stmts, err := Postgres().DropColumnSQL(op)
		if err != nil {
			t.Fatal(err)
		}
		if len(stmts) != 1 {
			t.Errorf("postgres DropColumnSQL() = %v", stmts)
		}
	})

	t.Run("sqlite_rebuilds_for_reference", func(t *testing.T) {
		op := &ast.DropColumn{TableRef: ast.TableRef{Table_: "table_c0ffee"}, Name: "column_company", Current: contactsTable()}
		stmts, err := SQLite().DropColumnSQL(op)
		if err != nil {
			t.Fatal(err)
		}
		joined := strings.Join(stmts, ";\n")

		for _, want := range []string{
			`CREATE TABLE "_rebuild_table_c0ffee"`,
			`INSERT INTO "_rebuild_table_c0ffee" ("id", "column_name", "column_age") SELECT "id", "column_name", "column_age" FROM "table_c0ffee"`,
			`INSERT INTO sqlite_sequence (name, seq) SELECT '_rebuild_table_c0ffee', seq FROM sqlite_sequence WHERE name = 'table_c0ffee'`,
			`DROP TABLE "table_c0ffee"`,
			`ALTER TABLE "_rebuild_table_c0ffee" RENAME TO "table_c0ffee"`,
			`CREATE UNIQUE INDEX "table_c0ffee_uq_1" ON "table_c0ffee" ("column_name", "column_age")`,
		} {
			if !strings.Contains(joined, want) {
				t.Errorf("rebuild missing %q in:\n%s", want, joined)
			}
		}
		if strings.Contains(joined, `"column_company"`) {
			t.Errorf("rebuild still mentions the dropped column:\n%s", joined)
		}
	})
}

// -----------------------------------------------------------------------------
// Statements dispatch
// -----------------------------------------------------------------------------

func TestStatements(t *testing.T) {
	d := SQLite()

	stmts, err := Statements(d, &ast.DropTable{TableOp: ast.TableOp{Name: "table_c0ffee"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(stmts) != 1 || stmts[0] != `DROP TABLE "table_c0ffee"` {
		t.Errorf("Statements(DropTable) = %v", stmts)
	}

	// Invalid operations are rejected before rendering.
	if _, err := Statements(d, &ast.DropTable{}); err == nil {
		t.Error("Statements() expected validation error")
	}
}

func TestPlaceholders(t *testing.T) {
	if SQLite().Placeholder(3) != "?" {
		t.Error("sqlite placeholder")
	}
	if Postgres().Placeholder(3) != "$3" {
		t.Error("postgres placeholder")
	}
	if Postgres().ILike() != "ILIKE" || SQLite().ILike() != "LIKE" {
		t.Error("ILike() mismatch")
	}
	if got := SQLite().QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Errorf("QuoteIdent() = %s", got)
	}
}
