package introspect

import (
	"context"
	"database/sql"
	"testing"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/ast"
	"github.com/Zhukowych/tablepp/internal/dialect"
	"github.com/Zhukowych/tablepp/internal/testutil"
)

// -----------------------------------------------------------------------------
// Type mapping
// -----------------------------------------------------------------------------

func TestMapSQLiteType(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawColumn
		wantType string
		wantLen  int
	}{
		{"id", RawColumn{DataType: "INTEGER", IsPrimaryKey: true}, ast.TypeID, 0},
		{"integer", RawColumn{DataType: "INTEGER"}, ast.TypeInteger, 0},
		{"varchar", RawColumn{DataType: "VARCHAR(128)"}, ast.TypeString, 128},
		{"varchar lowercase", RawColumn{DataType: "varchar( 12 )"}, ast.TypeString, 12},
		{"varchar no length", RawColumn{DataType: "VARCHAR"}, ast.TypeText, 0},
		{"text", RawColumn{DataType: "TEXT"}, ast.TypeText, 0},
		{"real", RawColumn{DataType: "REAL"}, ast.TypeFloat, 0},
		{"unknown", RawColumn{DataType: "BLOB"}, "blob", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MapSQLiteType(tt.raw)
			if m.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", m.Type, tt.wantType)
			}
			col := &ast.ColumnDef{Type: m.Type, TypeArgs: m.TypeArgs}
			if col.Length() != tt.wantLen {
				t.Errorf("Length = %d, want %d", col.Length(), tt.wantLen)
			}
		})
	}
}

func TestMapPostgresType(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawColumn
		wantType string
		wantLen  int
	}{
		{"bigserial", RawColumn{DataType: "bigint", IsPrimaryKey: true, Default: nullString("nextval('t_id_seq'::regclass)")}, ast.TypeID, 0},
		{"bigint", RawColumn{DataType: "bigint"}, ast.TypeInteger, 0},
		{"varchar", RawColumn{DataType: "character varying", MaxLength: sql.NullInt64{Int64: 64, Valid: true}}, ast.TypeString, 64},
		{"text", RawColumn{DataType: "text"}, ast.TypeText, 0},
		{"double", RawColumn{DataType: "double precision"}, ast.TypeFloat, 0},
		{"uuid", RawColumn{DataType: "uuid"}, "uuid", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MapPostgresType(tt.raw)
			if m.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", m.Type, tt.wantType)
			}
			col := &ast.ColumnDef{Type: m.Type, TypeArgs: m.TypeArgs}
			if col.Length() != tt.wantLen {
				t.Errorf("Length = %d, want %d", col.Length(), tt.wantLen)
			}
		})
	}
}

func TestNormalizeAction(t *testing.T) {
	tests := map[string]string{
		"set null":  "SET NULL",
		"CASCADE":   "CASCADE",
		"NO ACTION": "",
		"":          "",
	}
	for in, want := range tests {
		if got := normalizeAction(in); got != want {
			t.Errorf("normalizeAction(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNew_UnsupportedDialect(t *testing.T) {
	_, err := New(nil)
	testutil.AssertError(t, err, alerr.EUnsupportedDialect)
}

// -----------------------------------------------------------------------------
// SQLite catalog
// -----------------------------------------------------------------------------

func createTable(t *testing.T, db *sql.DB, d dialect.Dialect, def *ast.TableDef) {
	t.Helper()
	ops := []ast.Operation{&ast.CreateTable{TableOp: ast.TableOp{Name: def.Name}, Columns: def.Columns}}
	for _, idx := range def.Indexes {
		ops = append(ops, &ast.CreateIndex{
			TableRef: ast.TableRef{Table_: def.Name},
			Name:     idx.Name,
			Columns:  idx.Columns,
			Unique:   idx.Unique,
		})
	}
	for _, op := range ops {
		stmts := testutil.MustValue(dialect.Statements(d, op))(t)
		for _, stmt := range stmts {
			testutil.ExecSQL(t, db, stmt)
		}
	}
}

func TestSQLiteInspect(t *testing.T) {
	db := testutil.SetupSQLite(t)
	d := dialect.Get("sqlite")
	ctx := context.Background()

	companies := &ast.TableDef{
		Name: "table_aa",
		Columns: []*ast.ColumnDef{
			{Name: "id", Type: ast.TypeID, PrimaryKey: true},
			{Name: "column_name", Type: ast.TypeString, TypeArgs: []any{128}, Nullable: true},
		},
	}
	contacts := &ast.TableDef{
		Name: "table_bb",
		Columns: []*ast.ColumnDef{
			{Name: "id", Type: ast.TypeID, PrimaryKey: true},
			{Name: "column_first", Type: ast.TypeString, TypeArgs: []any{32}, Nullable: true},
			{Name: "column_last", Type: ast.TypeText, Nullable: true},
			{Name: "column_age", Type: ast.TypeInteger, Nullable: true},
			{Name: "column_score", Type: ast.TypeFloat, Nullable: true},
			{Name: "column_company", Type: ast.TypeInteger, Nullable: true,
				Reference: &ast.Reference{Table: "table_aa", Column: "id", OnDelete: "SET NULL"}},
		},
		Indexes: []*ast.IndexDef{
			{Name: "table_bb_uq_0001", Columns: []string{"column_first", "column_last"}, Unique: true},
		},
	}
	createTable(t, db, d, companies)
	createTable(t, db, d, contacts)
	testutil.ExecSQL(t, db, `CREATE TABLE "tablepp_tables" ("id" INTEGER PRIMARY KEY, "name" TEXT UNIQUE)`)
	testutil.ExecSQL(t, db, `CREATE TABLE "notes" ("id" INTEGER PRIMARY KEY)`)

	in := testutil.MustValue(New(d))(t)
	schema := testutil.MustValue(in.Inspect(ctx, db))(t)

	if got := schema.Names(); len(got) != 2 || got[0] != "table_aa" || got[1] != "table_bb" {
		t.Fatalf("Names() = %v, want managed tables only", got)
	}

	got := schema.Get("table_bb")
	for _, want := range contacts.Columns {
		col := got.GetColumn(want.Name)
		if col == nil {
			t.Errorf("column %s missing", want.Name)
			continue
		}
		if !col.Equal(want) {
			t.Errorf("column %s = %+v, want %+v", want.Name, col, want)
		}
	}
	if ref := got.GetColumn("column_company").Reference; ref == nil || ref.OnDelete != "SET NULL" {
		t.Errorf("reference = %+v", ref)
	}

	if len(got.Indexes) != 1 {
		t.Fatalf("Indexes = %v, want one", got.Indexes)
	}
	if got.Indexes[0].Key() != contacts.Indexes[0].Key() {
		t.Errorf("index key = %q, want %q", got.Indexes[0].Key(), contacts.Indexes[0].Key())
	}
	if len(schema.Get("table_aa").Indexes) != 0 {
		t.Errorf("autoindexes should be skipped: %v", schema.Get("table_aa").Indexes)
	}
}

func TestSQLiteTableExists(t *testing.T) {
	db := testutil.SetupSQLite(t)
	ctx := context.Background()
	testutil.ExecSQL(t, db, `CREATE TABLE "table_cc" ("id" INTEGER PRIMARY KEY AUTOINCREMENT)`)

	in := testutil.MustValue(New(dialect.Get("sqlite")))(t)
	testutil.AssertTrue(t, testutil.MustValue(in.TableExists(ctx, db, "table_cc"))(t), "table_cc exists")
	testutil.AssertFalse(t, testutil.MustValue(in.TableExists(ctx, db, "table_dd"))(t), "table_dd missing")

	def := testutil.MustValue(in.Table(ctx, db, "table_dd"))(t)
	if def != nil {
		t.Errorf("Table(missing) = %+v, want nil", def)
	}
}
