package engine_test

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"testing"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/coltype"
	"github.com/Zhukowych/tablepp/internal/dialect"
	"github.com/Zhukowych/tablepp/internal/engine"
	"github.com/Zhukowych/tablepp/internal/introspect"
	"github.com/Zhukowych/tablepp/internal/model"
	"github.com/Zhukowych/tablepp/internal/registry"
	"github.com/Zhukowych/tablepp/internal/testutil"
)

type fixture struct {
	db   *sql.DB
	reg  *registry.Store
	sync *engine.Synchronizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupSQLite(t)
	d := dialect.Get("sqlite")
	reg := registry.New(db, d)
	testutil.Must(t, reg.EnsureTables(context.Background()))
	in := testutil.MustValue(introspect.New(d))(t)
	return &fixture{db: db, reg: reg, sync: engine.New(d, in)}
}

func (f *fixture) models(t *testing.T) []*model.Model {
	t.Helper()
	return testutil.MustValue(model.NewBuilder(f.reg).BuildAll(context.Background()))(t)
}

func (f *fixture) run(t *testing.T) *engine.Report {
	t.Helper()
	return testutil.MustValue(f.sync.Sync(context.Background(), f.db, f.models(t)))(t)
}

func (f *fixture) column(t *testing.T, tbl *registry.Table, name, dtype string, settings coltype.Settings) *registry.Column {
	t.Helper()
	return testutil.MustValue(f.reg.AddColumn(context.Background(), tbl, registry.ColumnInput{
		Name: name, DType: dtype, Settings: settings,
	}))(t)
}

// -----------------------------------------------------------------------------
// Sync
// -----------------------------------------------------------------------------

func TestSync_CreatesTablesAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	companies := testutil.MustValue(f.reg.CreateTable(ctx, "Companies", "", nil))(t)
	contacts := testutil.MustValue(f.reg.CreateTable(ctx, "Contacts", "", nil))(t)
	name := f.column(t, contacts, "name", "TEXT", nil)
	age := f.column(t, contacts, "age", "INTEGER", nil)
	company := f.column(t, contacts, "company", "RELATION", coltype.Settings{"target_table_id": companies.ID})

	report := f.run(t)
	if len(report.Applied) == 0 {
		t.Fatal("first sync applied nothing")
	}

	testutil.AssertTableExists(t, f.db, companies.Slug)
	testutil.AssertTableExists(t, f.db, contacts.Slug)
	for _, c := range []*registry.Column{name, age, company} {
		testutil.AssertColumnExists(t, f.db, contacts.Slug, c.Slug)
	}

	again := f.run(t)
	if len(again.Applied) != 0 {
		t.Errorf("second sync applied %d operations, want 0", len(again.Applied))
	}
}

func TestSync_AddColumnKeepsRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tbl := testutil.MustValue(f.reg.CreateTable(ctx, "Contacts", "", nil))(t)
	name := f.column(t, tbl, "name", "TEXT", nil)
	f.run(t)

	testutil.ExecSQL(t, f.db, `INSERT INTO "`+tbl.Slug+`" ("`+name.Slug+`") VALUES ('Ada')`)

	phone := f.column(t, tbl, "phone", "TEXT", coltype.Settings{"max_length": 20})
	report := f.run(t)
	if s := report.Summary(); s.ColumnsToAdd != 1 || s.TotalOps != 1 {
		t.Errorf("summary = %+v, want one column add", s)
	}

	testutil.AssertRowCount(t, f.db, tbl.Slug, 1)
	var got sql.NullString
	testutil.Must(t, f.db.QueryRow(`SELECT "`+phone.Slug+`" FROM "`+tbl.Slug+`"`).Scan(&got))
	if got.Valid {
		t.Errorf("new column = %q, want NULL", got.String)
	}
}

func TestSync_RemoveRelationColumn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	companies := testutil.MustValue(f.reg.CreateTable(ctx, "Companies", "", nil))(t)
	contacts := testutil.MustValue(f.reg.CreateTable(ctx, "Contacts", "", nil))(t)
	name := f.column(t, contacts, "name", "TEXT", nil)
	company := f.column(t, contacts, "company", "RELATION", coltype.Settings{"target_table_id": companies.ID})
	f.run(t)

	testutil.ExecSQL(t, f.db, `INSERT INTO "`+contacts.Slug+`" ("`+name.Slug+`") VALUES ('Ada')`)

	testutil.MustValue(f.reg.RemoveColumn(ctx, contacts, company.ID))(t)
	f.run(t)

	testutil.AssertColumnNotExists(t, f.db, contacts.Slug, company.Slug)
	testutil.AssertColumnExists(t, f.db, contacts.Slug, name.Slug)
	testutil.AssertRowCount(t, f.db, contacts.Slug, 1)

	if again := f.run(t); len(again.Applied) != 0 {
		t.Errorf("sync after rebuild applied %d operations", len(again.Applied))
	}
}

func TestSync_UniqueTogether(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tbl := testutil.MustValue(f.reg.CreateTable(ctx, "People", "", nil))(t)
	first := f.column(t, tbl, "first", "TEXT", nil)
	last := f.column(t, tbl, "last", "TEXT", nil)
	tbl.Options = registry.Options{"unique_together": [][]string{{"first", "last"}}}
	testutil.Must(t, f.reg.UpdateTable(ctx, tbl))
	f.run(t)

	testutil.AssertIndexExists(t, f.db, model.UniqueIndexName(tbl.Slug, []string{first.Slug, last.Slug}))

	insert := `INSERT INTO "` + tbl.Slug + `" ("` + first.Slug + `", "` + last.Slug + `") VALUES ('Ada', 'Lovelace')`
	testutil.ExecSQL(t, f.db, insert)
	if _, err := f.db.Exec(insert); err == nil {
		t.Error("duplicate pair accepted")
	}

	tbl.Options = registry.Options{}
	testutil.Must(t, f.reg.UpdateTable(ctx, tbl))
	if s := f.run(t).Summary(); s.IndexesToDrop != 1 {
		t.Errorf("summary = %+v, want one index drop", s)
	}
	if _, err := f.db.Exec(insert); err != nil {
		t.Errorf("insert after dropping unique index: %v", err)
	}
}

func TestSync_DropsDeletedTables(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tbl := testutil.MustValue(f.reg.CreateTable(ctx, "Scratch", "", nil))(t)
	f.column(t, tbl, "note", "BIG_TEXT", nil)
	f.run(t)
	testutil.AssertTableExists(t, f.db, tbl.Slug)

	testutil.Must(t, f.reg.DeleteTable(ctx, tbl))
	f.run(t)
	testutil.AssertTableNotExists(t, f.db, tbl.Slug)
	testutil.AssertTableExists(t, f.db, registry.TablesTable)
}

func TestSync_SkipsDegradedColumns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	companies := testutil.MustValue(f.reg.CreateTable(ctx, "Companies", "", nil))(t)
	contacts := testutil.MustValue(f.reg.CreateTable(ctx, "Contacts", "", nil))(t)
	f.column(t, contacts, "name", "TEXT", nil)
	f.column(t, contacts, "company", "RELATION", coltype.Settings{"target_table_id": companies.ID})
	testutil.Must(t, f.reg.DeleteTable(ctx, companies))

	report := f.run(t)
	if len(report.Skipped) != 1 {
		t.Fatalf("Skipped = %v, want the relation", report.Skipped)
	}
	testutil.AssertError(t, report.Skipped[0].Err, alerr.ErrConfiguration)
	testutil.AssertTableExists(t, f.db, contacts.Slug)
}

func TestSync_KeepsDataOfDegradedColumns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	companies := testutil.MustValue(f.reg.CreateTable(ctx, "Companies", "", nil))(t)
	contacts := testutil.MustValue(f.reg.CreateTable(ctx, "Contacts", "", nil))(t)
	title := f.column(t, companies, "title", "TEXT", nil)
	company := f.column(t, contacts, "company", "RELATION", coltype.Settings{"target_table_id": companies.ID})
	f.run(t)

	testutil.ExecSQL(t, f.db, `INSERT INTO "`+companies.Slug+`" ("`+title.Slug+`") VALUES ('Acme')`)
	testutil.ExecSQL(t, f.db, `INSERT INTO "`+contacts.Slug+`" ("`+company.Slug+`") VALUES (1)`)
	testutil.ExecSQL(t, f.db, `UPDATE "`+registry.ColumnsTable+`" SET "settings" = '{"target_table_id": 999}' WHERE "id" = ?`, company.ID)

	report := f.run(t)
	if len(report.Skipped) != 1 {
		t.Fatalf("Skipped = %v, want the relation", report.Skipped)
	}
	if len(report.Applied) != 0 {
		t.Errorf("sync of a degraded column applied %v, want nothing", report.Applied)
	}

	testutil.AssertColumnExists(t, f.db, contacts.Slug, company.Slug)
	var got int64
	testutil.Must(t, f.db.QueryRow(`SELECT "`+company.Slug+`" FROM "`+contacts.Slug+`"`).Scan(&got))
	testutil.AssertEqual(t, got, int64(1))
}

func TestSync_LogsOnlyChanges(t *testing.T) {
	db := testutil.SetupSQLite(t)
	d := dialect.Get("sqlite")
	reg := registry.New(db, d)
	testutil.Must(t, reg.EnsureTables(context.Background()))
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := &fixture{db: db, reg: reg, sync: engine.New(d, testutil.MustValue(introspect.New(d))(t), engine.WithLogger(logger))}

	testutil.MustValue(reg.CreateTable(context.Background(), "Companies", "", nil))(t)
	f.run(t)
	if !strings.Contains(logs.String(), "schema synchronized") {
		t.Fatalf("first sync did not log synchronization:\n%s", logs.String())
	}

	logs.Reset()
	f.run(t)
	if !strings.Contains(logs.String(), "schema up to date") || strings.Contains(logs.String(), "schema synchronized") {
		t.Errorf("second sync logs:\n%s", logs.String())
	}
}

func TestPlan_DoesNotExecute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tbl := testutil.MustValue(f.reg.CreateTable(ctx, "Contacts", "", nil))(t)
	f.column(t, tbl, "name", "TEXT", nil)

	plan := testutil.MustValue(f.sync.Plan(ctx, f.db, f.models(t)))(t)
	if plan.IsEmpty() {
		t.Fatal("plan is empty")
	}
	testutil.AssertSQLContains(t, plan.Statements()[0], "CREATE TABLE")
	testutil.AssertTableNotExists(t, f.db, tbl.Slug)
}

func TestSync_FailureStops(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tbl := testutil.MustValue(f.reg.CreateTable(ctx, "Contacts", "", nil))(t)
	f.column(t, tbl, "name", "TEXT", nil)

	// A view with the physical name makes CREATE TABLE fail.
	testutil.ExecSQL(t, f.db, `CREATE VIEW "`+tbl.Slug+`" AS SELECT 1 AS "id"`)

	_, err := f.sync.Sync(ctx, f.db, f.models(t))
	testutil.AssertError(t, err, alerr.ErrMigrationFailed)
}
