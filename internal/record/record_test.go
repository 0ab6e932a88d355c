package record_test

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"testing"

	"github.com/Zhukowych/tablepp/internal/activity"
	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/coltype"
	"github.com/Zhukowych/tablepp/internal/dialect"
	"github.com/Zhukowych/tablepp/internal/engine"
	"github.com/Zhukowych/tablepp/internal/introspect"
	"github.com/Zhukowych/tablepp/internal/model"
	"github.com/Zhukowych/tablepp/internal/permission"
	"github.com/Zhukowych/tablepp/internal/record"
	"github.com/Zhukowych/tablepp/internal/registry"
	"github.com/Zhukowych/tablepp/internal/testutil"
)

var admin = permission.User{ID: 1, Username: "admin", Superuser: true}

type fixture struct {
	db    *sql.DB
	reg   *registry.Store
	perms *permission.SQLStore
	sink  *activity.SQLSink
	arena *model.Arena
	svc   *record.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := testutil.SetupSQLite(t)
	d := dialect.Get("sqlite")

	f := &fixture{
		db:    db,
		reg:   registry.New(db, d),
		perms: permission.NewSQLStore(db, d),
		sink:  activity.NewSQLSink(db, d),
		arena: model.NewArena(),
	}
	testutil.Must(t, f.reg.EnsureTables(ctx))
	testutil.Must(t, f.perms.EnsureTables(ctx))
	testutil.Must(t, f.sink.EnsureTables(ctx))

	f.svc = record.NewService(db, d, f.arena, permission.NewEvaluator(f.perms),
		record.WithRecorder(activity.NewRecorder(f.sink, nil)))
	return f
}

// migrate reconciles the physical tables and reloads the arena.
func (f *fixture) migrate(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	d := dialect.Get("sqlite")
	models := testutil.MustValue(model.NewBuilder(f.reg).BuildAll(ctx))(t)
	sync := engine.New(d, testutil.MustValue(introspect.New(d))(t))
	testutil.MustValue(sync.Sync(ctx, f.db, models))(t)
	f.arena.Replace(models)
}

func (f *fixture) table(t *testing.T, name string) *registry.Table {
	t.Helper()
	return testutil.MustValue(f.reg.CreateTable(context.Background(), name, "", nil))(t)
}

func (f *fixture) column(t *testing.T, tbl *registry.Table, name, dtype string, settings coltype.Settings) *registry.Column {
	t.Helper()
	return testutil.MustValue(f.reg.AddColumn(context.Background(), tbl, registry.ColumnInput{
		Name: name, DType: dtype, Settings: settings,
	}))(t)
}

func (f *fixture) model(t *testing.T, tbl *registry.Table) *model.Model {
	t.Helper()
	m, ok := f.arena.Get(tbl.Slug)
	if !ok {
		t.Fatalf("model %s not loaded", tbl.Name)
	}
	return m
}

func (f *fixture) grant(t *testing.T, user int64, target permission.Target, op permission.Operation, d permission.Decision) {
	t.Helper()
	testutil.MustValue(f.perms.Grant(context.Background(), permission.Rule{
		SubjectKind: permission.SubjectUser, SubjectID: user, Target: target, Operation: op, Decision: d,
	}))(t)
}

type crm struct {
	companies, contacts *registry.Table
	name, age, company  *registry.Column
	title               *registry.Column
}

func newCRM(t *testing.T, f *fixture) *crm {
	t.Helper()
	c := &crm{
		companies: f.table(t, "Companies"),
		contacts:  f.table(t, "Contacts"),
	}
	c.title = f.column(t, c.companies, "title", "TEXT", nil)
	c.name = f.column(t, c.contacts, "name", "TEXT", coltype.Settings{"max_length": 8, "filters": []any{"exact", "contains"}})
	c.age = f.column(t, c.contacts, "age", "INTEGER", coltype.Settings{"filters": []any{"gte", "lte"}})
	c.company = f.column(t, c.contacts, "company", "RELATION", coltype.Settings{
		"target_table_id": c.companies.ID, "filters": []any{"exact"},
	})
	f.migrate(t)
	return c
}

// -----------------------------------------------------------------------------
// Create / Get / List
// -----------------------------------------------------------------------------

func TestContactsRoundTrip(t *testing.T) {
	f := newFixture(t)
	c := newCRM(t, f)
	ctx := context.Background()
	companies, contacts := f.model(t, c.companies), f.model(t, c.contacts)

	acme := testutil.MustValue(f.svc.Create(ctx, admin, companies, map[string]any{"title": "Acme"}))(t)
	ada := testutil.MustValue(f.svc.Create(ctx, admin, contacts, map[string]any{
		"name": "Ada", "age": "36", "company": acme.ID,
	}))(t)
	testutil.MustValue(f.svc.Create(ctx, admin, contacts, map[string]any{
		c.name.Slug: "Grace", c.age.Slug: 85.0,
	}))(t)

	got := testutil.MustValue(f.svc.Get(ctx, admin, contacts, ada.ID))(t)
	testutil.AssertEqual(t, got.Get(c.name.Slug), any("Ada"))
	testutil.AssertEqual(t, got.Get(c.age.Slug), any(int64(36)))
	testutil.AssertEqual(t, got.Get(c.company.Slug), any(acme.ID))

	page := testutil.MustValue(f.svc.List(ctx, admin, contacts, record.Query{
		Filters: map[string][]string{c.age.Slug + "__gte": {"50"}},
	}))(t)
	if page.Total != 1 || len(page.Records) != 1 || page.Records[0].Get(c.name.Slug) != "Grace" {
		t.Errorf("List(age >= 50) = %+v", page)
	}

	page = testutil.MustValue(f.svc.List(ctx, admin, contacts, record.Query{
		Filters: map[string][]string{c.company.Slug: {strconv.FormatInt(acme.ID, 10)}},
	}))(t)
	if page.Total != 1 || page.Records[0].ID != ada.ID {
		t.Errorf("List(company = acme) = %+v", page)
	}

	_, err := f.svc.List(ctx, admin, contacts, record.Query{
		Filters: map[string][]string{c.company.Slug: {"999"}},
	})
	testutil.AssertError(t, err, alerr.ErrValidation)
}

func TestList_OrderAndPaging(t *testing.T) {
	f := newFixture(t)
	c := newCRM(t, f)
	ctx := context.Background()
	contacts := f.model(t, c.contacts)

	for _, n := range []string{"Carol", "Ada", "Bob"} {
		testutil.MustValue(f.svc.Create(ctx, admin, contacts, map[string]any{"name": n}))(t)
	}

	page := testutil.MustValue(f.svc.List(ctx, admin, contacts, record.Query{
		Order: []string{"-name"}, Limit: 2,
	}))(t)
	testutil.AssertEqual(t, page.Total, 3)
	if len(page.Records) != 2 || page.Records[0].Get(c.name.Slug) != "Carol" || page.Records[1].Get(c.name.Slug) != "Bob" {
		t.Errorf("page = %+v", page.Records)
	}

	page = testutil.MustValue(f.svc.List(ctx, admin, contacts, record.Query{
		Order: []string{"name"}, Limit: 2, Offset: 2,
	}))(t)
	if len(page.Records) != 1 || page.Records[0].Get(c.name.Slug) != "Carol" {
		t.Errorf("second page = %+v", page.Records)
	}
}

func TestCreate_CollectsFieldErrors(t *testing.T) {
	f := newFixture(t)
	c := newCRM(t, f)
	ctx := context.Background()
	contacts := f.model(t, c.contacts)

	_, err := f.svc.Create(ctx, admin, contacts, map[string]any{
		"name": "Bartholomew", "age": 500, "company": 42,
	})
	testutil.AssertError(t, err, alerr.ErrValidation)
	fields := alerr.FieldsOf(err)
	if len(fields) != 2 {
		t.Errorf("FieldsOf = %v, want name and age", fields)
	}

	_, err = f.svc.Create(ctx, admin, contacts, map[string]any{"company": 42})
	testutil.AssertError(t, err, alerr.ErrValidation)
	if fields := alerr.FieldsOf(err); len(fields) != 1 || fields[0] != c.company.Slug {
		t.Errorf("FieldsOf = %v, want the relation", fields)
	}

	_, err = f.svc.Create(ctx, admin, contacts, map[string]any{"nickname": "x"})
	testutil.AssertError(t, err, alerr.ErrValidation)

	testutil.AssertRowCount(t, f.db, c.contacts.Slug, 0)
}

func TestFormat(t *testing.T) {
	f := newFixture(t)
	tbl := f.table(t, "Notes")
	body := f.column(t, tbl, "body", "BIG_TEXT", nil)
	f.migrate(t)
	ctx := context.Background()
	m := f.model(t, tbl)

	rec := testutil.MustValue(f.svc.Create(ctx, admin, m, map[string]any{"body": "a long paragraph"}))(t)
	got := record.Format(m, testutil.MustValue(f.svc.Get(ctx, admin, m, rec.ID))(t))
	testutil.AssertEqual(t, got[body.Slug], any("a long ..."))
}

// -----------------------------------------------------------------------------
// Update
// -----------------------------------------------------------------------------

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	c := newCRM(t, f)
	ctx := context.Background()
	contacts := f.model(t, c.contacts)

	ada := testutil.MustValue(f.svc.Create(ctx, admin, contacts, map[string]any{"name": "Ada", "age": 36}))(t)
	got := testutil.MustValue(f.svc.Update(ctx, admin, contacts, ada.ID, map[string]any{"age": 37}))(t)
	testutil.AssertEqual(t, got.Get(c.name.Slug), any("Ada"))
	testutil.AssertEqual(t, got.Get(c.age.Slug), any(int64(37)))

	_, err := f.svc.Update(ctx, admin, contacts, 999, map[string]any{"age": 1})
	testutil.AssertError(t, err, alerr.ErrNotFound)

	entries := testutil.MustValue(f.sink.Entries(ctx, c.contacts.Slug, ada.ID))(t)
	var described bool
	for _, e := range entries {
		described = described || e.Description == "Changed age"
	}
	if len(entries) != 2 || !described {
		t.Errorf("activity = %+v", entries)
	}
}

func TestAddedColumnKeepsRecordsReadable(t *testing.T) {
	f := newFixture(t)
	c := newCRM(t, f)
	ctx := context.Background()

	ada := testutil.MustValue(f.svc.Create(ctx, admin, f.model(t, c.contacts), map[string]any{"name": "Ada"}))(t)

	phone := f.column(t, c.contacts, "phone", "TEXT", nil)
	f.migrate(t)

	got := testutil.MustValue(f.svc.Get(ctx, admin, f.model(t, c.contacts), ada.ID))(t)
	testutil.AssertEqual(t, got.Get(c.name.Slug), any("Ada"))
	if v, ok := got.Values[phone.Slug]; !ok || v != nil {
		t.Errorf("phone = %v, %v; want a nil value", v, ok)
	}
}

// -----------------------------------------------------------------------------
// Delete
// -----------------------------------------------------------------------------

func TestDelete_RefusesReferencedRecords(t *testing.T) {
	f := newFixture(t)
	c := newCRM(t, f)
	ctx := context.Background()
	companies, contacts := f.model(t, c.companies), f.model(t, c.contacts)

	acme := testutil.MustValue(f.svc.Create(ctx, admin, companies, map[string]any{"title": "Acme"}))(t)
	ada := testutil.MustValue(f.svc.Create(ctx, admin, contacts, map[string]any{"name": "Ada", "company": acme.ID}))(t)

	deps := testutil.MustValue(f.svc.RelatedRecords(ctx, admin, companies, acme.ID))(t)
	if len(deps) != 1 || deps[0].Field.Slug() != c.company.Slug || len(deps[0].IDs) != 1 || deps[0].IDs[0] != ada.ID {
		t.Fatalf("RelatedRecords = %+v", deps)
	}

	err := f.svc.Delete(ctx, admin, companies, acme.ID)
	testutil.AssertError(t, err, alerr.ErrIntegrity)
	if !strings.Contains(err.Error(), "Contacts.company#") {
		t.Errorf("error does not list the blocker: %v", err)
	}
	testutil.AssertRowCount(t, f.db, c.companies.Slug, 1)

	testutil.Must(t, f.svc.Delete(ctx, admin, contacts, ada.ID))
	testutil.Must(t, f.svc.Delete(ctx, admin, companies, acme.ID))
	testutil.AssertRowCount(t, f.db, c.companies.Slug, 0)

	testutil.AssertError(t, f.svc.Delete(ctx, admin, companies, acme.ID), alerr.ErrNotFound)
}

func TestDelete_SelfReferenceDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	tbl := f.table(t, "People")
	f.column(t, tbl, "name", "TEXT", nil)
	f.column(t, tbl, "manager", "RELATION", coltype.Settings{"target_table_id": tbl.ID})
	f.migrate(t)
	ctx := context.Background()
	m := f.model(t, tbl)

	boss := testutil.MustValue(f.svc.Create(ctx, admin, m, map[string]any{"name": "Boss"}))(t)
	testutil.MustValue(f.svc.Update(ctx, admin, m, boss.ID, map[string]any{"manager": boss.ID}))(t)
	worker := testutil.MustValue(f.svc.Create(ctx, admin, m, map[string]any{"name": "Worker", "manager": boss.ID}))(t)

	testutil.AssertError(t, f.svc.Delete(ctx, admin, m, boss.ID), alerr.ErrIntegrity)
	testutil.Must(t, f.svc.Delete(ctx, admin, m, worker.ID))
	testutil.Must(t, f.svc.Delete(ctx, admin, m, boss.ID))
}

// -----------------------------------------------------------------------------
// Permissions
// -----------------------------------------------------------------------------

func TestPermissions(t *testing.T) {
	f := newFixture(t)
	c := newCRM(t, f)
	ctx := context.Background()
	contacts := f.model(t, c.contacts)
	ana := permission.User{ID: 2, Username: "ana"}

	rec := testutil.MustValue(f.svc.Create(ctx, admin, contacts, map[string]any{"name": "Ada", "age": 36}))(t)

	_, err := f.svc.Get(ctx, ana, contacts, rec.ID)
	testutil.AssertError(t, err, alerr.ErrPermissionDenied)

	f.grant(t, ana.ID, permission.Table(c.contacts.ID), permission.Read, permission.Accept)
	f.grant(t, ana.ID, permission.Table(c.contacts.ID), permission.Write, permission.Accept)
	f.grant(t, ana.ID, permission.Column(c.age.ID), permission.Read, permission.Reject)
	f.grant(t, ana.ID, permission.Column(c.name.ID), permission.Write, permission.Reject)

	got := testutil.MustValue(f.svc.Get(ctx, ana, contacts, rec.ID))(t)
	if _, ok := got.Values[c.age.Slug]; ok {
		t.Error("unreadable column returned")
	}
	testutil.AssertEqual(t, got.Get(c.name.Slug), any("Ada"))

	_, err = f.svc.Update(ctx, ana, contacts, rec.ID, map[string]any{"name": "Eve"})
	testutil.AssertError(t, err, alerr.ErrPermissionDenied)
	_, err = f.svc.Update(ctx, ana, contacts, rec.ID, map[string]any{"age": 1})
	testutil.AssertError(t, err, alerr.ErrPermissionDenied)

	testutil.AssertError(t, f.svc.Delete(ctx, ana, contacts, rec.ID), alerr.ErrPermissionDenied)
	testutil.AssertRowCount(t, f.db, c.contacts.Slug, 1)
}

func TestWritesHideUnreadableColumns(t *testing.T) {
	f := newFixture(t)
	c := newCRM(t, f)
	ctx := context.Background()
	contacts := f.model(t, c.contacts)
	bob := permission.User{ID: 3, Username: "bob"}

	rec := testutil.MustValue(f.svc.Create(ctx, admin, contacts, map[string]any{"name": "Ada", "age": 36}))(t)

	f.grant(t, bob.ID, permission.Table(c.contacts.ID), permission.Read, permission.Accept)
	f.grant(t, bob.ID, permission.Table(c.contacts.ID), permission.Write, permission.Accept)
	f.grant(t, bob.ID, permission.Column(c.age.ID), permission.Read, permission.Reject)
	f.grant(t, bob.ID, permission.Column(c.name.ID), permission.Read, permission.Reject)

	updated := testutil.MustValue(f.svc.Update(ctx, bob, contacts, rec.ID, map[string]any{}))(t)
	for _, slug := range []string{c.name.Slug, c.age.Slug} {
		if _, ok := updated.Values[slug]; ok {
			t.Errorf("Update returned unreadable column %s: %v", slug, updated.Values)
		}
	}

	created := testutil.MustValue(f.svc.Create(ctx, bob, contacts, map[string]any{"company": nil}))(t)
	if _, ok := created.Values[c.name.Slug]; ok {
		t.Errorf("Create returned unreadable column: %v", created.Values)
	}

	matches := testutil.MustValue(f.svc.Lookup(ctx, bob, contacts, "", 0))(t)
	testutil.AssertEqual(t, len(matches), 2)
	for _, m := range matches {
		if m.Label != "#"+strconv.FormatInt(m.ID, 10) {
			t.Errorf("Lookup label = %q, want the record id", m.Label)
		}
	}
}

func TestNilCheckerAllowsEverything(t *testing.T) {
	f := newFixture(t)
	c := newCRM(t, f)
	ctx := context.Background()
	contacts := f.model(t, c.contacts)
	svc := record.NewService(f.db, dialect.Get("sqlite"), f.arena, nil)
	ana := permission.User{ID: 2, Username: "ana"}

	rec := testutil.MustValue(svc.Create(ctx, ana, contacts, map[string]any{"name": "Ada", "age": 36}))(t)
	got := testutil.MustValue(svc.Get(ctx, ana, contacts, rec.ID))(t)
	testutil.AssertEqual(t, got.Get(c.age.Slug), any(int64(36)))
	testutil.Must(t, svc.Delete(ctx, ana, contacts, rec.ID))
}

// -----------------------------------------------------------------------------
// Lookup
// -----------------------------------------------------------------------------

func TestLookup(t *testing.T) {
	f := newFixture(t)
	c := newCRM(t, f)
	ctx := context.Background()
	contacts := f.model(t, c.contacts)

	for _, n := range []string{"Ada", "Adam", "Bob", "Madame"} {
		testutil.MustValue(f.svc.Create(ctx, admin, contacts, map[string]any{"name": n}))(t)
	}

	got := testutil.MustValue(f.svc.Lookup(ctx, admin, contacts, "ad", 0))(t)
	var labels []string
	for _, m := range got {
		labels = append(labels, m.Label)
	}
	if strings.Join(labels, ",") != "Ada,Adam,Madame" {
		t.Errorf("Lookup(ad) = %v", labels)
	}

	got = testutil.MustValue(f.svc.Lookup(ctx, admin, contacts, "", 2))(t)
	if len(got) != 2 {
		t.Errorf("Lookup limit 2 returned %d", len(got))
	}
}
