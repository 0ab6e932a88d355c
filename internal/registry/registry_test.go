package registry

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/coltype"
	"github.com/Zhukowych/tablepp/internal/dialect"
	"github.com/Zhukowych/tablepp/internal/testutil"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db := testutil.SetupSQLite(t)
	s := New(db, dialect.Get("sqlite"))
	testutil.Must(t, s.EnsureTables(context.Background()))
	return s
}

func boolPtr(b bool) *bool { return &b }

// -----------------------------------------------------------------------------
// Slugs
// -----------------------------------------------------------------------------

func TestNewSlug(t *testing.T) {
	slug := NewSlug(TablePrefix)
	if !strings.HasPrefix(slug, TablePrefix) {
		t.Errorf("slug %q lacks prefix", slug)
	}
	if got := len(slug) - len(TablePrefix); got != 32 {
		t.Errorf("digest length = %d, want 32", got)
	}
	if len(NewSlug(ColumnPrefix)) > 63 {
		t.Error("column slug exceeds the PostgreSQL identifier limit")
	}
}

func TestNewSlug_Unique(t *testing.T) {
	const workers, perWorker = 8, 500
	var (
		mu   sync.Mutex
		seen = make(map[string]bool, workers*perWorker)
		wg   sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for range perWorker {
				local = append(local, NewSlug(ColumnPrefix))
			}
			mu.Lock()
			defer mu.Unlock()
			for _, s := range local {
				if seen[s] {
					t.Errorf("duplicate slug %s", s)
				}
				seen[s] = true
			}
		}()
	}
	wg.Wait()
}

func TestIsManagedTable(t *testing.T) {
	tests := map[string]bool{
		"table_3f2a":     true,
		"tablepp_tables": false,
		"table_":         false,
		"sqlite_master":  false,
		"_rebuild_table": false,
	}
	for name, want := range tests {
		if got := IsManagedTable(name); got != want {
			t.Errorf("IsManagedTable(%q) = %v, want %v", name, got, want)
		}
	}
}

// -----------------------------------------------------------------------------
// Tables
// -----------------------------------------------------------------------------

func TestCreateTable(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tbl, err := s.CreateTable(ctx, "  Contacts ", "People we know", Options{"ordering": []any{"-id"}})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if tbl.ID == 0 || tbl.Name != "Contacts" || tbl.Revision != 1 {
		t.Errorf("table = %+v", tbl)
	}

	got, err := s.TableBySlug(ctx, tbl.Slug)
	if err != nil {
		t.Fatalf("TableBySlug: %v", err)
	}
	if got.Description != "People we know" {
		t.Errorf("Description = %q", got.Description)
	}
	if order := got.Options.Ordering(); len(order) != 1 || order[0] != "-id" {
		t.Errorf("Ordering = %v", order)
	}

	_, err = s.CreateTable(ctx, "Contacts", "", nil)
	testutil.AssertError(t, err, alerr.ErrDuplicate)

	_, err = s.CreateTable(ctx, "", "", nil)
	testutil.AssertError(t, err, alerr.ErrValidation)
	if fields := alerr.FieldsOf(err); len(fields) != 1 || fields[0] != "name" {
		t.Errorf("FieldsOf = %v, want [name]", fields)
	}

	_, err = s.CreateTable(ctx, strings.Repeat("x", MaxNameLength+1), "", nil)
	testutil.AssertError(t, err, alerr.ErrValidation)
}

func TestUpdateTable_SlugImmutable(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tbl := testutil.MustValue(s.CreateTable(ctx, "Deals", "", nil))(t)
	slug := tbl.Slug

	tbl.Name = "Opportunities"
	tbl.Slug = "table_hijacked"
	testutil.Must(t, s.UpdateTable(ctx, tbl))

	got := testutil.MustValue(s.Table(ctx, tbl.ID))(t)
	testutil.AssertEqual(t, got.Name, "Opportunities")
	testutil.AssertEqual(t, got.Slug, slug)
	testutil.AssertEqual(t, got.Revision, int64(2))
	testutil.AssertEqual(t, tbl.Revision, int64(2))
}

func TestUpdateTable_Conflict(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tbl := testutil.MustValue(s.CreateTable(ctx, "Deals", "", nil))(t)
	a := *tbl
	b := *tbl

	a.Description = "first"
	testutil.Must(t, s.UpdateTable(ctx, &a))

	b.Description = "second"
	err := s.UpdateTable(ctx, &b)
	testutil.AssertError(t, err, alerr.ErrConflict)
}

func TestTableLookups_NotFound(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Table(ctx, 42)
	testutil.AssertError(t, err, alerr.ErrNotFound)
	_, err = s.TableByName(ctx, "Nope")
	testutil.AssertError(t, err, alerr.ErrNotFound)

	slug, err := s.Resolver().TableSlug(ctx, 42)
	testutil.AssertError(t, err, alerr.ErrNotFound)
	testutil.AssertEqual(t, slug, "")
}

// -----------------------------------------------------------------------------
// Columns
// -----------------------------------------------------------------------------

func TestAddColumn(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tbl := testutil.MustValue(s.CreateTable(ctx, "Contacts", "", nil))(t)

	age, err := s.AddColumn(ctx, tbl, ColumnInput{
		Name:     "age",
		DType:    "integer",
		Settings: coltype.Settings{"min_value": 0, "max_value": 130, "filters": []string{"gte"}},
	})
	if err != nil {
		t.Fatalf("AddColumn: %v", err)
	}
	name := testutil.MustValue(s.AddColumn(ctx, tbl, ColumnInput{
		Name:          "name",
		DType:         "TEXT",
		IsDisplayable: boolPtr(false),
	}))(t)

	if age.DType != coltype.Integer || !strings.HasPrefix(age.Slug, ColumnPrefix) {
		t.Errorf("age = %+v", age)
	}
	if age.Slug == name.Slug {
		t.Error("columns share a slug")
	}
	if !age.IsDisplayable || !age.IsFilterable || name.IsDisplayable {
		t.Error("flag defaults not applied")
	}
	testutil.AssertEqual(t, tbl.Revision, int64(3))

	cols := testutil.MustValue(s.Columns(ctx, tbl.ID))(t)
	if len(cols) != 2 || cols[0].Name != "age" || cols[1].Name != "name" {
		t.Fatalf("Columns = %v", cols)
	}
	if hi, ok := cols[0].Settings.Int("max_value"); !ok || hi != 130 {
		t.Errorf("max_value round trip = %v, %v", hi, ok)
	}
	if cols[1].IsDisplayable {
		t.Error("is_displayable round trip lost")
	}
}

func TestAddColumn_Validation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tbl := testutil.MustValue(s.CreateTable(ctx, "Contacts", "", nil))(t)
	testutil.MustValue(s.AddColumn(ctx, tbl, ColumnInput{Name: "name", DType: "TEXT"}))(t)

	tests := []struct {
		name  string
		in    ColumnInput
		code  alerr.Code
		field string
	}{
		{"missing dtype", ColumnInput{Name: "x"}, alerr.ErrValidation, "dtype"},
		{"unknown dtype", ColumnInput{Name: "x", DType: "DATE"}, alerr.ErrValidation, "dtype"},
		{"missing name", ColumnInput{DType: "TEXT"}, alerr.ErrValidation, "name"},
		{"bad settings", ColumnInput{Name: "x", DType: "INTEGER", Settings: coltype.Settings{"min_value": "low"}}, alerr.ErrValidation, "settings"},
		{"relation without target", ColumnInput{Name: "x", DType: "RELATION"}, alerr.ErrValidation, "target_table_id"},
		{"relation to unknown table", ColumnInput{Name: "x", DType: "RELATION", Settings: coltype.Settings{"target_table_id": 999}}, alerr.ErrValidation, "target_table_id"},
		{"duplicate name", ColumnInput{Name: "name", DType: "TEXT"}, alerr.ErrDuplicate, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddColumn(ctx, tbl, tt.in)
			testutil.AssertError(t, err, tt.code)
			if tt.field == "" {
				return
			}
			fields := alerr.FieldsOf(err)
			if len(fields) == 0 || fields[0] != tt.field {
				t.Errorf("FieldsOf = %v, want [%s]", fields, tt.field)
			}
		})
	}
}

func TestUpdateColumn_DTypeFrozen(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tbl := testutil.MustValue(s.CreateTable(ctx, "Contacts", "", nil))(t)
	col := testutil.MustValue(s.AddColumn(ctx, tbl, ColumnInput{
		Name: "name", DType: "TEXT", Settings: coltype.Settings{"max_length": 64},
	}))(t)
	slug := col.Slug

	edit := *col
	edit.Name = "full name"
	edit.DType = coltype.Integer
	edit.Slug = "column_other"
	edit.Settings = coltype.Settings{"max_length": 500, "filters": []any{"contains"}}
	testutil.Must(t, s.UpdateColumn(ctx, tbl, &edit))

	got := testutil.MustValue(s.Column(ctx, col.ID))(t)
	testutil.AssertEqual(t, got.DType, coltype.Text)
	testutil.AssertEqual(t, got.Slug, slug)
	testutil.AssertEqual(t, got.Name, "full name")
	if n, _ := got.Settings.Int("max_length"); n != 64 {
		t.Errorf("max_length = %d, want frozen 64", n)
	}
	if f := got.Settings.Strings("filters"); len(f) != 1 || f[0] != "contains" {
		t.Errorf("filters = %v", f)
	}
	testutil.AssertEqual(t, edit.DType, coltype.Text)
}

func TestRemoveColumn(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tbl := testutil.MustValue(s.CreateTable(ctx, "Contacts", "", nil))(t)
	a := testutil.MustValue(s.AddColumn(ctx, tbl, ColumnInput{Name: "a", DType: "TEXT"}))(t)
	testutil.MustValue(s.AddColumn(ctx, tbl, ColumnInput{Name: "b", DType: "TEXT"}))(t)
	c := testutil.MustValue(s.AddColumn(ctx, tbl, ColumnInput{Name: "c", DType: "TEXT"}))(t)

	testutil.MustValue(s.RemoveColumn(ctx, tbl, a))(t)
	testutil.MustValue(s.RemoveColumn(ctx, tbl, "b"))(t)
	testutil.MustValue(s.RemoveColumn(ctx, tbl, c.ID))(t)

	cols := testutil.MustValue(s.Columns(ctx, tbl.ID))(t)
	if len(cols) != 0 {
		t.Errorf("Columns = %v, want none", cols)
	}

	_, err := s.RemoveColumn(ctx, tbl, "missing")
	testutil.AssertError(t, err, alerr.ErrNotFound)
	_, err = s.RemoveColumn(ctx, tbl, 3.5)
	testutil.AssertError(t, err, alerr.EInternalError)
}

func TestRemoveColumn_OtherTable(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	a := testutil.MustValue(s.CreateTable(ctx, "A", "", nil))(t)
	b := testutil.MustValue(s.CreateTable(ctx, "B", "", nil))(t)
	col := testutil.MustValue(s.AddColumn(ctx, a, ColumnInput{Name: "x", DType: "TEXT"}))(t)

	_, err := s.RemoveColumn(ctx, b, col)
	testutil.AssertError(t, err, alerr.ErrNotFound)
}

// -----------------------------------------------------------------------------
// Dependents and deletion
// -----------------------------------------------------------------------------

func TestDependentTables(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	companies := testutil.MustValue(s.CreateTable(ctx, "Companies", "", nil))(t)
	contacts := testutil.MustValue(s.CreateTable(ctx, "Contacts", "", nil))(t)
	deals := testutil.MustValue(s.CreateTable(ctx, "Deals", "", nil))(t)

	target := coltype.Settings{"target_table_id": companies.ID}
	testutil.MustValue(s.AddColumn(ctx, contacts, ColumnInput{Name: "company", DType: "RELATION", Settings: target}))(t)
	testutil.MustValue(s.AddColumn(ctx, deals, ColumnInput{Name: "company", DType: "RELATION", Settings: target}))(t)
	testutil.MustValue(s.AddColumn(ctx, deals, ColumnInput{Name: "buyer", DType: "RELATION", Settings: target}))(t)
	testutil.MustValue(s.AddColumn(ctx, companies, ColumnInput{
		Name: "parent", DType: "RELATION", Settings: coltype.Settings{"target_table_id": companies.ID},
	}))(t)

	deps := testutil.MustValue(s.DependentTables(ctx, companies))(t)
	if len(deps) != 2 || deps[0].ID != contacts.ID || deps[1].ID != deals.ID {
		t.Errorf("DependentTables = %v, want [Contacts Deals]", deps)
	}

	deps = testutil.MustValue(s.DependentTables(ctx, deals))(t)
	if len(deps) != 0 {
		t.Errorf("DependentTables(Deals) = %v, want none", deps)
	}
}

func TestDeleteTable(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tbl := testutil.MustValue(s.CreateTable(ctx, "Contacts", "", nil))(t)
	testutil.MustValue(s.AddColumn(ctx, tbl, ColumnInput{Name: "name", DType: "TEXT"}))(t)

	testutil.Must(t, s.DeleteTable(ctx, tbl))

	_, err := s.Table(ctx, tbl.ID)
	testutil.AssertError(t, err, alerr.ErrNotFound)
	cols := testutil.MustValue(s.Columns(ctx, tbl.ID))(t)
	if len(cols) != 0 {
		t.Errorf("columns survived table deletion: %v", cols)
	}
}

func TestSearchableColumn(t *testing.T) {
	cols := []*Column{
		{Name: "age", DType: coltype.Integer},
		{Name: "name", DType: coltype.Text},
	}
	if got := SearchableColumn(cols); got.Name != "name" {
		t.Errorf("SearchableColumn = %s, want name", got.Name)
	}
	if got := SearchableColumn(cols[:1]); got.Name != "age" {
		t.Errorf("SearchableColumn = %s, want age", got.Name)
	}
	if SearchableColumn(nil) != nil {
		t.Error("SearchableColumn(nil) should be nil")
	}
}

func TestOptions_UniqueTogether(t *testing.T) {
	o := Options{"unique_together": []any{
		[]any{"column_a", "column_b"},
		"garbage",
		[]any{},
		[]any{"column_c"},
	}}
	got := o.UniqueTogether()
	if len(got) != 2 || len(got[0]) != 2 || got[1][0] != "column_c" {
		t.Errorf("UniqueTogether = %v", got)
	}
}
