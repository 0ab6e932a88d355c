package filter

import (
	"context"
	"strings"
	"testing"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/coltype"
	"github.com/Zhukowych/tablepp/internal/dialect"
	"github.com/Zhukowych/tablepp/internal/model"
	"github.com/Zhukowych/tablepp/internal/registry"
	"github.com/Zhukowych/tablepp/internal/sqlgen"
	"github.com/Zhukowych/tablepp/internal/testutil"
)

func field(t *testing.T, id int64, name string, dtype coltype.DType, filterable bool, settings coltype.Settings) *model.Field {
	t.Helper()
	c := &registry.Column{
		ID: id, Name: name, Slug: "column_" + name, DType: dtype,
		Settings: settings, IsFilterable: filterable, IsDisplayable: true,
	}
	h := testutil.MustValue(c.Handler())(t)
	resolver := coltype.ResolverFunc(func(context.Context, int64) (string, error) {
		return "table_companies", nil
	})
	phys := testutil.MustValue(h.PhysicalField(context.Background(), resolver))(t)
	return &model.Field{Column: c, Handler: h, Physical: phys}
}

func contacts(t *testing.T) *model.Model {
	t.Helper()
	return &model.Model{
		Table: &registry.Table{ID: 1, Name: "Contacts", Slug: "table_contacts"},
		Fields: []*model.Field{
			field(t, 1, "name", coltype.Text, true, coltype.Settings{"filters": []any{"exact", "contains"}}),
			field(t, 2, "age", coltype.Integer, true, coltype.Settings{"filters": []any{"gte", "lte"}}),
			field(t, 3, "company", coltype.Relation, true, coltype.Settings{"filters": []any{"exact"}, "target_table_id": 7}),
			field(t, 4, "notes", coltype.BigText, false, coltype.Settings{"filters": []any{"contains"}}),
			field(t, 5, "score", coltype.Float, true, nil),
		},
	}
}

func existing(ids ...int64) RecordChecker {
	return CheckerFunc(func(_ context.Context, slug string, id int64) (bool, error) {
		if slug != "table_companies" {
			return false, nil
		}
		for _, x := range ids {
			if x == id {
				return true, nil
			}
		}
		return false, nil
	})
}

func compile(t *testing.T, e sqlgen.Expr) (string, []any) {
	t.Helper()
	b := sqlgen.New(dialect.Get("sqlite"))
	sql := testutil.MustValue(b.CompileExpr(e))(t)
	return sql, b.Args()
}

// -----------------------------------------------------------------------------
// ParseKey
// -----------------------------------------------------------------------------

func TestParseKey(t *testing.T) {
	tests := []struct {
		key    string
		column string
		op     coltype.Operator
	}{
		{"column_ab12", "column_ab12", coltype.OpExact},
		{"column_ab12__contains", "column_ab12", coltype.OpContains},
		{"column_ab12__gte", "column_ab12", coltype.OpGte},
		{"name__lte", "name", coltype.OpLte},
		{"__gte", "__gte", coltype.OpExact},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			col, op := ParseKey(tt.key)
			if col != tt.column || op != tt.op {
				t.Errorf("ParseKey(%q) = %q, %q; want %q, %q", tt.key, col, op, tt.column, tt.op)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Build
// -----------------------------------------------------------------------------

func TestBuild_Operators(t *testing.T) {
	m := contacts(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params map[string][]string
		sql    string
		args   []any
	}{
		{
			name:   "exact",
			params: map[string][]string{"column_name": {"Ada"}},
			sql:    `"column_name" = ?`,
			args:   []any{"Ada"},
		},
		{
			name:   "contains",
			params: map[string][]string{"column_name__contains": {"da"}},
			sql:    `"column_name" LIKE ? ESCAPE '\'`,
			args:   []any{"%da%"},
		},
		{
			name:   "range",
			params: map[string][]string{"column_age__gte": {"18"}, "column_age__lte": {"65"}},
			sql:    `("column_age" >= ?) AND ("column_age" <= ?)`,
			args:   []any{int64(18), int64(65)},
		},
		{
			name:   "relation by name",
			params: map[string][]string{"company": {"3"}},
			sql:    `"column_company" = ?`,
			args:   []any{int64(3)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Build(ctx, m, tt.params, existing(3))
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			sql, args := compile(t, e)
			testutil.AssertSQL(t, sql, tt.sql)
			if len(args) != len(tt.args) {
				t.Fatalf("args = %v, want %v", args, tt.args)
			}
			for i := range args {
				if args[i] != tt.args[i] {
					t.Errorf("arg %d = %#v, want %#v", i, args[i], tt.args[i])
				}
			}
		})
	}
}

func TestBuild_IgnoresUnusableParameters(t *testing.T) {
	m := contacts(t)
	params := map[string][]string{
		"column_notes__contains": {"x"},  // not filterable
		"column_age":             {"30"}, // exact not declared for integers
		"column_score__gte":      {"1"},  // no filters configured
		"column_missing":         {"1"},
		"column_name":            {"", "  "},
		"page":                   {"2"},
	}
	e, err := Build(context.Background(), m, params, existing())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := e.(sqlgen.True); !ok {
		t.Errorf("Build = %#v, want True", e)
	}
}

func TestBuild_InvalidValues(t *testing.T) {
	m := contacts(t)
	params := map[string][]string{
		"column_age__gte": {"many"},
		"column_company":  {"99"},
	}
	_, err := Build(context.Background(), m, params, existing(3))
	testutil.AssertError(t, err, alerr.ErrValidation)

	fields := alerr.FieldsOf(err)
	if len(fields) != 2 || fields[0] != "column_age" || fields[1] != "column_company" {
		t.Errorf("FieldsOf = %v", fields)
	}
}

func TestBuild_IgnoresColumnBounds(t *testing.T) {
	m := contacts(t)
	long := strings.Repeat("a", 200)
	e := testutil.MustValue(Build(context.Background(), m, map[string][]string{
		"column_age__gte":       {"150"},
		"column_name__contains": {long},
	}, existing()))(t)
	_, args := compile(t, e)
	if len(args) != 2 || args[0] != int64(150) || args[1] != "%"+long+"%" {
		t.Errorf("args = %v", args)
	}
}

func TestBuild_LastValueWins(t *testing.T) {
	m := contacts(t)
	e := testutil.MustValue(Build(context.Background(), m,
		map[string][]string{"column_name": {"Ada", "Grace"}}, existing()))(t)
	_, args := compile(t, e)
	if len(args) != 1 || args[0] != "Grace" {
		t.Errorf("args = %v, want [Grace]", args)
	}
}

func TestAvailable(t *testing.T) {
	got := Available(contacts(t))
	if len(got) != 3 {
		t.Fatalf("Available = %v", got)
	}
	if ops := got["column_age"]; len(ops) != 2 || ops[0] != coltype.OpGte {
		t.Errorf("age operators = %v", ops)
	}
	if _, ok := got["column_notes"]; ok {
		t.Error("non-filterable column listed")
	}
}
