package record

import (
	"context"
	"fmt"
	"slices"

	"github.com/Zhukowych/tablepp/internal/model"
	"github.com/Zhukowych/tablepp/internal/permission"
	"github.com/Zhukowych/tablepp/internal/sqlgen"
)

// MaxLookupResults caps Lookup.
const MaxLookupResults = 50

// Match is one Lookup result.
type Match struct {
	ID    int64
	Label string
}

// Lookup searches the searchable column of m for q, case-insensitively,
// returning at most limit matches (MaxLookupResults when limit is out of
// range). Labels fall back to "#<id>" for empty values, and when u may not
// read the searchable column, q is ignored and every label is "#<id>".
func (s *Service) Lookup(ctx context.Context, u permission.User, m *model.Model, q string, limit int) ([]Match, error) {
	if err := s.require(ctx, u, m, permission.Read); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxLookupResults {
		limit = MaxLookupResults
	}

	f := m.Searchable()
	if f != nil {
		fields, err := m.Displayable(ctx, s.checker, u)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(fields, f) {
			f = nil
		}
	}
	if f == nil {
		return s.lookupIDs(ctx, m, limit)
	}

	var where sqlgen.Expr = sqlgen.True{}
	if q != "" {
		where = sqlgen.Cmp{Column: f.Slug(), Op: sqlgen.OpContains, Value: q}
	}
	fields := []*model.Field{f}
	query, args, err := sqlgen.Select{
		Table:   m.Slug(),
		Columns: columnsOf(fields),
		Where:   where,
		OrderBy: []sqlgen.Order{{Column: f.Slug()}, {Column: model.IDColumn}},
		Limit:   limit,
	}.Build(s.dialect)
	if err != nil {
		return nil, err
	}
	recs, err := s.scan(ctx, s.db, m, fields, query, args)
	if err != nil {
		return nil, err
	}

	out := make([]Match, len(recs))
	for i, r := range recs {
		out[i] = Match{ID: r.ID, Label: label(r.ID, r.Values[f.Slug()])}
	}
	return out, nil
}

func (s *Service) lookupIDs(ctx context.Context, m *model.Model, limit int) ([]Match, error) {
	query, args, err := sqlgen.Select{
		Table:   m.Slug(),
		Columns: []string{model.IDColumn},
		OrderBy: []sqlgen.Order{{Column: model.IDColumn}},
		Limit:   limit,
	}.Build(s.dialect)
	if err != nil {
		return nil, err
	}
	recs, err := s.scan(ctx, s.db, m, nil, query, args)
	if err != nil {
		return nil, err
	}
	out := make([]Match, len(recs))
	for i, r := range recs {
		out[i] = Match{ID: r.ID, Label: label(r.ID, nil)}
	}
	return out, nil
}

func label(id int64, v any) string {
	if v == nil || v == "" {
		return fmt.Sprintf("#%d", id)
	}
	return fmt.Sprint(v)
}
