package record

import (
	"context"
	"fmt"
	"strings"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/model"
	"github.com/Zhukowych/tablepp/internal/permission"
	"github.com/Zhukowych/tablepp/internal/sqlgen"
)

// Dependent lists the records of one relation column that reference a
// record.
type Dependent struct {
	Model *model.Model
	Field *model.Field
	IDs   []int64
}

func (d Dependent) String() string {
	ids := make([]string, len(d.IDs))
	for i, id := range d.IDs {
		ids[i] = fmt.Sprintf("#%d", id)
	}
	return d.Model.Table.Name + "." + d.Field.Name() + strings.Join(ids, ",")
}

// RelatedRecords returns the records referencing the record id of m,
// grouped by relation column. Tables u may not read are left out.
func (s *Service) RelatedRecords(ctx context.Context, u permission.User, m *model.Model, id int64) ([]Dependent, error) {
	if err := s.require(ctx, u, m, permission.Read); err != nil {
		return nil, err
	}
	deps, err := s.related(ctx, s.db, m, id)
	if err != nil {
		return nil, err
	}
	out := deps[:0]
	for _, d := range deps {
		ok, err := s.checker.Allows(ctx, u, permission.Table(d.Model.Table.ID), permission.Read)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// related finds every record referencing id through a relation column.
// A record referencing itself does not count.
func (s *Service) related(ctx context.Context, q Queryer, m *model.Model, id int64) ([]Dependent, error) {
	var deps []Dependent
	for _, other := range s.models.All() {
		for _, f := range other.RelationsTo(m.Slug()) {
			where := sqlgen.Eq(f.Slug(), id)
			if other.Slug() == m.Slug() {
				where = sqlgen.AndOf(where, sqlgen.Cmp{Column: model.IDColumn, Op: sqlgen.OpNe, Value: id})
			}
			ids, err := s.ids(ctx, q, other, where)
			if err != nil {
				return nil, err
			}
			if len(ids) > 0 {
				deps = append(deps, Dependent{Model: other, Field: f, IDs: ids})
			}
		}
	}
	return deps, nil
}

func (s *Service) ids(ctx context.Context, q Queryer, m *model.Model, where sqlgen.Expr) ([]int64, error) {
	query, args, err := sqlgen.Select{
		Table:   m.Slug(),
		Columns: []string{model.IDColumn},
		Where:   where,
		OrderBy: []sqlgen.Order{{Column: model.IDColumn}},
	}.Build(s.dialect)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, alerr.WrapSQL(err, "select dependents", m.Table.Name).WithSQL(query)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, alerr.WrapSQL(err, "scan dependents", m.Table.Name)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func blockedBy(m *model.Model, id int64, deps []Dependent) error {
	blockers := make([]string, len(deps))
	for i, d := range deps {
		blockers[i] = d.String()
	}
	return alerr.New(alerr.ErrIntegrity, "record is referenced by other records").
		WithTable(m.Table.Name).
		With("id", id).
		With("blockers", strings.Join(blockers, "; ")).
		WithHelp("delete or reassign the referencing records first")
}
