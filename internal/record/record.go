// Package record is the data service for the rows of user-defined tables.
// Every write goes through the column handlers and the permission checker,
// and runs in its own transaction.
package record

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/Zhukowych/tablepp/internal/activity"
	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/dialect"
	"github.com/Zhukowych/tablepp/internal/filter"
	"github.com/Zhukowych/tablepp/internal/model"
	"github.com/Zhukowych/tablepp/internal/permission"
	"github.com/Zhukowych/tablepp/internal/sqlgen"
)

// Record is one row of a physical table keyed by column slug.
type Record struct {
	ID     int64
	Values map[string]any
}

// Get returns the value of the column with slug.
func (r *Record) Get(slug string) any {
	return r.Values[slug]
}

// Queryer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is a Queryer that can start transactions. *sql.DB satisfies it.
type DB interface {
	Queryer
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Models lists every model. *model.Arena satisfies it.
type Models interface {
	All() []*model.Model
}

// Service performs record operations.
type Service struct {
	db       DB
	dialect  dialect.Dialect
	models   Models
	checker  permission.Checker
	recorder *activity.Recorder
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder sets the activity recorder.
func WithRecorder(r *activity.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a record service. A nil checker allows everything.
func NewService(db DB, d dialect.Dialect, models Models, checker permission.Checker, opts ...Option) *Service {
	if checker == nil {
		checker = permission.AllowAll{}
	}
	s := &Service{
		db:      db,
		dialect: d,
		models:  models,
		checker: checker,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

// Query selects records for List.
type Query struct {
	// Filters are filter parameters, see filter.Build.
	Filters map[string][]string
	// Order holds "slug" or "-slug" terms. Empty uses the table's ordering
	// option, then id.
	Order  []string
	Limit  int
	Offset int
}

// Page is one page of List results.
type Page struct {
	Records []*Record
	Total   int
	Fields  []*model.Field
}

// Get returns the record with id. Only displayable columns u may read are
// returned.
func (s *Service) Get(ctx context.Context, u permission.User, m *model.Model, id int64) (*Record, error) {
	if err := s.require(ctx, u, m, permission.Read); err != nil {
		return nil, err
	}
	fields, err := m.Displayable(ctx, s.checker, u)
	if err != nil {
		return nil, err
	}
	rec, err := s.load(ctx, s.db, m, fields, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns the records matching q.
func (s *Service) List(ctx context.Context, u permission.User, m *model.Model, q Query) (*Page, error) {
	if err := s.require(ctx, u, m, permission.Read); err != nil {
		return nil, err
	}
	fields, err := m.Displayable(ctx, s.checker, u)
	if err != nil {
		return nil, err
	}
	where, err := filter.Build(ctx, m, q.Filters, s, filter.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}

	sel := sqlgen.Select{
		Table:   m.Slug(),
		Columns: columnsOf(fields),
		Where:   where,
		OrderBy: ordering(m, q.Order),
		Limit:   q.Limit,
		Offset:  q.Offset,
	}

	countSQL, countArgs, err := sel.Count(s.dialect)
	if err != nil {
		return nil, err
	}
	page := &Page{Fields: fields}
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&page.Total); err != nil {
		return nil, alerr.WrapSQL(err, "count records", m.Table.Name).WithSQL(countSQL)
	}

	query, args, err := sel.Build(s.dialect)
	if err != nil {
		return nil, err
	}
	page.Records, err = s.scan(ctx, s.db, m, fields, query, args)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Exists reports whether the physical table slug holds a record with id.
func (s *Service) Exists(ctx context.Context, slug string, id int64) (bool, error) {
	return exists(ctx, s.db, s.dialect, slug, id)
}

var _ filter.RecordChecker = (*Service)(nil)

func exists(ctx context.Context, q Queryer, d dialect.Dialect, slug string, id int64) (bool, error) {
	query, args, err := sqlgen.Select{
		Table:   slug,
		Columns: []string{model.IDColumn},
		Where:   sqlgen.Eq(model.IDColumn, id),
		Limit:   1,
	}.Build(d)
	if err != nil {
		return false, err
	}
	var got int64
	switch err := q.QueryRowContext(ctx, query, args...).Scan(&got); {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, alerr.WrapSQL(err, "look up record", slug).WithSQL(query)
	}
	return true, nil
}

// Format returns the display values of rec: each handler's Format applied
// to the stored value.
func Format(m *model.Model, rec *Record) map[string]any {
	out := make(map[string]any, len(rec.Values))
	for slug, v := range rec.Values {
		if f := m.Field(slug); f != nil {
			out[slug] = f.Handler.Format(v)
			continue
		}
		out[slug] = v
	}
	return out
}

// -----------------------------------------------------------------------------
// Writes
// -----------------------------------------------------------------------------

// Create inserts a record from values keyed by column slug or name.
func (s *Service) Create(ctx context.Context, u permission.User, m *model.Model, values map[string]any) (*Record, error) {
	if err := s.require(ctx, u, m, permission.Write); err != nil {
		return nil, err
	}
	cleaned, err := s.clean(ctx, u, m, values)
	if err != nil {
		return nil, err
	}

	var rec *Record
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkRelations(ctx, tx, m, cleaned); err != nil {
			return err
		}
		cols, vals := cleaned.split()
		query, args := sqlgen.Insert(s.dialect, m.Slug(), cols, vals)
		var id int64
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return alerr.WrapSQL(err, "insert record", m.Table.Name).WithSQL(query)
		}
		rec = &Record{ID: id, Values: cleaned.values()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, u, m, rec.ID, "Created record", "")
	return rec, s.restrict(ctx, u, m, rec)
}

// Update changes the given values of the record with id.
func (s *Service) Update(ctx context.Context, u permission.User, m *model.Model, id int64, values map[string]any) (*Record, error) {
	if err := s.require(ctx, u, m, permission.Write); err != nil {
		return nil, err
	}
	cleaned, err := s.clean(ctx, u, m, values)
	if err != nil {
		return nil, err
	}

	var (
		rec     *Record
		changed []string
	)
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := s.load(ctx, tx, m, m.Fields, id)
		if err != nil {
			return err
		}
		if err := s.checkRelations(ctx, tx, m, cleaned); err != nil {
			return err
		}
		for _, v := range cleaned {
			if !equalValues(current.Values[v.field.Slug()], v.value) {
				changed = append(changed, v.field.Name())
			}
			current.Values[v.field.Slug()] = v.value
		}
		rec = current
		if len(cleaned) == 0 {
			return nil
		}

		cols, vals := cleaned.split()
		query, args, err := sqlgen.Update(s.dialect, m.Slug(), cols, vals, sqlgen.Eq(model.IDColumn, id))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return alerr.WrapSQL(err, "update record", m.Table.Name).WithSQL(query)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		s.record(ctx, u, m, id, "Updated record", "Changed "+strings.Join(changed, ", "))
	}
	return rec, s.restrict(ctx, u, m, rec)
}

// Delete removes the record with id. Records referenced by a relation
// column of any table are refused with ErrIntegrity.
func (s *Service) Delete(ctx context.Context, u permission.User, m *model.Model, id int64) error {
	if err := s.require(ctx, u, m, permission.Delete); err != nil {
		return err
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		ok, err := exists(ctx, tx, s.dialect, m.Slug(), id)
		if err != nil {
			return err
		}
		if !ok {
			return notFound(m, id)
		}

		deps, err := s.related(ctx, tx, m, id)
		if err != nil {
			return err
		}
		if len(deps) > 0 {
			return blockedBy(m, id, deps)
		}

		query, args, err := sqlgen.Delete(s.dialect, m.Slug(), sqlgen.Eq(model.IDColumn, id))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return alerr.WrapSQL(err, "delete record", m.Table.Name).WithSQL(query)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.record(ctx, u, m, id, "Deleted record", "")
	return nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (s *Service) require(ctx context.Context, u permission.User, m *model.Model, op permission.Operation) error {
	err := permission.Require(ctx, s.checker, u, permission.Table(m.Table.ID), op)
	if err != nil {
		if e, ok := err.(*alerr.Error); ok {
			e.WithTable(m.Table.Name)
			s.logger.Debug("permission denied", "table", m.Table.Name, "user", u.String(), "operation", op.String())
		}
		return err
	}
	return nil
}

func (s *Service) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return alerr.Wrap(alerr.ErrSQLTransaction, err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return alerr.Wrap(alerr.ErrSQLTransaction, err, "failed to commit transaction")
	}
	return nil
}

func (s *Service) record(ctx context.Context, u permission.User, m *model.Model, id int64, msg, desc string) {
	s.recorder.Record(ctx, activity.Entry{
		UserID:      u.ID,
		Table:       m.Slug(),
		RecordID:    id,
		Message:     msg,
		Description: desc,
	})
	s.logger.Debug(strings.ToLower(msg), "table", m.Table.Name, "record", id, "user", u.String())
}

// restrict drops the values of rec that u may not read, so that writes
// return the same columns as Get.
func (s *Service) restrict(ctx context.Context, u permission.User, m *model.Model, rec *Record) error {
	fields, err := m.Displayable(ctx, s.checker, u)
	if err != nil {
		return err
	}
	visible := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := rec.Values[f.Slug()]; ok {
			visible[f.Slug()] = v
		}
	}
	rec.Values = visible
	return nil
}

// load reads one record restricted to fields.
func (s *Service) load(ctx context.Context, q Queryer, m *model.Model, fields []*model.Field, id int64) (*Record, error) {
	query, args, err := sqlgen.Select{
		Table:   m.Slug(),
		Columns: columnsOf(fields),
		Where:   sqlgen.Eq(model.IDColumn, id),
	}.Build(s.dialect)
	if err != nil {
		return nil, err
	}
	recs, err := s.scan(ctx, q, m, fields, query, args)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, notFound(m, id)
	}
	return recs[0], nil
}

// scan runs query, whose columns are id followed by fields.
func (s *Service) scan(ctx context.Context, q Queryer, m *model.Model, fields []*model.Field, query string, args []any) ([]*Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, alerr.WrapSQL(err, "select records", m.Table.Name).WithSQL(query)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var id int64
		vals := make([]any, len(fields))
		dest := make([]any, 0, len(fields)+1)
		dest = append(dest, &id)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, alerr.WrapSQL(err, "scan record", m.Table.Name)
		}
		rec := &Record{ID: id, Values: make(map[string]any, len(fields))}
		for i, f := range fields {
			rec.Values[f.Slug()] = normalize(vals[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, alerr.WrapSQL(err, "select records", m.Table.Name)
	}
	return out, nil
}

func columnsOf(fields []*model.Field) []string {
	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, model.IDColumn)
	for _, f := range fields {
		cols = append(cols, f.Slug())
	}
	return cols
}

// ordering resolves order terms against m. Unknown columns are dropped and
// id breaks ties.
func ordering(m *model.Model, terms []string) []sqlgen.Order {
	if len(terms) == 0 {
		terms = m.Table.Options.Ordering()
	}
	var out []sqlgen.Order
	for _, term := range terms {
		o := sqlgen.ParseOrder(term)
		if o.Column == model.IDColumn {
			out = append(out, o)
			continue
		}
		f := m.Lookup(o.Column)
		if f == nil {
			continue
		}
		o.Column = f.Slug()
		out = append(out, o)
	}
	if !slices.ContainsFunc(out, func(o sqlgen.Order) bool { return o.Column == model.IDColumn }) {
		out = append(out, sqlgen.Order{Column: model.IDColumn})
	}
	return out
}

// normalize converts driver values to the handler representations.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func equalValues(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b) && (a == nil) == (b == nil)
}

func notFound(m *model.Model, id int64) error {
	return alerr.New(alerr.ErrNotFound, "record not found").
		WithTable(m.Table.Name).
		With("id", id)
}
