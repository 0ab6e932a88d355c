// Package filter turns query parameters into a predicate over a model's
// physical table. Only filterable columns participate, each with the
// operators its handler declares.
package filter

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/coltype"
	"github.com/Zhukowych/tablepp/internal/model"
	"github.com/Zhukowych/tablepp/internal/sqlgen"
)

// Separator splits a parameter key into column and operator.
const Separator = "__"

// RecordChecker reports whether a record exists in a physical table.
// Relation filter values are resolved through it.
type RecordChecker interface {
	Exists(ctx context.Context, tableSlug string, id int64) (bool, error)
}

// CheckerFunc adapts a function to RecordChecker.
type CheckerFunc func(ctx context.Context, tableSlug string, id int64) (bool, error)

// Exists calls f.
func (f CheckerFunc) Exists(ctx context.Context, tableSlug string, id int64) (bool, error) {
	return f(ctx, tableSlug, id)
}

// Condition is one parsed and cleaned filter term.
type Condition struct {
	Field    *model.Field
	Operator coltype.Operator
	Value    any
}

// Expr returns the predicate of the condition.
func (c Condition) Expr() sqlgen.Expr {
	col := c.Field.Slug()
	switch c.Operator {
	case coltype.OpContains:
		return sqlgen.Cmp{Column: col, Op: sqlgen.OpContains, Value: c.Value}
	case coltype.OpGte:
		return sqlgen.Cmp{Column: col, Op: sqlgen.OpGte, Value: c.Value}
	case coltype.OpLte:
		return sqlgen.Cmp{Column: col, Op: sqlgen.OpLte, Value: c.Value}
	default:
		return sqlgen.Eq(col, c.Value)
	}
}

// Available lists the operators each filterable field of m exposes. Fields
// without operators are left out.
func Available(m *model.Model) map[string][]coltype.Operator {
	out := make(map[string][]coltype.Operator)
	for _, f := range m.Filterable() {
		if ops := f.Handler.FilterOperators(); len(ops) > 0 {
			out[f.Slug()] = ops
		}
	}
	return out
}

// ParseKey splits "<column>" or "<column>__<op>". A bare column means exact.
func ParseKey(key string) (column string, op coltype.Operator) {
	if i := strings.LastIndex(key, Separator); i > 0 {
		return key[:i], coltype.Operator(key[i+len(Separator):])
	}
	return key, coltype.OpExact
}

// Option configures Parse and Build.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger that reports ignored parameters.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(opts []Option) *options {
	o := &options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Parse converts every usable parameter into a Condition. Keys naming
// unknown or non-filterable columns, and operators the column does not
// declare, are ignored. Empty values are ignored. Values are parsed by
// column type; range and length settings do not apply. Values that fail parsing are
// collected into one ErrValidation.
func Parse(ctx context.Context, m *model.Model, params map[string][]string, rc RecordChecker, opts ...Option) ([]Condition, error) {
	o := newOptions(opts)
	var conds []Condition
	fe := alerr.FieldErrors{}

	for _, key := range slices.Sorted(maps.Keys(params)) {
		raw, ok := lastValue(params[key])
		if !ok {
			continue
		}
		ref, op := ParseKey(key)
		f := m.Lookup(ref)
		if f == nil || !f.Column.IsFilterable || !declares(f, op) {
			o.logger.Debug("filter parameter ignored", "table", m.Table.Name, "key", key)
			continue
		}

		v, err := f.Handler.Parse(raw)
		if err != nil {
			fe.AddError(f.Slug(), err)
			continue
		}
		if v == nil {
			continue
		}
		if target, isRel := f.Target(); isRel {
			id, _ := v.(int64)
			exists, err := rc.Exists(ctx, target, id)
			if err != nil {
				return nil, err
			}
			if !exists {
				fe.Add(f.Slug(), "Select a valid record")
				continue
			}
		}
		conds = append(conds, Condition{Field: f, Operator: op, Value: v})
	}

	if err := fe.Err("invalid filter"); err != nil {
		return nil, err
	}
	return conds, nil
}

// Build parses params and combines the conditions with AND. No usable
// parameter yields sqlgen.True.
func Build(ctx context.Context, m *model.Model, params map[string][]string, rc RecordChecker, opts ...Option) (sqlgen.Expr, error) {
	conds, err := Parse(ctx, m, params, rc, opts...)
	if err != nil {
		return nil, err
	}
	items := make([]sqlgen.Expr, len(conds))
	for i, c := range conds {
		items[i] = c.Expr()
	}
	return sqlgen.AndOf(items...), nil
}

func declares(f *model.Field, op coltype.Operator) bool {
	return slices.Contains(f.Handler.FilterOperators(), op)
}

func lastValue(vals []string) (string, bool) {
	for i := len(vals) - 1; i >= 0; i-- {
		if v := strings.TrimSpace(vals[i]); v != "" {
			return v, true
		}
	}
	return "", false
}
