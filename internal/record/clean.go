package record

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/model"
	"github.com/Zhukowych/tablepp/internal/permission"
)

type cleanedValue struct {
	field *model.Field
	value any
}

// cleanedValues are ordered like the model fields.
type cleanedValues []cleanedValue

func (c cleanedValues) split() (cols []string, vals []any) {
	for _, v := range c {
		cols = append(cols, v.field.Slug())
		vals = append(vals, v.value)
	}
	return cols, vals
}

func (c cleanedValues) values() map[string]any {
	out := make(map[string]any, len(c))
	for _, v := range c {
		out[v.field.Slug()] = v.value
	}
	return out
}

// clean maps input keys to fields and runs every handler. Keys outside the
// writable partition of u fail the whole call: unknown keys with
// ErrValidation, known but not writable columns with ErrPermissionDenied.
// Handler errors are collected into one ErrValidation.
func (s *Service) clean(ctx context.Context, u permission.User, m *model.Model, values map[string]any) (cleanedValues, error) {
	part, err := m.Partition(ctx, s.checker, u)
	if err != nil {
		return nil, err
	}

	byField := make(map[*model.Field]any, len(values))
	fe := alerr.FieldErrors{}
	var denied []string

	for _, key := range slices.Sorted(maps.Keys(values)) {
		f := m.Lookup(key)
		switch {
		case f == nil:
			fe.Add(key, "Unknown column")
			continue
		case !part.IsWritable(f.Slug()):
			denied = append(denied, f.Name())
			continue
		}
		if _, dup := byField[f]; dup {
			fe.Add(f.Slug(), "Value given twice")
			continue
		}
		byField[f] = values[key]
	}

	if len(denied) > 0 {
		return nil, alerr.New(alerr.ErrPermissionDenied, "columns are not writable").
			WithTable(m.Table.Name).
			With("user", u.String()).
			With("columns", strings.Join(denied, ", "))
	}

	var out cleanedValues
	for _, f := range m.Fields {
		raw, ok := byField[f]
		if !ok {
			continue
		}
		v, err := f.Handler.Clean(raw)
		if err != nil {
			fe.AddError(f.Slug(), err)
			continue
		}
		out = append(out, cleanedValue{field: f, value: v})
	}

	if err := fe.Err("invalid record"); err != nil {
		return nil, err
	}
	return out, nil
}

// checkRelations verifies that every relation value names an existing
// record of its target table.
func (s *Service) checkRelations(ctx context.Context, q Queryer, m *model.Model, vals cleanedValues) error {
	fe := alerr.FieldErrors{}
	for _, v := range vals {
		target, ok := v.field.Target()
		if !ok || v.value == nil {
			continue
		}
		id, _ := v.value.(int64)
		found, err := exists(ctx, q, s.dialect, target, id)
		if err != nil {
			return err
		}
		if !found {
			fe.Add(v.field.Slug(), "Select a valid record")
		}
	}
	return fe.Err("invalid record")
}
