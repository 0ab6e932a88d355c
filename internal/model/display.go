package model

import (
	"context"

	"github.com/Zhukowych/tablepp/internal/permission"
)

// Displayable returns the fields marked displayable that u may read.
func (m *Model) Displayable(ctx context.Context, c permission.Checker, u permission.User) ([]*Field, error) {
	var out []*Field
	for _, f := range m.Fields {
		if !f.Column.IsDisplayable {
			continue
		}
		ok, err := c.Allows(ctx, u, permission.Column(f.Column.ID), permission.Read)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// Partition holds the displayable fields of a model split by WRITE access.
// Readonly fields are rendered but reject value changes.
type Partition struct {
	Writable []*Field
	Readonly []*Field
}

// All returns writable and readonly fields in model order.
func (p *Partition) All(m *Model) []*Field {
	var out []*Field
	for _, f := range m.Fields {
		if p.IsWritable(f.Slug()) || p.IsReadonly(f.Slug()) {
			out = append(out, f)
		}
	}
	return out
}

// IsWritable reports whether the field with slug is writable.
func (p *Partition) IsWritable(slug string) bool {
	return contains(p.Writable, slug)
}

// IsReadonly reports whether the field with slug is readonly.
func (p *Partition) IsReadonly(slug string) bool {
	return contains(p.Readonly, slug)
}

func contains(fields []*Field, slug string) bool {
	for _, f := range fields {
		if f.Slug() == slug {
			return true
		}
	}
	return false
}

// Partition splits the displayable fields of m for u.
func (m *Model) Partition(ctx context.Context, c permission.Checker, u permission.User) (*Partition, error) {
	fields, err := m.Displayable(ctx, c, u)
	if err != nil {
		return nil, err
	}
	p := &Partition{}
	for _, f := range fields {
		ok, err := c.Allows(ctx, u, permission.Column(f.Column.ID), permission.Write)
		if err != nil {
			return nil, err
		}
		if ok {
			p.Writable = append(p.Writable, f)
		} else {
			p.Readonly = append(p.Readonly, f)
		}
	}
	return p, nil
}
