// Package model builds the physical record description of a Table: the
// ordered fields derived from its Columns, the physical table definition the
// synchronizer reconciles, and the per-user display partitions.
package model

import (
	"context"
	"encoding/hex"
	"log/slog"
	"slices"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/ast"
	"github.com/Zhukowych/tablepp/internal/coltype"
	"github.com/Zhukowych/tablepp/internal/registry"
)

// IDColumn is the primary key of every physical table.
const IDColumn = "id"

// Source is what the builder reads metadata from. *registry.Store
// satisfies it.
type Source interface {
	Tables(ctx context.Context) ([]*registry.Table, error)
	Columns(ctx context.Context, tableID int64) ([]*registry.Column, error)
	Resolver() coltype.Resolver
}

// Field is one column of a model with its handler and physical field.
type Field struct {
	Column   *registry.Column
	Handler  coltype.Handler
	Physical *ast.ColumnDef
}

// Slug returns the physical column name.
func (f *Field) Slug() string { return f.Column.Slug }

// Name returns the human column name.
func (f *Field) Name() string { return f.Column.Name }

// Target returns the physical table a relation field points at.
func (f *Field) Target() (string, bool) {
	if f.Physical.Reference == nil {
		return "", false
	}
	return f.Physical.Reference.Table, true
}

// Skipped is a column left out of a model because its physical field could
// not be built.
type Skipped struct {
	Column *registry.Column
	Err    error
}

// Model is the runtime description of one table.
type Model struct {
	Table   *registry.Table
	Fields  []*Field
	Skipped []Skipped
	Def     *ast.TableDef
}

// Slug returns the physical table name.
func (m *Model) Slug() string { return m.Table.Slug }

// Field returns the field with the given column slug.
func (m *Model) Field(slug string) *Field {
	for _, f := range m.Fields {
		if f.Slug() == slug {
			return f
		}
	}
	return nil
}

// FieldByName returns the field with the given column name.
func (m *Model) FieldByName(name string) *Field {
	for _, f := range m.Fields {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

// Lookup finds a field by slug, then by name.
func (m *Model) Lookup(ref string) *Field {
	if f := m.Field(ref); f != nil {
		return f
	}
	return m.FieldByName(ref)
}

// Columns returns the physical column names, id first.
func (m *Model) Columns() []string {
	out := make([]string, 0, len(m.Fields)+1)
	out = append(out, IDColumn)
	for _, f := range m.Fields {
		out = append(out, f.Slug())
	}
	return out
}

// Filterable returns the fields marked filterable.
func (m *Model) Filterable() []*Field {
	var out []*Field
	for _, f := range m.Fields {
		if f.Column.IsFilterable {
			out = append(out, f)
		}
	}
	return out
}

// Searchable returns the field used by record lookups.
func (m *Model) Searchable() *Field {
	cols := make([]*registry.Column, len(m.Fields))
	for i, f := range m.Fields {
		cols[i] = f.Column
	}
	c := registry.SearchableColumn(cols)
	if c == nil {
		return nil
	}
	return m.Field(c.Slug)
}

// RelationsTo returns the fields of m referencing the physical table slug.
func (m *Model) RelationsTo(slug string) []*Field {
	var out []*Field
	for _, f := range m.Fields {
		if target, ok := f.Target(); ok && target == slug {
			out = append(out, f)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Builder
// -----------------------------------------------------------------------------

// Builder derives models from registry metadata.
type Builder struct {
	src    Source
	logger *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger that reports skipped columns.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a Builder reading from src.
func NewBuilder(src Source, opts ...BuilderOption) *Builder {
	b := &Builder{src: src, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the model of t. A column whose handler or physical field
// fails with a configuration or validation error is logged and skipped so
// the rest of the table stays usable.
func (b *Builder) Build(ctx context.Context, t *registry.Table) (*Model, error) {
	cols, err := b.src.Columns(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	m := &Model{Table: t}
	def := &ast.TableDef{
		Name:    t.Slug,
		Docs:    t.Name,
		Columns: []*ast.ColumnDef{{Name: IDColumn, Type: ast.TypeID, PrimaryKey: true}},
	}
	resolver := b.src.Resolver()

	for _, c := range cols {
		f, err := buildField(ctx, c, resolver)
		if err != nil {
			if !isolated(err) {
				return nil, err
			}
			b.logger.Warn("column skipped",
				"table", t.Name,
				"column", c.Name,
				"error", err)
			m.Skipped = append(m.Skipped, Skipped{Column: c, Err: err})
			def.Keep = append(def.Keep, c.Slug)
			continue
		}
		m.Fields = append(m.Fields, f)
		def.Columns = append(def.Columns, f.Physical)
	}

	for _, group := range t.Options.UniqueTogether() {
		idx, ok := m.uniqueIndex(group)
		if !ok {
			b.logger.Warn("unique_together group skipped",
				"table", t.Name,
				"columns", strings.Join(group, ","))
			continue
		}
		def.Indexes = append(def.Indexes, idx)
	}

	m.Def = def
	return m, nil
}

// BuildAll returns the models of every table ordered by table id.
func (b *Builder) BuildAll(ctx context.Context) ([]*Model, error) {
	tables, err := b.src.Tables(ctx)
	if err != nil {
		return nil, err
	}
	models := make([]*Model, 0, len(tables))
	for _, t := range tables {
		m, err := b.Build(ctx, t)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

func buildField(ctx context.Context, c *registry.Column, r coltype.Resolver) (*Field, error) {
	h, err := c.Handler()
	if err != nil {
		return nil, err
	}
	phys, err := h.PhysicalField(ctx, r)
	if err != nil {
		return nil, err
	}
	return &Field{Column: c, Handler: h, Physical: phys}, nil
}

// isolated reports whether err only concerns one column.
func isolated(err error) bool {
	switch alerr.GetErrorCode(err) {
	case alerr.ErrConfiguration, alerr.ErrValidation, alerr.ErrInvalidSettings, alerr.ErrUnknownType:
		return true
	}
	return false
}

// uniqueIndex resolves a unique_together group (slugs or names) against the
// built fields.
func (m *Model) uniqueIndex(group []string) (*ast.IndexDef, bool) {
	cols := make([]string, 0, len(group))
	for _, ref := range group {
		f := m.Lookup(ref)
		if f == nil || slices.Contains(cols, f.Slug()) {
			return nil, false
		}
		cols = append(cols, f.Slug())
	}
	return &ast.IndexDef{
		Name:    UniqueIndexName(m.Table.Slug, cols),
		Columns: cols,
		Unique:  true,
	}, true
}

// UniqueIndexName names a unique index by a short digest of its columns so
// that the name stays within identifier limits.
func UniqueIndexName(tableSlug string, cols []string) string {
	sum := blake3.Sum256([]byte(strings.Join(cols, ",")))
	return tableSlug + "_uq_" + hex.EncodeToString(sum[:4])
}
