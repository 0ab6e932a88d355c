package schemafile

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/coltype"
	"github.com/Zhukowych/tablepp/internal/registry"
)

// Registry is the part of *registry.Store that Apply and Export need.
type Registry interface {
	Tables(ctx context.Context) ([]*registry.Table, error)
	Table(ctx context.Context, id int64) (*registry.Table, error)
	TableByName(ctx context.Context, name string) (*registry.Table, error)
	CreateTable(ctx context.Context, name, description string, options registry.Options) (*registry.Table, error)
	UpdateTable(ctx context.Context, t *registry.Table) error
	Columns(ctx context.Context, tableID int64) ([]*registry.Column, error)
	AddColumn(ctx context.Context, t *registry.Table, in registry.ColumnInput) (*registry.Column, error)
	UpdateColumn(ctx context.Context, t *registry.Table, c *registry.Column) error
	RemoveColumn(ctx context.Context, t *registry.Table, ref registry.ColumnRef) (*registry.Column, error)
}

// ApplyOptions tune Apply.
type ApplyOptions struct {
	// Prune removes columns of declared tables that the document no
	// longer lists. Undeclared tables are never touched.
	Prune bool
}

// Result reports what Apply changed.
type Result struct {
	Created        []*registry.Table
	Updated        []*registry.Table
	AddedColumns   []*registry.Column
	UpdatedColumns []*registry.Column
	RemovedColumns []*registry.Column
	Warnings       []string
}

// Changed reports whether Apply changed anything.
func (r *Result) Changed() bool {
	return len(r.Created)+len(r.Updated)+len(r.AddedColumns)+
		len(r.UpdatedColumns)+len(r.RemovedColumns) > 0
}

// Summary returns a one-line description of the result.
func (r *Result) Summary() string {
	if !r.Changed() {
		return "Registry matches schema file"
	}
	return fmt.Sprintf("%d tables created, %d updated, %d columns added, %d updated, %d removed",
		len(r.Created), len(r.Updated), len(r.AddedColumns), len(r.UpdatedColumns), len(r.RemovedColumns))
}

// Apply reconciles reg with doc. Tables are created first so relations may
// point anywhere in the document. The dtype of an existing column is never
// changed; a mismatch is reported as a warning. Records are not touched.
func Apply(ctx context.Context, reg Registry, doc *Document, opts ApplyOptions) (*Result, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	res := &Result{}

	tables := make([]*registry.Table, len(doc.Tables))
	for i, decl := range doc.Tables {
		t, err := reg.TableByName(ctx, decl.Name)
		switch {
		case err == nil:
		case alerr.Is(err, alerr.ErrNotFound):
			t, err = reg.CreateTable(ctx, decl.Name, decl.Description, registry.Options{})
			if err != nil {
				return nil, err
			}
			res.Created = append(res.Created, t)
		default:
			return nil, err
		}
		tables[i] = t
	}

	for i, decl := range doc.Tables {
		if err := applyColumns(ctx, reg, tables[i], decl, opts, res); err != nil {
			return nil, err
		}
	}

	for i, decl := range doc.Tables {
		if err := applyTable(ctx, reg, tables[i], decl, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func applyColumns(ctx context.Context, reg Registry, t *registry.Table, decl Table, opts ApplyOptions, res *Result) error {
	existing, err := reg.Columns(ctx, t.ID)
	if err != nil {
		return err
	}
	byName := make(map[string]*registry.Column, len(existing))
	for _, c := range existing {
		byName[strings.ToLower(c.Name)] = c
	}

	declared := map[string]bool{}
	for _, cd := range decl.Columns {
		declared[strings.ToLower(strings.TrimSpace(cd.Name))] = true

		settings, err := columnSettings(ctx, reg, t, cd)
		if err != nil {
			return err
		}

		c, ok := byName[strings.ToLower(strings.TrimSpace(cd.Name))]
		if !ok {
			c, err = reg.AddColumn(ctx, t, registry.ColumnInput{
				Name:          cd.Name,
				DType:         cd.Type,
				Settings:      settings,
				IsFilterable:  cd.Filterable,
				IsDisplayable: cd.Displayable,
			})
			if err != nil {
				return err
			}
			res.AddedColumns = append(res.AddedColumns, c)
			continue
		}

		if dt, _ := coltype.ParseDType(cd.Type); dt != c.DType {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"%s.%s: type %s cannot change to %s", t.Name, c.Name, c.DType, dt))
		}

		for _, key := range coltype.FrozenKeys(c.DType) {
			want, given := settings[key]
			have, stored := c.Settings[key]
			if given && (!stored || !sameJSON(want, have)) {
				res.Warnings = append(res.Warnings, fmt.Sprintf(
					"%s.%s: %s cannot change", t.Name, c.Name, key))
			}
			if stored {
				settings[key] = have
			} else {
				delete(settings, key)
			}
		}

		changed := !registry.SameSettings(c.Settings, settings)
		c.Settings = settings
		if cd.Filterable != nil && *cd.Filterable != c.IsFilterable {
			c.IsFilterable = *cd.Filterable
			changed = true
		}
		if cd.Displayable != nil && *cd.Displayable != c.IsDisplayable {
			c.IsDisplayable = *cd.Displayable
			changed = true
		}
		if !changed {
			continue
		}
		if err := reg.UpdateColumn(ctx, t, c); err != nil {
			return err
		}
		res.UpdatedColumns = append(res.UpdatedColumns, c)
	}

	if !opts.Prune {
		return nil
	}
	for _, c := range existing {
		if declared[strings.ToLower(c.Name)] {
			continue
		}
		removed, err := reg.RemoveColumn(ctx, t, c)
		if err != nil {
			return err
		}
		res.RemovedColumns = append(res.RemovedColumns, removed)
	}
	return nil
}

// columnSettings returns the declared settings with the relation target
// resolved to its table id.
func columnSettings(ctx context.Context, reg Registry, t *registry.Table, cd Column) (coltype.Settings, error) {
	settings := cd.Settings.Clone()
	if cd.Target == "" {
		return settings, nil
	}
	target, err := reg.TableByName(ctx, cd.Target)
	if err != nil {
		if alerr.Is(err, alerr.ErrNotFound) {
			return nil, alerr.New(alerr.ErrConfiguration, "relation target does not exist").
				WithTable(t.Name).
				WithColumn(cd.Name).
				With("target", cd.Target)
		}
		return nil, err
	}
	settings[coltype.KeyTargetTableID] = target.ID
	return settings, nil
}

// applyTable stores description and options once the columns exist, since
// options refer to columns by slug.
func applyTable(ctx context.Context, reg Registry, t *registry.Table, decl Table, res *Result) error {
	cols, err := reg.Columns(ctx, t.ID)
	if err != nil {
		return err
	}
	slugOf := func(name string) (string, bool) {
		for _, c := range cols {
			if strings.EqualFold(c.Name, name) {
				return c.Slug, true
			}
		}
		return "", false
	}

	opts := registry.Options{}
	for k, v := range t.Options {
		opts[k] = v
	}
	delete(opts, "ordering")
	delete(opts, "unique_together")

	if len(decl.Ordering) > 0 {
		var ordering []string
		for _, term := range decl.Ordering {
			desc := strings.HasPrefix(term, "-")
			name := strings.TrimPrefix(term, "-")
			slug, ok := slugOf(name)
			if name == "id" {
				slug, ok = name, true
			}
			if !ok {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: unknown ordering column %q", t.Name, term))
				continue
			}
			if desc {
				slug = "-" + slug
			}
			ordering = append(ordering, slug)
		}
		opts["ordering"] = ordering
	}
	if len(decl.UniqueTogether) > 0 {
		var groups [][]string
		for _, group := range decl.UniqueTogether {
			slugs := make([]string, 0, len(group))
			for _, name := range group {
				slug, _ := slugOf(name)
				slugs = append(slugs, slug)
			}
			groups = append(groups, slugs)
		}
		opts["unique_together"] = groups
	}

	if t.Description == decl.Description && sameJSON(t.Options, opts) {
		return nil
	}
	t.Description = decl.Description
	t.Options = opts
	if err := reg.UpdateTable(ctx, t); err != nil {
		return err
	}
	for _, c := range res.Created {
		if c.ID == t.ID {
			return nil
		}
	}
	res.Updated = append(res.Updated, t)
	return nil
}

func sameJSON(a, b any) bool {
	norm := func(v any) any {
		raw, _ := json.Marshal(v)
		var out any
		_ = json.Unmarshal(raw, &out)
		return out
	}
	return reflect.DeepEqual(norm(a), norm(b))
}

// Export describes every table of reg as a document. Records are not
// exported.
func Export(ctx context.Context, reg Registry) (*Document, error) {
	tables, err := reg.Tables(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(tables))
	for _, t := range tables {
		names[t.ID] = t.Name
	}

	doc := &Document{}
	for _, t := range tables {
		cols, err := reg.Columns(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		nameOf := make(map[string]string, len(cols))
		decl := Table{Name: t.Name, Description: t.Description}
		for _, c := range cols {
			nameOf[c.Slug] = c.Name
			cd := Column{Name: c.Name, Type: c.DType.String()}
			settings := c.Settings.Clone()
			if target, ok := c.TargetTableID(); ok {
				cd.Target = names[target]
				delete(settings, coltype.KeyTargetTableID)
			}
			if len(settings) > 0 {
				cd.Settings = settings
			}
			if !c.IsFilterable {
				cd.Filterable = new(bool)
			}
			if !c.IsDisplayable {
				cd.Displayable = new(bool)
			}
			decl.Columns = append(decl.Columns, cd)
		}
		for _, term := range t.Options.Ordering() {
			prefix := ""
			if strings.HasPrefix(term, "-") {
				prefix = "-"
			}
			slug := strings.TrimPrefix(term, "-")
			if slug == "id" {
				decl.Ordering = append(decl.Ordering, term)
			} else if name, ok := nameOf[slug]; ok {
				decl.Ordering = append(decl.Ordering, prefix+name)
			}
		}
		for _, group := range t.Options.UniqueTogether() {
			var names []string
			for _, slug := range group {
				if name, ok := nameOf[slug]; ok {
					names = append(names, name)
				}
			}
			if len(names) == len(group) {
				decl.UniqueTogether = append(decl.UniqueTogether, names)
			}
		}
		doc.Tables = append(doc.Tables, decl)
	}
	return doc, nil
}
