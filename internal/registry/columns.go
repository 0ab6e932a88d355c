package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"unicode/utf8"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/coltype"
)

const columnColumns = `"id", "table_id", "name", "slug", "dtype", "settings", "is_filterable", "is_displayable", "position"`

// AddColumn registers a new column on t with a fresh slug. The dtype is
// required. It does not touch physical storage.
func (s *Store) AddColumn(ctx context.Context, t *Table, in ColumnInput) (*Column, error) {
	c := &Column{
		TableID:       t.ID,
		Name:          normalizeName(in.Name),
		Slug:          NewSlug(ColumnPrefix),
		Settings:      in.Settings.Clone(),
		IsFilterable:  in.IsFilterable == nil || *in.IsFilterable,
		IsDisplayable: in.IsDisplayable == nil || *in.IsDisplayable,
	}

	dtype, err := coltype.ParseDType(in.DType)
	if err != nil {
		fe := alerr.FieldErrors{}
		fe.AddError("dtype", err)
		return nil, fieldErr(fe, t, c)
	}
	c.DType = dtype

	if err := s.checkColumn(ctx, t, c); err != nil {
		return nil, err
	}
	if err := s.Touch(ctx, t); err != nil {
		return nil, err
	}

	posQuery := fmt.Sprintf(`SELECT COALESCE(MAX("position"), 0) FROM %s WHERE "table_id" = %s`,
		s.qi(ColumnsTable), s.ph(1))
	if err := s.q.QueryRowContext(ctx, posQuery, t.ID).Scan(&c.Position); err != nil {
		return nil, alerr.WrapSQL(err, "add column", t.Name).WithSQL(posQuery)
	}
	c.Position++

	settings, err := marshalSettings(c)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		`INSERT INTO %s ("table_id", "name", "slug", "dtype", "settings", "is_filterable", "is_displayable", "position") VALUES (%s, %s, %s, %s, %s, %s, %s, %s) RETURNING "id"`,
		s.qi(ColumnsTable), s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8),
	)
	err = s.q.QueryRowContext(ctx, query,
		c.TableID, c.Name, c.Slug, int(c.DType), settings, c.IsFilterable, c.IsDisplayable, c.Position,
	).Scan(&c.ID)
	if err != nil {
		return nil, alerr.WrapSQLWithColumn(err, "add column", t.Name, c.Name).WithSQL(query)
	}
	return c, nil
}

// UpdateColumn stores the name, settings and flags of c. The dtype, slug and
// the settings that shape physical storage keep their stored values; c is
// updated to reflect them.
func (s *Store) UpdateColumn(ctx context.Context, t *Table, c *Column) error {
	stored, err := s.Column(ctx, c.ID)
	if err != nil {
		return err
	}
	if stored.TableID != t.ID {
		return alerr.New(alerr.ErrNotFound, "column does not belong to table").
			WithTable(t.Name).
			WithColumn(stored.Name)
	}

	c.TableID = stored.TableID
	c.Slug = stored.Slug
	c.DType = stored.DType
	c.Position = stored.Position
	c.Name = normalizeName(c.Name)
	c.Settings = c.Settings.Clone()
	for _, key := range coltype.FrozenKeys(c.DType) {
		if v, ok := stored.Settings[key]; ok {
			c.Settings[key] = v
		} else {
			delete(c.Settings, key)
		}
	}

	if err := s.checkColumn(ctx, t, c); err != nil {
		return err
	}
	if err := s.Touch(ctx, t); err != nil {
		return err
	}

	settings, err := marshalSettings(c)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		`UPDATE %s SET "name" = %s, "settings" = %s, "is_filterable" = %s, "is_displayable" = %s WHERE "id" = %s`,
		s.qi(ColumnsTable), s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5),
	)
	if _, err := s.q.ExecContext(ctx, query, c.Name, settings, c.IsFilterable, c.IsDisplayable, c.ID); err != nil {
		return alerr.WrapSQLWithColumn(err, "update column", t.Name, c.Name).WithSQL(query)
	}
	return nil
}

// RemoveColumn deletes a column of t from the registry and returns it.
// Physical storage is left to the synchronizer.
func (s *Store) RemoveColumn(ctx context.Context, t *Table, ref ColumnRef) (*Column, error) {
	c, err := s.resolveColumn(ctx, t, ref)
	if err != nil {
		return nil, err
	}
	if err := s.Touch(ctx, t); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE "id" = %s`, s.qi(ColumnsTable), s.ph(1))
	if _, err := s.q.ExecContext(ctx, query, c.ID); err != nil {
		return nil, alerr.WrapSQLWithColumn(err, "remove column", t.Name, c.Name).WithSQL(query)
	}
	return c, nil
}

func (s *Store) resolveColumn(ctx context.Context, t *Table, ref ColumnRef) (*Column, error) {
	var (
		c   *Column
		err error
	)
	switch r := ref.(type) {
	case *Column:
		if r == nil {
			break
		}
		c, err = s.Column(ctx, r.ID)
	case int64:
		c, err = s.Column(ctx, r)
	case int:
		c, err = s.Column(ctx, int64(r))
	case string:
		c, err = s.ColumnByName(ctx, t.ID, r)
	}
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, alerr.New(alerr.EInternalError, "column reference must be a *Column, an id or a name").
			WithTable(t.Name).
			With("ref", fmt.Sprintf("%T", ref))
	}
	if c.TableID != t.ID {
		return nil, alerr.New(alerr.ErrNotFound, "column does not belong to table").
			WithTable(t.Name).
			WithColumn(c.Name)
	}
	return c, nil
}

// checkColumn validates the name, settings and relation target of c.
func (s *Store) checkColumn(ctx context.Context, t *Table, c *Column) error {
	fe := alerr.FieldErrors{}
	switch n := utf8.RuneCountInString(c.Name); {
	case n == 0:
		fe.Add("name", "This field is required")
	case n > MaxNameLength:
		fe.Add("name", fmt.Sprintf("Ensure this value has at most %d characters", MaxNameLength))
	}
	if _, err := coltype.New(c.DType, c.Name, c.Slug, c.Settings); err != nil {
		fe.AddError("settings", err)
	}
	if c.DType == coltype.Relation {
		target, ok := c.TargetTableID()
		if !ok {
			fe.Add(coltype.KeyTargetTableID, "This field is required")
		} else if _, err := s.Table(ctx, target); err != nil {
			if !alerr.Is(err, alerr.ErrNotFound) {
				return err
			}
			fe.Add(coltype.KeyTargetTableID, "Select a valid table")
		}
	}
	if err := fieldErr(fe, t, c); err != nil {
		return err
	}

	existing, err := s.ColumnByName(ctx, t.ID, c.Name)
	switch {
	case err == nil && existing.ID != c.ID:
		return alerr.New(alerr.ErrDuplicate, "a column with this name already exists").
			WithTable(t.Name).
			WithColumn(c.Name)
	case err != nil && !alerr.Is(err, alerr.ErrNotFound):
		return err
	}
	return nil
}

// fieldErr converts fe into an ErrValidation error with table and column
// context, or nil.
func fieldErr(fe alerr.FieldErrors, t *Table, c *Column) error {
	err := fe.Err("invalid column")
	var e *alerr.Error
	if !errors.As(err, &e) {
		return err
	}
	return e.WithTable(t.Name).WithColumn(c.Name)
}

func marshalSettings(c *Column) (string, error) {
	if c.Settings == nil {
		return "{}", nil
	}
	b, err := json.Marshal(c.Settings)
	if err != nil {
		return "", alerr.Wrap(alerr.ErrInvalidSettings, err, "column settings are not serializable").
			WithColumn(c.Name)
	}
	return string(b), nil
}

// Column returns the column with the given id.
func (s *Store) Column(ctx context.Context, id int64) (*Column, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE "id" = %s`, columnColumns, s.qi(ColumnsTable), s.ph(1))
	return s.oneColumn(ctx, query, id)
}

// ColumnByName returns the column of a table with the given name.
func (s *Store) ColumnByName(ctx context.Context, tableID int64, name string) (*Column, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE "table_id" = %s AND "name" = %s`,
		columnColumns, s.qi(ColumnsTable), s.ph(1), s.ph(2))
	return s.oneColumn(ctx, query, tableID, normalizeName(name))
}

// ColumnBySlug returns the column with the given slug.
func (s *Store) ColumnBySlug(ctx context.Context, slug string) (*Column, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE "slug" = %s`, columnColumns, s.qi(ColumnsTable), s.ph(1))
	return s.oneColumn(ctx, query, slug)
}

func (s *Store) oneColumn(ctx context.Context, query string, args ...any) (*Column, error) {
	c, err := scanColumn(s.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, alerr.New(alerr.ErrNotFound, "column not found").With("lookup", args[len(args)-1])
	}
	if err != nil {
		return nil, alerr.WrapSQL(err, "load column", "").WithSQL(query)
	}
	return c, nil
}

// Columns returns the columns of a table in position order.
func (s *Store) Columns(ctx context.Context, tableID int64) ([]*Column, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE "table_id" = %s ORDER BY "position", "id"`,
		columnColumns, s.qi(ColumnsTable), s.ph(1))
	return s.columns(ctx, query, tableID)
}

func (s *Store) allColumns(ctx context.Context) ([]*Column, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY "table_id", "position", "id"`,
		columnColumns, s.qi(ColumnsTable))
	return s.columns(ctx, query)
}

func (s *Store) columns(ctx context.Context, query string, args ...any) ([]*Column, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, alerr.WrapSQL(err, "list columns", "").WithSQL(query)
	}
	defer rows.Close()

	var out []*Column
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, alerr.Wrap(alerr.ErrSQLExecution, err, "failed to scan column row")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, alerr.Wrap(alerr.ErrSQLExecution, err, "error iterating column rows")
	}
	return out, nil
}

func scanColumn(r rowScanner) (*Column, error) {
	var (
		c        Column
		dtype    int
		settings string
	)
	err := r.Scan(&c.ID, &c.TableID, &c.Name, &c.Slug, &dtype, &settings,
		&c.IsFilterable, &c.IsDisplayable, &c.Position)
	if err != nil {
		return nil, err
	}
	c.DType = coltype.DType(dtype)
	c.Settings = coltype.Settings{}
	if settings != "" {
		if err := json.Unmarshal([]byte(settings), &c.Settings); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// SameSettings reports whether two settings maps hold equal values after a
// JSON round trip.
func SameSettings(a, b coltype.Settings) bool {
	norm := func(s coltype.Settings) any {
		raw, _ := json.Marshal(s)
		var out any
		_ = json.Unmarshal(raw, &out)
		return out
	}
	return reflect.DeepEqual(norm(a), norm(b))
}
