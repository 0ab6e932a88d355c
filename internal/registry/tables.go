package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Zhukowych/tablepp/internal/alerr"
)

const tableColumns = `"id", "name", "slug", "description", "options", "revision", "created_at"`

// CreateTable registers a new table with a fresh slug.
func (s *Store) CreateTable(ctx context.Context, name, description string, options Options) (*Table, error) {
	t := &Table{
		Name:        normalizeName(name),
		Slug:        NewSlug(TablePrefix),
		Description: description,
		Options:     options,
		Revision:    1,
		CreatedAt:   s.now().UTC(),
	}
	if t.Options == nil {
		t.Options = Options{}
	}
	if err := s.checkTable(ctx, t); err != nil {
		return nil, err
	}

	opts, err := json.Marshal(t.Options)
	if err != nil {
		return nil, alerr.Wrap(alerr.ErrValidation, err, "table options are not serializable").
			WithTable(t.Name)
	}

	query := fmt.Sprintf(
		`INSERT INTO %s ("name", "slug", "description", "options", "revision", "created_at") VALUES (%s, %s, %s, %s, %s, %s) RETURNING "id"`,
		s.qi(TablesTable), s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6),
	)
	err = s.q.QueryRowContext(ctx, query,
		t.Name, t.Slug, t.Description, string(opts), t.Revision, t.CreatedAt.UnixMilli(),
	).Scan(&t.ID)
	if err != nil {
		return nil, alerr.WrapSQL(err, "create table", t.Name).WithSQL(query)
	}
	return t, nil
}

// UpdateTable stores the name, description and options of t. The slug is
// never changed. t.Revision must match the stored revision; on success it is
// advanced.
func (s *Store) UpdateTable(ctx context.Context, t *Table) error {
	t.Name = normalizeName(t.Name)
	if t.Options == nil {
		t.Options = Options{}
	}
	if err := s.checkTable(ctx, t); err != nil {
		return err
	}
	opts, err := json.Marshal(t.Options)
	if err != nil {
		return alerr.Wrap(alerr.ErrValidation, err, "table options are not serializable").
			WithTable(t.Name)
	}

	query := fmt.Sprintf(
		`UPDATE %s SET "name" = %s, "description" = %s, "options" = %s, "revision" = "revision" + 1 WHERE "id" = %s AND "revision" = %s`,
		s.qi(TablesTable), s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5),
	)
	res, err := s.q.ExecContext(ctx, query, t.Name, t.Description, string(opts), t.ID, t.Revision)
	if err != nil {
		return alerr.WrapSQL(err, "update table", t.Name).WithSQL(query)
	}
	if err := s.checkRevision(ctx, t, res); err != nil {
		return err
	}
	t.Revision++
	return nil
}

// Touch advances the revision of t, failing with ErrConflict when t is stale.
// Column mutations call it so concurrent edits of one table are detected.
func (s *Store) Touch(ctx context.Context, t *Table) error {
	query := fmt.Sprintf(
		`UPDATE %s SET "revision" = "revision" + 1 WHERE "id" = %s AND "revision" = %s`,
		s.qi(TablesTable), s.ph(1), s.ph(2),
	)
	res, err := s.q.ExecContext(ctx, query, t.ID, t.Revision)
	if err != nil {
		return alerr.WrapSQL(err, "touch table", t.Name).WithSQL(query)
	}
	if err := s.checkRevision(ctx, t, res); err != nil {
		return err
	}
	t.Revision++
	return nil
}

func (s *Store) checkRevision(ctx context.Context, t *Table, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return alerr.Wrap(alerr.ErrSQLExecution, err, "failed to get rows affected")
	}
	if n > 0 {
		return nil
	}
	current, err := s.Table(ctx, t.ID)
	if err != nil {
		return err
	}
	return alerr.New(alerr.ErrConflict, "table was modified concurrently").
		WithTable(t.Name).
		With("revision", t.Revision).
		With("current_revision", current.Revision).
		WithHelp("reload the table and retry")
}

// checkTable validates name and description and that the name is free.
func (s *Store) checkTable(ctx context.Context, t *Table) error {
	fe := alerr.FieldErrors{}
	switch n := utf8.RuneCountInString(t.Name); {
	case n == 0:
		fe.Add("name", "This field is required")
	case n > MaxNameLength:
		fe.Add("name", fmt.Sprintf("Ensure this value has at most %d characters", MaxNameLength))
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLength {
		fe.Add("description", fmt.Sprintf("Ensure this value has at most %d characters", MaxDescriptionLength))
	}
	if err := fe.Err("invalid table"); err != nil {
		return err
	}

	existing, err := s.TableByName(ctx, t.Name)
	switch {
	case err == nil && existing.ID != t.ID:
		return alerr.New(alerr.ErrDuplicate, "a table with this name already exists").
			WithTable(t.Name)
	case err != nil && !alerr.Is(err, alerr.ErrNotFound):
		return err
	}
	return nil
}

// DeleteTable removes the metadata of t and all of its columns. It does not
// check dependents or touch physical storage; see DependentTables.
func (s *Store) DeleteTable(ctx context.Context, t *Table) error {
	for _, stmt := range []string{
		fmt.Sprintf(`DELETE FROM %s WHERE "table_id" = %s`, s.qi(ColumnsTable), s.ph(1)),
		fmt.Sprintf(`DELETE FROM %s WHERE "id" = %s`, s.qi(TablesTable), s.ph(1)),
	} {
		if _, err := s.q.ExecContext(ctx, stmt, t.ID); err != nil {
			return alerr.WrapSQL(err, "delete table", t.Name).WithSQL(stmt)
		}
	}
	return nil
}

// Table returns the table with the given id.
func (s *Store) Table(ctx context.Context, id int64) (*Table, error) {
	return s.tableWhere(ctx, `"id"`, id)
}

// TableBySlug returns the table with the given slug.
func (s *Store) TableBySlug(ctx context.Context, slug string) (*Table, error) {
	return s.tableWhere(ctx, `"slug"`, slug)
}

// TableByName returns the table with the given name.
func (s *Store) TableByName(ctx context.Context, name string) (*Table, error) {
	return s.tableWhere(ctx, `"name"`, normalizeName(name))
}

func (s *Store) tableWhere(ctx context.Context, col string, arg any) (*Table, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = %s`,
		tableColumns, s.qi(TablesTable), col, s.ph(1))
	t, err := scanTable(s.q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, alerr.New(alerr.ErrNotFound, "table not found").With("lookup", arg)
	}
	if err != nil {
		return nil, alerr.WrapSQL(err, "load table", "").WithSQL(query)
	}
	return t, nil
}

// Tables returns every table ordered by id.
func (s *Store) Tables(ctx context.Context) ([]*Table, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY "id"`, tableColumns, s.qi(TablesTable))
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, alerr.WrapSQL(err, "list tables", "").WithSQL(query)
	}
	defer rows.Close()

	var out []*Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, alerr.Wrap(alerr.ErrSQLExecution, err, "failed to scan table row")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, alerr.Wrap(alerr.ErrSQLExecution, err, "error iterating table rows")
	}
	return out, nil
}

// DependentTables returns every table with a RELATION column targeting t,
// ordered by id. A table referencing itself is not its own dependent.
func (s *Store) DependentTables(ctx context.Context, t *Table) ([]*Table, error) {
	cols, err := s.allColumns(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool)
	var out []*Table
	for _, c := range cols {
		target, ok := c.TargetTableID()
		if !ok || target != t.ID || c.TableID == t.ID || seen[c.TableID] {
			continue
		}
		seen[c.TableID] = true
		dep, err := s.Table(ctx, c.TableID)
		if err != nil {
			return nil, err
		}
		out = append(out, dep)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTable(r rowScanner) (*Table, error) {
	var (
		t         Table
		opts      string
		createdAt int64
	)
	if err := r.Scan(&t.ID, &t.Name, &t.Slug, &t.Description, &opts, &t.Revision, &createdAt); err != nil {
		return nil, err
	}
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	t.Options = Options{}
	if opts != "" {
		if err := json.Unmarshal([]byte(opts), &t.Options); err != nil {
			return nil, err
		}
	}
	return &t, nil
}
