// Package registry is the Schema Registry: the durable store of Table and
// Column metadata and the only source of truth for the logical schema.
//
// Metadata lives in SQL tables next to the physical tables so that a registry
// mutation and the synchronizer run that follows it share one transaction.
package registry

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"time"

	"github.com/Zhukowych/tablepp/internal/coltype"
	"github.com/Zhukowych/tablepp/internal/dialect"
)

// Metadata table names.
const (
	TablesTable  = "tablepp_tables"
	ColumnsTable = "tablepp_columns"
)

// Name limits.
const (
	MaxNameLength        = 64
	MaxDescriptionLength = 256
)

// Queryer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Table is a user-defined logical table.
type Table struct {
	ID          int64
	Name        string
	Slug        string
	Description string
	Options     Options
	Revision    int64
	CreatedAt   time.Time
}

func (t *Table) String() string {
	return "Table(name=" + t.Name + ")"
}

// Options holds physical-storage directives of a table.
//
// Known keys:
//
//	unique_together: [[colSlug, ...], ...]
//	ordering:        [colSlug | -colSlug, ...]
type Options map[string]any

// UniqueTogether returns the unique column groups. Malformed entries are
// skipped.
func (o Options) UniqueTogether() [][]string {
	raw, ok := o["unique_together"].([]any)
	if !ok {
		if typed, ok := o["unique_together"].([][]string); ok {
			return typed
		}
		return nil
	}
	var out [][]string
	for _, group := range raw {
		cols, ok := stringList(group)
		if ok && len(cols) > 0 {
			out = append(out, cols)
		}
	}
	return out
}

// Ordering returns the default list order ("col" or "-col").
func (o Options) Ordering() []string {
	cols, _ := stringList(o["ordering"])
	return cols
}

func stringList(v any) ([]string, bool) {
	switch l := v.(type) {
	case []string:
		return l, true
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// Column is a typed field of a Table.
type Column struct {
	ID            int64
	TableID       int64
	Name          string
	Slug          string
	DType         coltype.DType
	Settings      coltype.Settings
	IsFilterable  bool
	IsDisplayable bool
	Position      int
}

func (c *Column) String() string {
	return "Column(name=" + c.Name + ", dtype=" + c.DType.String() + ")"
}

// Handler returns the type handler of the column.
func (c *Column) Handler() (coltype.Handler, error) {
	return coltype.New(c.DType, c.Name, c.Slug, c.Settings)
}

// TargetTableID returns the relation target for RELATION columns.
func (c *Column) TargetTableID() (int64, bool) {
	if c.DType != coltype.Relation {
		return 0, false
	}
	id, ok := c.Settings.Int(coltype.KeyTargetTableID)
	return id, ok && id > 0
}

// SearchableColumn returns the first TEXT column, else the first column.
func SearchableColumn(cols []*Column) *Column {
	if i := slices.IndexFunc(cols, func(c *Column) bool { return c.DType == coltype.Text }); i >= 0 {
		return cols[i]
	}
	if len(cols) > 0 {
		return cols[0]
	}
	return nil
}

// ColumnInput describes a column to add.
type ColumnInput struct {
	Name     string
	DType    string // required; name or numeric code
	Settings coltype.Settings

	// Nil means true.
	IsFilterable  *bool
	IsDisplayable *bool
}

// ColumnRef identifies a column of a table for removal: a *Column, a column
// id (int64) or a column name (string).
type ColumnRef any

// Store is the SQL-backed registry.
type Store struct {
	q       Queryer
	dialect dialect.Dialect
	now     func() time.Time
}

// New creates a Store over q.
func New(q Queryer, d dialect.Dialect) *Store {
	return &Store{q: q, dialect: d, now: time.Now}
}

// WithQueryer returns a copy of the store bound to q, typically a *sql.Tx.
func (s *Store) WithQueryer(q Queryer) *Store {
	c := *s
	c.q = q
	return &c
}

// Dialect returns the store's dialect.
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

// Resolver returns a coltype.Resolver backed by this store.
func (s *Store) Resolver() coltype.Resolver {
	return coltype.ResolverFunc(func(ctx context.Context, id int64) (string, error) {
		t, err := s.Table(ctx, id)
		if err != nil {
			return "", err
		}
		return t.Slug, nil
	})
}

func (s *Store) ph(n int) string {
	return s.dialect.Placeholder(n)
}

func (s *Store) qi(name string) string {
	return s.dialect.QuoteIdent(name)
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
