// Package sqlgen builds parameterized DML for the physical tables: inserts,
// updates, deletes and selects with predicate trees, rendered for a dialect.
package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/dialect"
)

// Builder provides fluent SQL construction with dialect awareness.
// Bound arguments accumulate in order; a Builder renders one statement.
type Builder struct {
	dialect dialect.Dialect
	buf     strings.Builder
	args    []any
}

// New creates a new Builder for the specified dialect.
func New(d dialect.Dialect) *Builder {
	return &Builder{dialect: d}
}

// Dialect returns the dialect of this builder.
func (b *Builder) Dialect() dialect.Dialect {
	return b.dialect
}

// Args returns the bound arguments in placeholder order.
func (b *Builder) Args() []any {
	return b.args
}

// String returns the accumulated SQL string.
func (b *Builder) String() string {
	return b.buf.String()
}

// Reset clears the buffer and arguments so the builder can be reused.
func (b *Builder) Reset() *Builder {
	b.buf.Reset()
	b.args = nil
	return b
}

// Raw appends raw SQL to the buffer without any modification.
func (b *Builder) Raw(sql string) *Builder {
	b.buf.WriteString(sql)
	return b
}

// Ident appends a quoted identifier.
func (b *Builder) Ident(name string) *Builder {
	b.buf.WriteString(b.dialect.QuoteIdent(name))
	return b
}

// Idents appends a comma-separated list of quoted identifiers.
func (b *Builder) Idents(names ...string) *Builder {
	for i, n := range names {
		if i > 0 {
			b.buf.WriteString(", ")
		}
		b.Ident(n)
	}
	return b
}

// Bind appends a placeholder for v.
func (b *Builder) Bind(v any) *Builder {
	b.buf.WriteString(b.bind(v))
	return b
}

func (b *Builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args))
}

// Where appends " WHERE <expr>" unless the expression is always true.
func (b *Builder) Where(e Expr) error {
	if e == nil {
		return nil
	}
	if _, ok := e.(True); ok {
		return nil
	}
	sql, err := b.CompileExpr(e)
	if err != nil {
		return err
	}
	b.buf.WriteString(" WHERE ")
	b.buf.WriteString(sql)
	return nil
}

// ----------------------------------------------------------------------------
// Predicates
// ----------------------------------------------------------------------------

// CompileExpr renders a predicate and binds its values.
func (b *Builder) CompileExpr(e Expr) (string, error) {
	switch v := e.(type) {
	case nil, True:
		return "1=1", nil
	case And:
		return b.compileJoined(v.Items, " AND ", "1=1")
	case Or:
		return b.compileJoined(v.Items, " OR ", "1=0")
	case IsNull:
		return b.dialect.QuoteIdent(v.Column) + " IS NULL", nil
	case Cmp:
		return b.compileCmp(v)
	default:
		return "", alerr.New(alerr.EInternalError, fmt.Sprintf("unsupported expression %T", e))
	}
}

func (b *Builder) compileJoined(items []Expr, sep, empty string) (string, error) {
	if len(items) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		sql, err := b.CompileExpr(item)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+sql+")")
	}
	return strings.Join(parts, sep), nil
}

func (b *Builder) compileCmp(c Cmp) (string, error) {
	col := b.dialect.QuoteIdent(c.Column)
	switch c.Op {
	case OpEq:
		if c.Value == nil {
			return col + " IS NULL", nil
		}
		return col + " = " + b.bind(c.Value), nil
	case OpNe:
		if c.Value == nil {
			return col + " IS NOT NULL", nil
		}
		return col + " <> " + b.bind(c.Value), nil
	case OpGte:
		return col + " >= " + b.bind(c.Value), nil
	case OpLte:
		return col + " <= " + b.bind(c.Value), nil
	case OpContains:
		pattern := "%" + EscapeLike(fmt.Sprint(c.Value)) + "%"
		return col + " " + b.dialect.ILike() + " " + b.bind(pattern) + ` ESCAPE '\'`, nil
	case OpStartsWith:
		pattern := EscapeLike(fmt.Sprint(c.Value)) + "%"
		return col + " " + b.dialect.ILike() + " " + b.bind(pattern) + ` ESCAPE '\'`, nil
	case OpIn:
		vals, ok := c.Value.([]any)
		if !ok {
			return "", alerr.New(alerr.EInternalError, "IN expects a []any value").WithColumn(c.Column)
		}
		if len(vals) == 0 {
			return "1=0", nil
		}
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = b.bind(v)
		}
		return col + " IN (" + strings.Join(parts, ", ") + ")", nil
	default:
		return "", alerr.New(alerr.EInternalError, "unsupported compare operator").
			WithColumn(c.Column).
			With("operator", string(c.Op))
	}
}

// EscapeLike escapes LIKE wildcards using backslash as the escape character.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ----------------------------------------------------------------------------
// Statements
// ----------------------------------------------------------------------------

// Insert renders INSERT ... RETURNING "id". With no columns it inserts a row
// of defaults.
func Insert(d dialect.Dialect, table string, cols []string, vals []any) (string, []any) {
	b := New(d)
	b.Raw("INSERT INTO ").Ident(table)
	if len(cols) == 0 {
		b.Raw(" DEFAULT VALUES")
	} else {
		b.Raw(" (").Idents(cols...).Raw(") VALUES (")
		for i, v := range vals {
			if i > 0 {
				b.Raw(", ")
			}
			b.Bind(v)
		}
		b.Raw(")")
	}
	b.Raw(" RETURNING ").Ident("id")
	return b.String(), b.Args()
}

// Update renders UPDATE ... SET ... WHERE.
func Update(d dialect.Dialect, table string, cols []string, vals []any, where Expr) (string, []any, error) {
	if len(cols) == 0 {
		return "", nil, alerr.New(alerr.EInternalError, "update requires at least one column").WithTable(table)
	}
	b := New(d)
	b.Raw("UPDATE ").Ident(table).Raw(" SET ")
	for i, c := range cols {
		if i > 0 {
			b.Raw(", ")
		}
		b.Ident(c).Raw(" = ").Bind(vals[i])
	}
	if err := b.Where(where); err != nil {
		return "", nil, err
	}
	return b.String(), b.Args(), nil
}

// Delete renders DELETE FROM ... WHERE.
func Delete(d dialect.Dialect, table string, where Expr) (string, []any, error) {
	b := New(d)
	b.Raw("DELETE FROM ").Ident(table)
	if err := b.Where(where); err != nil {
		return "", nil, err
	}
	return b.String(), b.Args(), nil
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// ParseOrder reads "col" or "-col" into an Order.
func ParseOrder(s string) Order {
	if rest, ok := strings.CutPrefix(s, "-"); ok {
		return Order{Column: rest, Desc: true}
	}
	return Order{Column: s}
}

// Select describes a single-table SELECT.
type Select struct {
	Table   string
	Columns []string // empty selects *
	Where   Expr
	OrderBy []Order
	Limit   int // 0 means unlimited
	Offset  int
}

// Build renders the SELECT statement.
func (s Select) Build(d dialect.Dialect) (string, []any, error) {
	b := New(d)
	b.Raw("SELECT ")
	if len(s.Columns) == 0 {
		b.Raw("*")
	} else {
		b.Idents(s.Columns...)
	}
	b.Raw(" FROM ").Ident(s.Table)
	if err := b.Where(s.Where); err != nil {
		return "", nil, err
	}
	if len(s.OrderBy) > 0 {
		b.Raw(" ORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				b.Raw(", ")
			}
			b.Ident(o.Column)
			if o.Desc {
				b.Raw(" DESC")
			}
		}
	}
	if s.Limit > 0 {
		b.Raw(" LIMIT " + strconv.Itoa(s.Limit))
	}
	if s.Offset > 0 {
		b.Raw(" OFFSET " + strconv.Itoa(s.Offset))
	}
	return b.String(), b.Args(), nil
}

// Count renders SELECT COUNT(*) with the select's predicate.
func (s Select) Count(d dialect.Dialect) (string, []any, error) {
	b := New(d)
	b.Raw("SELECT COUNT(*) FROM ").Ident(s.Table)
	if err := b.Where(s.Where); err != nil {
		return "", nil, err
	}
	return b.String(), b.Args(), nil
}
