package ast

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Zhukowych/tablepp/internal/alerr"
)

// Validation messages shared across TableDef, ColumnDef, IndexDef and their
// corresponding Operation types (operation.go).
const (
	msgTableNameRequired  = "table name is required"
	msgColumnNameRequired = "column name is required"
	msgTableNeedsColumn   = "table must have at least one column"
	msgIndexNeedsColumn   = "index must have at least one column"
)

// validIdentifierPattern matches safe SQL identifiers (lowercase snake_case).
var validIdentifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateIdentifier checks that a name is a safe SQL identifier (lowercase snake_case).
func ValidateIdentifier(name string) error {
	if !validIdentifierPattern.MatchString(name) {
		return alerr.New(alerr.ErrValidation,
			fmt.Sprintf("invalid identifier %q; must match [a-z_][a-z0-9_]*", name))
	}
	return nil
}

// ValidFKActions is the set of valid ON DELETE actions.
var ValidFKActions = map[string]bool{
	"":            true, // empty = no action specified (valid)
	"CASCADE":     true,
	"SET NULL":    true,
	"SET DEFAULT": true,
	"RESTRICT":    true,
	"NO ACTION":   true,
}

// NormalizeFKAction normalizes and validates an FK action string.
// Returns the uppercased action or error if invalid.
func NormalizeFKAction(action string) (string, error) {
	upper := strings.ToUpper(strings.TrimSpace(action))
	if !ValidFKActions[upper] {
		return "", alerr.New(alerr.ErrValidation,
			fmt.Sprintf("invalid foreign key action %q; must be one of: CASCADE, SET NULL, SET DEFAULT, RESTRICT, NO ACTION", action))
	}
	return upper, nil
}

// -----------------------------------------------------------------------------
// TableDef - complete table definition
// -----------------------------------------------------------------------------

// TableDef represents a physical table: its columns in order and its indexes.
type TableDef struct {
	Name    string       // Physical table name (a table slug)
	Columns []*ColumnDef // Column definitions in order
	Indexes []*IndexDef  // Index definitions

	// Keep names physical columns that are not described but must not be
	// dropped, such as columns whose registry definition is broken.
	Keep []string

	Docs string // Human label, kept for diagnostics only
}

// Keeps reports whether the physical column name is listed in Keep.
func (t *TableDef) Keeps(name string) bool {
	return slices.Contains(t.Keep, name)
}

// GetColumn returns the column with the given name, or nil if not found.
func (t *TableDef) GetColumn(name string) *ColumnDef {
	for _, col := range t.Columns {
		if col.Name == name {
			return col
		}
	}
	return nil
}

// HasColumn returns true if the table has a column with the given name.
func (t *TableDef) HasColumn(name string) bool {
	return t.GetColumn(name) != nil
}

// GetIndex returns the index with the given name, or nil if not found.
func (t *TableDef) GetIndex(name string) *IndexDef {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx
		}
	}
	return nil
}

// PrimaryKey returns the primary key column, or nil if none.
func (t *TableDef) PrimaryKey() *ColumnDef {
	for _, col := range t.Columns {
		if col.PrimaryKey {
			return col
		}
	}
	return nil
}

// References returns the distinct tables referenced by this table's columns,
// sorted. Self references are included.
func (t *TableDef) References() []string {
	var refs []string
	for _, col := range t.Columns {
		if col.Reference != nil && !slices.Contains(refs, col.Reference.Table) {
			refs = append(refs, col.Reference.Table)
		}
	}
	slices.Sort(refs)
	return refs
}

// Without returns a copy of the table lacking the named column and every
// index that covers it.
func (t *TableDef) Without(column string) *TableDef {
	out := &TableDef{Name: t.Name, Docs: t.Docs}
	for _, col := range t.Columns {
		if col.Name != column {
			out.Columns = append(out.Columns, col)
		}
	}
	for _, idx := range t.Indexes {
		if !slices.Contains(idx.Columns, column) {
			out.Indexes = append(out.Indexes, idx)
		}
	}
	return out
}

// checkDuplicateColumns returns an error if any column name appears more than once.
func (t *TableDef) checkDuplicateColumns() error {
	seen := make(map[string]bool)
	for _, col := range t.Columns {
		if seen[col.Name] {
			return alerr.New(alerr.ErrDuplicate, "duplicate column name").
				WithTable(t.Name).
				WithColumn(col.Name)
		}
		seen[col.Name] = true
	}
	return nil
}

// Validate checks that the table definition is well-formed.
func (t *TableDef) Validate() error {
	if t.Name == "" {
		return alerr.New(alerr.ErrValidation, msgTableNameRequired)
	}
	if err := ValidateIdentifier(t.Name); err != nil {
		return err
	}
	if len(t.Columns) == 0 {
		return alerr.New(alerr.ErrValidation, msgTableNeedsColumn).
			WithTable(t.Name)
	}
	if err := t.checkDuplicateColumns(); err != nil {
		return err
	}
	for _, col := range t.Columns {
		if err := col.Validate(); err != nil {
			return alerr.Wrap(alerr.ErrValidation, err, "invalid column").
				WithTable(t.Name).
				WithColumn(col.Name)
		}
	}
	for _, idx := range t.Indexes {
		if err := idx.Validate(); err != nil {
			return alerr.Wrap(alerr.ErrValidation, err, "invalid index").
				WithTable(t.Name)
		}
		for _, c := range idx.Columns {
			if !t.HasColumn(c) {
				return alerr.New(alerr.ErrValidation, "index references unknown column").
					WithTable(t.Name).
					WithColumn(c)
			}
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// ColumnDef - complete column definition
// -----------------------------------------------------------------------------

// ColumnDef represents a physical column: type, nullability and an optional
// foreign key reference.
type ColumnDef struct {
	Name     string // Column name (a column slug, or "id")
	Type     string // Physical type (TypeID, TypeString, ...)
	TypeArgs []any  // Type arguments (length for TypeString)

	Nullable   bool // True if column allows NULL
	PrimaryKey bool // PRIMARY KEY constraint

	Reference *Reference // Foreign key reference

	Docs string // Human label, kept for diagnostics only
}

// Validate checks that the column definition is well-formed.
func (c *ColumnDef) Validate() error {
	if c.Name == "" {
		return alerr.New(alerr.ErrValidation, msgColumnNameRequired)
	}
	if err := ValidateIdentifier(c.Name); err != nil {
		return err
	}
	switch c.Type {
	case TypeID, TypeString, TypeText, TypeInteger, TypeFloat:
	case "":
		return alerr.New(alerr.ErrValidation, "column type is required").
			WithColumn(c.Name)
	default:
		return alerr.New(alerr.ErrUnknownType, "unknown physical column type").
			WithColumn(c.Name).
			With("type", c.Type)
	}
	if c.Type == TypeString && c.Length() <= 0 {
		return alerr.New(alerr.ErrValidation, "string column requires a positive length").
			WithColumn(c.Name)
	}
	if c.Reference != nil {
		if err := c.Reference.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Length returns the declared length of a string column, or 0.
func (c *ColumnDef) Length() int {
	if len(c.TypeArgs) == 0 {
		return 0
	}
	switch v := c.TypeArgs[0].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Equal reports whether two columns describe the same physical shape.
func (c *ColumnDef) Equal(o *ColumnDef) bool {
	if c.Name != o.Name || c.Type != o.Type || c.Nullable != o.Nullable || c.PrimaryKey != o.PrimaryKey {
		return false
	}
	if c.Type == TypeString && c.Length() != o.Length() {
		return false
	}
	if (c.Reference == nil) != (o.Reference == nil) {
		return false
	}
	if c.Reference != nil {
		return c.Reference.Table == o.Reference.Table &&
			c.Reference.TargetColumn() == o.Reference.TargetColumn()
	}
	return true
}

// -----------------------------------------------------------------------------
// IndexDef - index definition
// -----------------------------------------------------------------------------

// IndexDef represents an index definition.
type IndexDef struct {
	Name    string   // Index name
	Columns []string // Columns to index (in order)
	Unique  bool     // UNIQUE index
}

// Validate checks that the index definition is well-formed.
func (i *IndexDef) Validate() error {
	if len(i.Columns) == 0 {
		return alerr.New(alerr.ErrValidation, msgIndexNeedsColumn)
	}
	if i.Name != "" {
		if err := ValidateIdentifier(i.Name); err != nil {
			return err
		}
	}
	for _, col := range i.Columns {
		if err := ValidateIdentifier(col); err != nil {
			return err
		}
	}
	return nil
}

// Key returns a stable description of the index shape, ignoring its name.
func (i *IndexDef) Key() string {
	prefix := "idx:"
	if i.Unique {
		prefix = "uniq:"
	}
	return prefix + strings.Join(i.Columns, ",")
}

// -----------------------------------------------------------------------------
// Reference - column reference
// -----------------------------------------------------------------------------

// Reference represents a foreign key reference from a column.
type Reference struct {
	Table    string // Referenced table
	Column   string // Referenced column (default: "id")
	OnDelete string // CASCADE, SET NULL, RESTRICT, NO ACTION
}

// TargetColumn returns the referenced column, defaulting to "id".
func (r *Reference) TargetColumn() string {
	if r.Column != "" {
		return r.Column
	}
	return "id"
}

// Validate checks that the reference is well-formed.
func (r *Reference) Validate() error {
	if r.Table == "" {
		return alerr.New(alerr.ErrValidation, "reference must specify a table")
	}
	if err := ValidateIdentifier(r.Table); err != nil {
		return err
	}
	if _, err := NormalizeFKAction(r.OnDelete); err != nil {
		return err
	}
	return nil
}
