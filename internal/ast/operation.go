package ast

import (
	"github.com/Zhukowych/tablepp/internal/alerr"
)

// Operation represents a single atomic change to the physical schema.
// The synchronizer computes Operations from a diff and hands them to a
// dialect for rendering.
type Operation interface {
	// Type returns the operation type (OpCreateTable, OpAddColumn, etc.)
	Type() OpType

	// Table returns the physical table name the operation targets.
	Table() string

	// Validate checks that the operation is well-formed.
	// Returns an error if the operation has invalid or missing fields.
	Validate() error
}

// -----------------------------------------------------------------------------
// Embedded types for DRY operation definitions
// -----------------------------------------------------------------------------

// TableOp provides the Name field for table-level operations.
type TableOp struct {
	Name string
}

// Table returns the table name.
func (t TableOp) Table() string { return t.Name }

// TableRef provides the Table_ field for column and index operations.
type TableRef struct {
	Table_ string
}

// Table returns the table name.
func (t TableRef) Table() string { return t.Table_ }

// -----------------------------------------------------------------------------
// CreateTable - creates a new table
// -----------------------------------------------------------------------------

// CreateTable represents creating a new table with columns and indexes.
type CreateTable struct {
	TableOp
	Columns     []*ColumnDef
	Indexes     []*IndexDef
	IfNotExists bool // If true, generates CREATE TABLE IF NOT EXISTS
}

func (op *CreateTable) Type() OpType { return OpCreateTable }

func (op *CreateTable) Validate() error {
	def := &TableDef{Name: op.Name, Columns: op.Columns, Indexes: op.Indexes}
	return def.Validate()
}

// -----------------------------------------------------------------------------
// DropTable - removes an existing table
// -----------------------------------------------------------------------------

// DropTable represents dropping an existing table.
type DropTable struct {
	TableOp
	IfExists bool
}

func (op *DropTable) Type() OpType { return OpDropTable }

func (op *DropTable) Validate() error {
	if op.Name == "" {
		return alerr.New(alerr.ErrValidation, "table name is required for drop")
	}
	return nil
}

// -----------------------------------------------------------------------------
// AddColumn - adds a column to an existing table
// -----------------------------------------------------------------------------

// AddColumn represents adding a new column to an existing table.
type AddColumn struct {
	TableRef
	Column *ColumnDef
}

func (op *AddColumn) Type() OpType { return OpAddColumn }

func (op *AddColumn) Validate() error {
	if op.Table_ == "" {
		return alerr.New(alerr.ErrValidation, "table name is required for add column")
	}
	if op.Column == nil {
		return alerr.New(alerr.ErrValidation, "column definition is required").
			WithTable(op.Table_)
	}
	if err := op.Column.Validate(); err != nil {
		return alerr.Wrap(alerr.ErrValidation, err, "invalid column").
			WithTable(op.Table_).
			WithColumn(op.Column.Name)
	}
	if !op.Column.Nullable {
		return alerr.New(alerr.ErrValidation, "added columns must be nullable").
			WithTable(op.Table_).
			WithColumn(op.Column.Name)
	}
	return nil
}

// -----------------------------------------------------------------------------
// DropColumn - removes a column from an existing table
// -----------------------------------------------------------------------------

// DropColumn represents removing a column from an existing table.
type DropColumn struct {
	TableRef
	Name string

	// Current is the live table shape before the drop. Dialects that cannot
	// drop a referencing column in place rebuild the table from it.
	Current *TableDef
}

func (op *DropColumn) Type() OpType { return OpDropColumn }

func (op *DropColumn) Validate() error {
	if op.Table_ == "" {
		return alerr.New(alerr.ErrValidation, "table name is required for drop column")
	}
	if op.Name == "" {
		return alerr.New(alerr.ErrValidation, "column name is required for drop column").
			WithTable(op.Table_)
	}
	if op.Name == "id" {
		return alerr.New(alerr.ErrValidation, "the primary key cannot be dropped").
			WithTable(op.Table_)
	}
	return nil
}

// Dropped returns the definition of the column being dropped, if known.
func (op *DropColumn) Dropped() *ColumnDef {
	if op.Current == nil {
		return nil
	}
	return op.Current.GetColumn(op.Name)
}

// -----------------------------------------------------------------------------
// CreateIndex - creates a new index
// -----------------------------------------------------------------------------

// CreateIndex represents creating a new index on one or more columns.
type CreateIndex struct {
	TableRef
	Name        string   // Index name (auto-generated if empty)
	Columns     []string // Columns to index
	Unique      bool     // UNIQUE index
	IfNotExists bool
}

func (op *CreateIndex) Type() OpType { return OpCreateIndex }

func (op *CreateIndex) Validate() error {
	if op.Table_ == "" {
		return alerr.New(alerr.ErrValidation, "table name is required for create index")
	}
	if len(op.Columns) == 0 {
		return alerr.New(alerr.ErrValidation, msgIndexNeedsColumn).
			WithTable(op.Table_)
	}
	return nil
}

// -----------------------------------------------------------------------------
// DropIndex - removes an existing index
// -----------------------------------------------------------------------------

// DropIndex represents removing an existing index.
type DropIndex struct {
	TableRef
	Name     string
	IfExists bool
}

func (op *DropIndex) Type() OpType { return OpDropIndex }

func (op *DropIndex) Validate() error {
	if op.Name == "" {
		return alerr.New(alerr.ErrValidation, "index name is required for drop index")
	}
	return nil
}
