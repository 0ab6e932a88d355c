// Package ast describes physical storage: table and column definitions and
// the atomic schema operations that reconcile them with a database.
// Operations are rendered to SQL by a dialect.
package ast

// OpType represents the type of a schema operation.
type OpType int

const (
	// OpDropIndex removes an existing index.
	OpDropIndex OpType = iota

	// OpCreateTable creates a new table with columns and indexes.
	OpCreateTable

	// OpAddColumn adds a new column to an existing table.
	OpAddColumn

	// OpCreateIndex creates a new index on one or more columns.
	OpCreateIndex

	// OpDropColumn removes a column from an existing table.
	OpDropColumn

	// OpDropTable removes an existing table.
	OpDropTable
)

// String returns the string representation of an OpType.
func (o OpType) String() string {
	switch o {
	case OpCreateTable:
		return "CreateTable"
	case OpDropTable:
		return "DropTable"
	case OpAddColumn:
		return "AddColumn"
	case OpDropColumn:
		return "DropColumn"
	case OpCreateIndex:
		return "CreateIndex"
	case OpDropIndex:
		return "DropIndex"
	default:
		return "Unknown"
	}
}

// Physical column types. Dialects map these to concrete SQL types.
const (
	TypeID      = "id"      // auto-increment integer primary key
	TypeString  = "string"  // bounded string, TypeArgs[0] is the length
	TypeText    = "text"    // unbounded text
	TypeInteger = "integer" // 64-bit integer
	TypeFloat   = "float"   // double precision float
)
