package sqlgen

// Op is a comparison operator in a predicate.
type Op string

const (
	OpEq         Op = "eq"
	OpNe         Op = "ne"
	OpGte        Op = "gte"
	OpLte        Op = "lte"
	OpContains   Op = "contains"    // case-insensitive substring
	OpStartsWith Op = "starts_with" // case-insensitive prefix
	OpIn         Op = "in"
)

// Expr is a predicate tree compiled by Builder.CompileExpr.
type Expr interface{ isExpr() }

type (
	// And is the conjunction of its items. An empty And is true.
	And struct{ Items []Expr }

	// Or is the disjunction of its items. An empty Or is false.
	Or struct{ Items []Expr }

	// Cmp compares a column with a bound value.
	Cmp struct {
		Column string
		Op     Op
		Value  any
	}

	// IsNull matches rows where Column is NULL.
	IsNull struct{ Column string }

	// True matches every row.
	True struct{}
)

func (And) isExpr()    {}
func (Or) isExpr()     {}
func (Cmp) isExpr()    {}
func (IsNull) isExpr() {}
func (True) isExpr()   {}

// AndOf builds a conjunction, flattening nested Ands and dropping True items.
// A single remaining item is returned as is.
func AndOf(items ...Expr) Expr {
	flat := flattenAnd(nil, items)
	switch len(flat) {
	case 0:
		return True{}
	case 1:
		return flat[0]
	}
	return And{Items: flat}
}

func flattenAnd(dst, items []Expr) []Expr {
	for _, it := range items {
		switch v := it.(type) {
		case nil, True:
		case And:
			dst = flattenAnd(dst, v.Items)
		default:
			dst = append(dst, it)
		}
	}
	return dst
}

// Eq is shorthand for Cmp{Column, OpEq, value}.
func Eq(column string, value any) Expr {
	return Cmp{Column: column, Op: OpEq, Value: value}
}
