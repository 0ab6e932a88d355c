package engine

import (
	"slices"
	"strings"

	"github.com/Zhukowych/tablepp/internal/ast"
)

// Diff compares the live schema with the expected one and returns the
// operations that make the live schema match.
//
// Operations come out in execution order:
//  1. index drops
//  2. table creates, referenced tables first
//  3. column adds
//  4. index creates
//  5. column drops
//  6. table drops, dependents first
//
// Columns present on both sides are never altered, even when their shape
// differs; drift verification reports those. Columns an expected table
// lists in Keep are never dropped.
func Diff(actual, expected *Schema) []ast.Operation {
	if actual == nil {
		actual = NewSchema()
	}
	if expected == nil {
		expected = NewSchema()
	}

	var (
		dropIndexes   []ast.Operation
		addColumns    []ast.Operation
		createIndexes []ast.Operation
		dropColumns   []ast.Operation
	)

	var created, dropped []*ast.TableDef
	for _, name := range expected.Names() {
		if actual.Get(name) == nil {
			created = append(created, expected.Get(name))
		}
	}
	for _, name := range actual.Names() {
		if expected.Get(name) == nil {
			dropped = append(dropped, actual.Get(name))
		}
	}

	createTables, deferred := orderCreates(created)
	addColumns = append(addColumns, deferred...)
	for _, t := range created {
		createIndexes = append(createIndexes, indexOps(t.Name, t.Indexes)...)
	}

	for _, name := range expected.Names() {
		want, have := expected.Get(name), actual.Get(name)
		if have == nil {
			continue
		}

		dropIndexes = append(dropIndexes, diffDropIndexes(have, want)...)

		current := &ast.TableDef{Name: have.Name, Docs: have.Docs}
		current.Columns = append(current.Columns, have.Columns...)
		for _, col := range want.Columns {
			if !have.HasColumn(col.Name) {
				addColumns = append(addColumns, &ast.AddColumn{
					TableRef: ast.TableRef{Table_: name},
					Column:   col,
				})
				current.Columns = append(current.Columns, col)
			}
		}

		createIndexes = append(createIndexes, diffCreateIndexes(have, want)...)

		current.Indexes = want.Indexes
		for _, col := range have.Columns {
			if col.PrimaryKey || want.HasColumn(col.Name) || want.Keeps(col.Name) {
				continue
			}
			dropColumns = append(dropColumns, &ast.DropColumn{
				TableRef: ast.TableRef{Table_: name},
				Name:     col.Name,
				Current:  current,
			})
			current = current.Without(col.Name)
		}
	}

	dropTables, unlinked := orderDrops(dropped)
	dropColumns = append(dropColumns, unlinked...)

	ops := make([]ast.Operation, 0,
		len(dropIndexes)+len(createTables)+len(addColumns)+len(createIndexes)+len(dropColumns)+len(dropTables))
	ops = append(ops, dropIndexes...)
	ops = append(ops, createTables...)
	ops = append(ops, addColumns...)
	ops = append(ops, createIndexes...)
	ops = append(ops, dropColumns...)
	ops = append(ops, dropTables...)
	return ops
}

func diffDropIndexes(have, want *ast.TableDef) []ast.Operation {
	keep := indexKeys(want.Indexes)
	var ops []ast.Operation
	for _, idx := range sortedIndexes(have.Indexes) {
		if !keep[idx.Key()] {
			ops = append(ops, &ast.DropIndex{
				TableRef: ast.TableRef{Table_: have.Name},
				Name:     idx.Name,
			})
		}
	}
	return ops
}

func diffCreateIndexes(have, want *ast.TableDef) []ast.Operation {
	exists := indexKeys(have.Indexes)
	var missing []*ast.IndexDef
	for _, idx := range want.Indexes {
		if !exists[idx.Key()] {
			missing = append(missing, idx)
		}
	}
	return indexOps(want.Name, missing)
}

func indexOps(table string, indexes []*ast.IndexDef) []ast.Operation {
	var ops []ast.Operation
	for _, idx := range sortedIndexes(indexes) {
		ops = append(ops, &ast.CreateIndex{
			TableRef: ast.TableRef{Table_: table},
			Name:     idx.Name,
			Columns:  idx.Columns,
			Unique:   idx.Unique,
		})
	}
	return ops
}

func indexKeys(indexes []*ast.IndexDef) map[string]bool {
	keys := make(map[string]bool, len(indexes))
	for _, idx := range indexes {
		keys[idx.Key()] = true
	}
	return keys
}

func sortedIndexes(indexes []*ast.IndexDef) []*ast.IndexDef {
	out := slices.Clone(indexes)
	slices.SortFunc(out, func(a, b *ast.IndexDef) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// -----------------------------------------------------------------------------
// Dependency ordering
// -----------------------------------------------------------------------------

// tableNode wraps a table for topological sorting by its references.
type tableNode struct {
	def *ast.TableDef
}

func (n tableNode) ID() string             { return n.def.Name }
func (n tableNode) Dependencies() []string { return n.def.References() }

func sortTables(tables []*ast.TableDef) ([]*ast.TableDef, error) {
	nodes := make([]tableNode, len(tables))
	for i, t := range tables {
		nodes[i] = tableNode{def: t}
	}
	sorted, err := TopoSort(nodes)
	if err != nil {
		return nil, err
	}
	out := make([]*ast.TableDef, len(sorted))
	for i, n := range sorted {
		out[i] = n.def
	}
	return out, nil
}

// orderCreates returns CreateTable operations with referenced tables first.
// When the new tables reference each other in a cycle, every column pointing
// at another new table is left out of its CreateTable and returned as an
// AddColumn to run once all tables exist.
func orderCreates(tables []*ast.TableDef) (creates, deferred []ast.Operation) {
	if sorted, err := sortTables(tables); err == nil {
		for _, t := range sorted {
			creates = append(creates, createOp(t.Name, t.Columns))
		}
		return creates, nil
	}

	isNew := make(map[string]bool, len(tables))
	for _, t := range tables {
		isNew[t.Name] = true
	}
	for _, t := range tables {
		var inline []*ast.ColumnDef
		for _, col := range t.Columns {
			if ref := col.Reference; ref != nil && ref.Table != t.Name && isNew[ref.Table] {
				deferred = append(deferred, &ast.AddColumn{
					TableRef: ast.TableRef{Table_: t.Name},
					Column:   col,
				})
				continue
			}
			inline = append(inline, col)
		}
		creates = append(creates, createOp(t.Name, inline))
	}
	return creates, deferred
}

func createOp(name string, cols []*ast.ColumnDef) *ast.CreateTable {
	return &ast.CreateTable{
		TableOp: ast.TableOp{Name: name},
		Columns: cols,
	}
}

// orderDrops returns DropTable operations with dependents first. When the
// dropped tables reference each other in a cycle, the referencing columns are
// dropped beforehand so that no table is dropped while still referenced.
func orderDrops(tables []*ast.TableDef) (drops, unlinked []ast.Operation) {
	sorted, err := sortTables(tables)
	if err != nil {
		sorted = tables
		isDropped := make(map[string]bool, len(tables))
		for _, t := range tables {
			isDropped[t.Name] = true
		}
		for _, t := range tables {
			current := t
			for _, col := range t.Columns {
				if ref := col.Reference; ref != nil && ref.Table != t.Name && isDropped[ref.Table] {
					unlinked = append(unlinked, &ast.DropColumn{
						TableRef: ast.TableRef{Table_: t.Name},
						Name:     col.Name,
						Current:  current,
					})
					current = current.Without(col.Name)
				}
			}
		}
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		drops = append(drops, &ast.DropTable{TableOp: ast.TableOp{Name: sorted[i].Name}})
	}
	return drops, unlinked
}

// -----------------------------------------------------------------------------
// Summary
// -----------------------------------------------------------------------------

// DiffSummary counts operations by kind.
type DiffSummary struct {
	TablesToCreate int
	TablesToDrop   int
	ColumnsToAdd   int
	ColumnsToDrop  int
	IndexesToAdd   int
	IndexesToDrop  int
	TotalOps       int
}

// Summarize returns a summary of the operations in a diff.
func Summarize(ops []ast.Operation) DiffSummary {
	s := DiffSummary{TotalOps: len(ops)}
	for _, op := range ops {
		switch op.Type() {
		case ast.OpCreateTable:
			s.TablesToCreate++
		case ast.OpDropTable:
			s.TablesToDrop++
		case ast.OpAddColumn:
			s.ColumnsToAdd++
		case ast.OpDropColumn:
			s.ColumnsToDrop++
		case ast.OpCreateIndex:
			s.IndexesToAdd++
		case ast.OpDropIndex:
			s.IndexesToDrop++
		}
	}
	return s
}

// HasChanges returns true if there are any operations in the diff.
func HasChanges(ops []ast.Operation) bool {
	return len(ops) > 0
}
