// Package drift provides schema drift detection using merkle trees.
// It compares the schema the registry describes against the live database
// and identifies differences using hierarchical hashing.
package drift

import (
	"encoding/hex"
	"fmt"
	"hash"
	"slices"
	"strconv"
	"strings"

	"github.com/cbergoon/merkletree"
	"github.com/zeebo/blake3"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/ast"
	"github.com/Zhukowych/tablepp/internal/engine"
)

// SchemaHash represents the merkle root hash of a schema.
type SchemaHash struct {
	Root   string                // Root hash of entire schema
	Tables map[string]*TableHash // Individual table hashes for drill-down
}

// TableHash represents the hash of a single table.
type TableHash struct {
	Name    string            // Physical table name
	Hash    string            // Hash of entire table structure
	Columns map[string]string // Column name -> hash
	Indexes map[string]string // Index shape key -> hash
}

// tableContent implements merkletree.Content for table-level hashing.
type tableContent struct {
	name string
	hash string
}

func (t tableContent) CalculateHash() ([]byte, error) {
	h := blake3.Sum256([]byte(t.name + ":" + t.hash))
	return h[:], nil
}

func (t tableContent) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(tableContent)
	if !ok {
		return false, nil
	}
	return t.name == o.name && t.hash == o.hash, nil
}

func newHasher() hash.Hash {
	return blake3.New()
}

// ComputeSchemaHash computes the merkle tree hash for a schema.
// The hash is hierarchical: schema -> tables -> columns/indexes.
func ComputeSchemaHash(schema *engine.Schema) (*SchemaHash, error) {
	result := &SchemaHash{Tables: make(map[string]*TableHash)}
	if schema == nil || schema.Len() == 0 {
		result.Root = emptyHash()
		return result, nil
	}

	var contents []merkletree.Content
	for _, name := range schema.Names() {
		th := computeTableHash(schema.Get(name))
		result.Tables[name] = th
		contents = append(contents, tableContent{name: name, hash: th.Hash})
	}

	tree, err := merkletree.NewTreeWithHashStrategy(contents, newHasher)
	if err != nil {
		return nil, alerr.Wrap(alerr.EInternalError, err, "failed to build merkle tree")
	}
	result.Root = hex.EncodeToString(tree.MerkleRoot())
	return result, nil
}

// computeTableHash computes the hash for a single table. Indexes are keyed
// by shape so that a renamed but otherwise identical index does not count
// as drift.
func computeTableHash(table *ast.TableDef) *TableHash {
	result := &TableHash{
		Name:    table.Name,
		Columns: make(map[string]string),
		Indexes: make(map[string]string),
	}

	var columnHashes []string
	for _, col := range sortedColumns(table.Columns) {
		h := computeColumnHash(col)
		result.Columns[col.Name] = h
		columnHashes = append(columnHashes, col.Name+":"+h)
	}

	var indexHashes []string
	for _, idx := range table.Indexes {
		key := idx.Key()
		h := hashString(key)
		result.Indexes[key] = h
		indexHashes = append(indexHashes, h)
	}
	slices.Sort(indexHashes)

	result.Hash = hashString(fmt.Sprintf("table:%s|columns:[%s]|indexes:[%s]",
		table.Name,
		strings.Join(columnHashes, ","),
		strings.Join(indexHashes, ","),
	))
	return result
}

func sortedColumns(cols []*ast.ColumnDef) []*ast.ColumnDef {
	out := slices.Clone(cols)
	slices.SortFunc(out, func(a, b *ast.ColumnDef) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// computeColumnHash computes a deterministic hash for a column, including
// its foreign key reference.
func computeColumnHash(col *ast.ColumnDef) string {
	data := fmt.Sprintf("name:%s|type:%s|nullable:%v|pk:%v",
		col.Name,
		normalizeType(col),
		col.Nullable,
		col.PrimaryKey,
	)
	if ref := col.Reference; ref != nil {
		data += fmt.Sprintf("|ref:%s.%s|on_delete:%s", ref.Table, ref.TargetColumn(), ref.OnDelete)
	}
	return hashString(data)
}

// normalizeType creates a canonical string representation of a column type.
func normalizeType(col *ast.ColumnDef) string {
	if col.Type == ast.TypeString {
		return col.Type + "(" + strconv.Itoa(col.Length()) + ")"
	}
	return col.Type
}

// hashString computes the BLAKE3 hash of a string and returns hex encoding.
func hashString(s string) string {
	h := blake3.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// emptyHash returns a consistent hash for empty schemas.
func emptyHash() string {
	return hashString("empty_schema")
}

// HashComparison represents the result of comparing two schema hashes.
type HashComparison struct {
	Match         bool                  // True if schemas are identical
	ExpectedRoot  string                // Expected schema root hash
	ActualRoot    string                // Actual schema root hash
	TableDiffs    map[string]*TableDiff // Tables with differences
	MissingTables []string              // Tables missing from actual
	ExtraTables   []string              // Extra tables in actual
}

// TableDiff represents differences within a table.
type TableDiff struct {
	Name            string   // Table name
	MissingColumns  []string // Columns missing from actual
	ExtraColumns    []string // Extra columns in actual
	ModifiedColumns []string // Columns with different definitions
	MissingIndexes  []string // Index shapes missing from actual
	ExtraIndexes    []string // Extra index shapes in actual
}

// HasDifferences returns true if the table has any differences.
func (d *TableDiff) HasDifferences() bool {
	return len(d.MissingColumns) > 0 ||
		len(d.ExtraColumns) > 0 ||
		len(d.ModifiedColumns) > 0 ||
		len(d.MissingIndexes) > 0 ||
		len(d.ExtraIndexes) > 0
}

// CompareHashes compares two schema hashes and returns differences.
func CompareHashes(expected, actual *SchemaHash) *HashComparison {
	result := &HashComparison{
		Match:         expected.Root == actual.Root,
		ExpectedRoot:  expected.Root,
		ActualRoot:    actual.Root,
		TableDiffs:    make(map[string]*TableDiff),
		MissingTables: []string{},
		ExtraTables:   []string{},
	}
	if result.Match {
		return result
	}

	for name := range expected.Tables {
		if _, exists := actual.Tables[name]; !exists {
			result.MissingTables = append(result.MissingTables, name)
		}
	}
	slices.Sort(result.MissingTables)

	for name := range actual.Tables {
		if _, exists := expected.Tables[name]; !exists {
			result.ExtraTables = append(result.ExtraTables, name)
		}
	}
	slices.Sort(result.ExtraTables)

	for name, et := range expected.Tables {
		at, exists := actual.Tables[name]
		if !exists || et.Hash == at.Hash {
			continue
		}
		result.TableDiffs[name] = compareTableHashes(et, at)
	}
	return result
}

// compareTableHashes compares two table hashes and returns differences.
func compareTableHashes(expected, actual *TableHash) *TableDiff {
	diff := &TableDiff{Name: expected.Name}

	diff.MissingColumns, diff.ExtraColumns, diff.ModifiedColumns = compareMaps(expected.Columns, actual.Columns)
	diff.MissingIndexes, diff.ExtraIndexes, _ = compareMaps(expected.Indexes, actual.Indexes)
	return diff
}

func compareMaps(expected, actual map[string]string) (missing, extra, modified []string) {
	for name, h := range expected {
		ah, exists := actual[name]
		switch {
		case !exists:
			missing = append(missing, name)
		case h != ah:
			modified = append(modified, name)
		}
	}
	for name := range actual {
		if _, exists := expected[name]; !exists {
			extra = append(extra, name)
		}
	}
	slices.Sort(missing)
	slices.Sort(extra)
	slices.Sort(modified)
	return missing, extra, modified
}
