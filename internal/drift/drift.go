package drift

import (
	"context"
	"maps"
	"slices"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/engine"
)

// Detector performs schema drift detection by comparing the expected schema
// (built from the registry) against the actual database schema.
type Detector struct {
	inspector engine.Inspector
}

// NewDetector creates a new drift detector reading the live schema with
// inspector.
func NewDetector(inspector engine.Inspector) *Detector {
	return &Detector{inspector: inspector}
}

// Result represents the complete drift detection result.
type Result struct {
	// HasDrift is true if any differences were found
	HasDrift bool

	// ExpectedHash is the merkle root of the expected schema
	ExpectedHash string

	// ActualHash is the merkle root of the actual database schema
	ActualHash string

	// Comparison contains detailed comparison results
	Comparison *HashComparison

	// ExpectedSchema is the schema computed from the registry
	ExpectedSchema *engine.Schema

	// ActualSchema is the schema introspected from the database
	ActualSchema *engine.Schema
}

// Detect compares expected schema against actual database schema.
func (d *Detector) Detect(ctx context.Context, q engine.Queryer, expected *engine.Schema) (*Result, error) {
	actual, err := d.inspector.Inspect(ctx, q)
	if err != nil {
		return nil, alerr.Wrap(alerr.ErrIntrospection, err, "failed to introspect database schema")
	}
	return Compare(expected, actual)
}

// Compare computes the drift between two schemas.
func Compare(expected, actual *engine.Schema) (*Result, error) {
	if expected == nil {
		expected = engine.NewSchema()
	}
	if actual == nil {
		actual = engine.NewSchema()
	}

	expectedHash, err := ComputeSchemaHash(expected)
	if err != nil {
		return nil, err
	}
	actualHash, err := ComputeSchemaHash(withoutKept(expected, actual))
	if err != nil {
		return nil, err
	}

	comparison := CompareHashes(expectedHash, actualHash)
	return &Result{
		HasDrift:       !comparison.Match,
		ExpectedHash:   expectedHash.Root,
		ActualHash:     actualHash.Root,
		Comparison:     comparison,
		ExpectedSchema: expected,
		ActualSchema:   actual,
	}, nil
}

// withoutKept returns actual minus the columns expected tables keep
// without describing them.
func withoutKept(expected, actual *engine.Schema) *engine.Schema {
	out := engine.NewSchema()
	for name, t := range actual.Tables {
		if want := expected.Get(name); want != nil {
			for _, col := range want.Keep {
				t = t.Without(col)
			}
		}
		out.Add(t)
	}
	return out
}

// QuickCheck reports whether the database matches expected, comparing only
// root hashes.
func (d *Detector) QuickCheck(ctx context.Context, q engine.Queryer, expected *engine.Schema) (bool, error) {
	result, err := d.Detect(ctx, q, expected)
	if err != nil {
		return false, err
	}
	return !result.HasDrift, nil
}

// DriftSummary provides a human-readable summary of drift detection results.
type DriftSummary struct {
	// Tables is the total number of tables in expected schema
	Tables int

	// MissingTables is the count of tables missing from database
	MissingTables int

	// ExtraTables is the count of unexpected tables in database
	ExtraTables int

	// ModifiedTables is the count of tables with differences
	ModifiedTables int

	// Details contains per-table drift information, ordered by name
	// within each status
	Details []TableDriftSummary
}

// TableDriftSummary summarizes drift for a single table.
type TableDriftSummary struct {
	Name    string
	Status  string // "missing", "extra", "modified"
	Columns DriftCounts
	Indexes DriftCounts
}

// DriftCounts tracks missing/extra/modified counts.
type DriftCounts struct {
	Missing  int
	Extra    int
	Modified int
}

// Summarize creates a human-readable summary from drift detection result.
func Summarize(result *Result) *DriftSummary {
	if result == nil || result.Comparison == nil {
		return &DriftSummary{}
	}
	comp := result.Comparison

	summary := &DriftSummary{
		Tables:         result.ExpectedSchema.Len(),
		MissingTables:  len(comp.MissingTables),
		ExtraTables:    len(comp.ExtraTables),
		ModifiedTables: len(comp.TableDiffs),
	}

	for _, name := range comp.MissingTables {
		summary.Details = append(summary.Details, TableDriftSummary{Name: name, Status: "missing"})
	}
	for _, name := range comp.ExtraTables {
		summary.Details = append(summary.Details, TableDriftSummary{Name: name, Status: "extra"})
	}
	for _, name := range slices.Sorted(maps.Keys(comp.TableDiffs)) {
		diff := comp.TableDiffs[name]
		summary.Details = append(summary.Details, TableDriftSummary{
			Name:   name,
			Status: "modified",
			Columns: DriftCounts{
				Missing:  len(diff.MissingColumns),
				Extra:    len(diff.ExtraColumns),
				Modified: len(diff.ModifiedColumns),
			},
			Indexes: DriftCounts{
				Missing: len(diff.MissingIndexes),
				Extra:   len(diff.ExtraIndexes),
			},
		})
	}
	return summary
}
