package drift

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// hashWidth is the number of hash characters shown in reports.
const hashWidth = 12

// FormatResult renders a drift result as the report printed by verify.
func FormatResult(result *Result) string {
	if result == nil {
		return "No drift detection result available."
	}

	var b strings.Builder
	if !result.HasDrift {
		fmt.Fprintf(&b, "Schema check passed\n\n")
		fmt.Fprintf(&b, "  Tables:       %d\n", result.ExpectedSchema.Len())
		fmt.Fprintf(&b, "  Schema hash:  %s\n", shortHash(result.ExpectedHash))
		b.WriteString("\n  Physical tables match the registry.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Schema drift detected (%s)\n\n", summaryParts(Summarize(result)))
	fmt.Fprintf(&b, "  Registry hash: %s\n", shortHash(result.ExpectedHash))
	fmt.Fprintf(&b, "  Database hash: %s\n", shortHash(result.ActualHash))

	comp := result.Comparison
	section(&b, "  ", "Tables missing from the database", "-", comp.MissingTables)
	section(&b, "  ", "Tables unknown to the registry", "+", comp.ExtraTables)

	if len(comp.TableDiffs) > 0 {
		b.WriteString("\n  Tables with differences:\n")
		for _, name := range slices.Sorted(maps.Keys(comp.TableDiffs)) {
			d := comp.TableDiffs[name]
			fmt.Fprintf(&b, "\n    %s\n", name)
			section(&b, "      ", "missing columns", "-", d.MissingColumns)
			section(&b, "      ", "extra columns", "+", d.ExtraColumns)
			section(&b, "      ", "changed columns", "~", d.ModifiedColumns)
			section(&b, "      ", "missing indexes", "-", d.MissingIndexes)
			section(&b, "      ", "extra indexes", "+", d.ExtraIndexes)
		}
	}

	b.WriteString("\nRun `tablepp migrate` to rebuild the physical tables from the registry.\n")
	return b.String()
}

// section writes a titled list of names, or nothing when names is empty.
func section(b *strings.Builder, indent, title, mark string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s%s:\n", indent, title)
	for _, n := range names {
		fmt.Fprintf(b, "%s  %s %s\n", indent, mark, n)
	}
}

// FormatSummary renders a one-line drift summary.
func FormatSummary(s *DriftSummary) string {
	if s == nil {
		return "No summary available."
	}
	if s.MissingTables+s.ExtraTables+s.ModifiedTables == 0 {
		return fmt.Sprintf("No drift detected. %d tables in sync.", s.Tables)
	}
	return "Drift detected: " + summaryParts(s)
}

func summaryParts(s *DriftSummary) string {
	var parts []string
	for _, c := range []struct {
		n    int
		what string
	}{
		{s.MissingTables, "missing"},
		{s.ExtraTables, "extra"},
		{s.ModifiedTables, "modified"},
	} {
		if c.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c.n, c.what))
		}
	}
	return strings.Join(parts, ", ")
}

func shortHash(hash string) string {
	if len(hash) <= hashWidth {
		return hash
	}
	return hash[:hashWidth]
}
