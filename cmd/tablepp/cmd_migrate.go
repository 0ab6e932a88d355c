package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	tcli "github.com/Zhukowych/tablepp/internal/cli"
	"github.com/Zhukowych/tablepp/pkg/tablepp"
)

// migrateCmd synchronizes physical tables with the registry.
func migrateCmd(g *globals) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Sync physical tables with the registry",
		Long: `Create, alter and drop database tables until they match the table and column
definitions stored in the registry. Columns whose settings are invalid are skipped
and reported.`,
		Example: `  # Apply all pending physical changes
  tablepp migrate

  # Print the SQL without executing it
  tablepp migrate --dry`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(g, cmd, func(s *session) error {
				if dryRun {
					plan, err := s.client.Plan(s.ctx)
					if err != nil {
						return err
					}
					return s.print(plan, formatPlan(plan))
				}

				report, err := s.client.Migrate(s.ctx)
				if err != nil {
					return err
				}
				text := formatSync(report) + tcli.FormatSuccess(fmt.Sprintf("applied %s in %s",
					tcli.FormatCount(len(report.Applied), "change", "changes"), report.Duration.Round(time.Millisecond)))
				return s.print(report, text)
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry", false, "Print the SQL without executing it")
	return cmd
}

func formatPlan(plan *tablepp.SyncPlan) string {
	if plan.IsEmpty() {
		return tcli.FormatSuccess("database matches the registry")
	}
	var b strings.Builder
	for _, step := range plan.Steps {
		b.WriteString(tcli.Dim("-- "+step.Op.Type().String()+" "+step.Op.Table()) + "\n")
		for _, stmt := range step.SQL {
			b.WriteString(stmt)
			b.WriteString(";\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// verifyCmd compares the database with the registry.
func verifyCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Detect drift between the registry and the database",
		Long: `Compare the schema the registry describes with the schema found in the
database using merkle hashes. Exits non-zero when they differ.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(g, cmd, func(s *session) error {
				result, err := s.client.Verify(s.ctx)
				var driftErr *tablepp.DriftError
				if err != nil && !errors.As(err, &driftErr) {
					return err
				}
				if s.g.jsonOutput {
					if perr := tcli.WriteJSON(s.g.stdout, result); perr != nil {
						return perr
					}
					return err
				}
				if driftErr == nil {
					fmt.Fprintln(s.g.stdout, tcli.Badge("OK", true)+" database matches the registry")
					fmt.Fprintln(s.g.stdout, "  "+tcli.KeyValue("hash", result.ExpectedHash))
					return nil
				}
				fmt.Fprintln(s.g.stdout, tcli.Badge("DRIFT", false)+" database differs from the registry")
				fmt.Fprintln(s.g.stdout, tcli.Help("help")+": run `tablepp migrate` to repair it")
				return err
			})
		},
	}
}
