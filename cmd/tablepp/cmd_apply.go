package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	tcli "github.com/Zhukowych/tablepp/internal/cli"
	"github.com/Zhukowych/tablepp/pkg/tablepp"
)

// applyCmd reconciles the registry with a schema file.
func applyCmd(g *globals) *cobra.Command {
	var file string
	var prune, watch bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create and update tables from a YAML schema file",
		Long: `Create the tables and columns a schema file declares and update the settings
of existing ones. Records listed in the file are inserted into tables the apply
creates. Column types and frozen settings never change; differences are reported
as warnings.`,
		Example: `  # Apply once
  tablepp apply -f schema.yaml

  # Also remove columns the file no longer declares
  tablepp apply -f schema.yaml --prune

  # Re-apply on every save
  tablepp apply -f schema.yaml --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(g, cmd, func(s *session) error {
				opts := tablepp.ApplyOptions{Prune: prune}
				doc, err := tablepp.LoadSchemaFile(file)
				if err != nil {
					return err
				}
				report, err := s.client.ApplySchema(s.ctx, s.user, doc, opts)
				if err != nil {
					return err
				}
				if err := s.print(report, formatApply(report)); err != nil {
					return err
				}
				if !watch {
					return nil
				}

				fmt.Fprintln(s.g.stderr, tcli.Dim("watching "+file+", press Ctrl+C to stop"))
				err = s.client.WatchSchema(s.ctx, s.user, file, opts, func(r *tablepp.ApplyReport, err error) {
					if err != nil {
						printError(s.g.stderr, err)
						return
					}
					_ = s.print(r, formatApply(r))
				})
				if s.ctx.Err() != nil {
					return nil
				}
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "schema.yaml", "Schema file to apply")
	cmd.Flags().BoolVar(&prune, "prune", false, "Remove columns the file does not declare")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-apply whenever the file changes")
	return cmd
}

func formatApply(r *tablepp.ApplyReport) string {
	var b strings.Builder
	list := tcli.NewList()
	for _, t := range r.Created {
		list.AddSuccess("created table " + tcli.Accent(t.Name))
	}
	for _, t := range r.Updated {
		list.AddSuccess("updated table " + tcli.Accent(t.Name))
	}
	for _, c := range r.AddedColumns {
		list.AddSuccess(fmt.Sprintf("added column %s (%s)", tcli.Accent(c.Name), c.DType))
	}
	for _, c := range r.UpdatedColumns {
		list.AddSuccess("updated column " + tcli.Accent(c.Name))
	}
	for _, c := range r.RemovedColumns {
		list.AddRemoved("removed column " + tcli.Accent(c.Name))
	}
	for _, w := range r.Warnings {
		list.AddWarning(w)
	}
	if r.Seeded > 0 {
		list.Add("inserted " + tcli.FormatCount(r.Seeded, "record", "records"))
	}
	b.WriteString(list.String())
	b.WriteString(formatSync(r.Sync))
	b.WriteString(tcli.FormatSuccess(r.Summary()))
	return b.String()
}

// exportCmd prints the registry as a schema file.
func exportCmd(g *globals) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the registry as a YAML schema file",
		Example: `  tablepp export > schema.yaml
  tablepp export -o schema.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(g, cmd, func(s *session) error {
				doc, err := s.client.ExportSchema(s.ctx)
				if err != nil {
					return err
				}
				if s.g.jsonOutput {
					return tcli.WriteJSON(s.g.stdout, doc)
				}
				data, err := tablepp.MarshalSchema(doc)
				if err != nil {
					return err
				}
				if output == "" {
					_, err = s.g.stdout.Write(data)
					return err
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return err
				}
				fmt.Fprint(s.g.stdout, tcli.FormatSuccess(fmt.Sprintf("wrote %s to %s",
					tcli.FormatCount(len(doc.Tables), "table", "tables"), output)))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}
