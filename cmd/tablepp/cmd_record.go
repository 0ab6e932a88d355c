package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	tcli "github.com/Zhukowych/tablepp/internal/cli"
	"github.com/Zhukowych/tablepp/pkg/tablepp"
)

// cellWidth bounds long text in record tables.
const cellWidth = 40

// recordCmd groups the record commands.
func recordCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "record",
		Aliases: []string{"rec"},
		Short:   "Read and write records of a table",
	}
	cmd.AddCommand(
		recordListCmd(g),
		recordGetCmd(g),
		recordCreateCmd(g),
		recordUpdateCmd(g),
		recordDeleteCmd(g),
		recordHistoryCmd(g),
		recordLookupCmd(g),
	)
	return cmd
}

func recordListCmd(g *globals) *cobra.Command {
	var filters, order []string
	var limit, offset int

	cmd := &cobra.Command{
		Use:     "list <table>",
		Aliases: []string{"ls"},
		Short:   "List records, optionally filtered",
		Example: `  tablepp record list Contacts
  tablepp record list Contacts --filter name__contains=ada --filter age__gte=18
  tablepp record list Contacts --order=-age --limit 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseFilters(filters)
			if err != nil {
				return err
			}
			return withClient(g, cmd, func(s *session) error {
				q := tablepp.Query{Filters: params, Order: order, Limit: limit, Offset: offset}
				page, err := s.client.ListRecords(s.ctx, s.user, args[0], q)
				if err != nil {
					return err
				}
				rows := make([]map[string]any, 0, len(page.Records))
				for _, rec := range page.Records {
					rows = append(rows, display(s, args[0], rec))
				}
				if s.g.jsonOutput {
					return tcli.WriteJSON(s.g.stdout, map[string]any{"total": page.Total, "records": rows})
				}

				headers := []string{"ID"}
				for _, f := range page.Fields {
					headers = append(headers, f.Name())
				}
				t := tcli.NewTable(headers...)
				for i, rec := range page.Records {
					cells := []string{strconv.FormatInt(rec.ID, 10)}
					for _, f := range page.Fields {
						cells = append(cells, tcli.Cell(rows[i][f.Slug()], cellWidth))
					}
					t.AddRow(cells...)
				}
				fmt.Fprint(s.g.stdout, t.String())
				fmt.Fprintln(s.g.stdout, tcli.Dim(fmt.Sprintf("%d of %s", len(page.Records),
					tcli.FormatCount(page.Total, "record", "records"))))
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Filter as column__operator=value, repeatable")
	cmd.Flags().StringSliceVar(&order, "order", nil, "Order by column, - prefix for descending")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of records")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of records to skip")
	return cmd
}

func recordGetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get <table> <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withClient(g, cmd, func(s *session) error {
				rec, err := s.client.GetRecord(s.ctx, s.user, args[0], id)
				if err != nil {
					return err
				}
				return printRecord(s, args[0], rec)
			})
		},
	}
}

func recordCreateCmd(g *globals) *cobra.Command {
	var set []string
	var file string

	cmd := &cobra.Command{
		Use:   "create <table>",
		Short: "Insert a record",
		Example: `  tablepp record create Contacts --set name=Ada --set age=36 --set company=1
  tablepp record create Contacts --file ada.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := recordValues(set, file)
			if err != nil {
				return err
			}
			return withClient(g, cmd, func(s *session) error {
				rec, err := s.client.CreateRecord(s.ctx, s.user, args[0], values)
				if err != nil {
					return err
				}
				return printRecord(s, args[0], rec)
			})
		},
	}

	valueFlags(cmd.Flags(), &set, &file)
	return cmd
}

func recordUpdateCmd(g *globals) *cobra.Command {
	var set []string
	var file string

	cmd := &cobra.Command{
		Use:   "update <table> <id>",
		Short: "Change columns of a record",
		Long:  `Change the given columns of a record. Columns not mentioned keep their value; an empty value clears a column.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			values, err := recordValues(set, file)
			if err != nil {
				return err
			}
			return withClient(g, cmd, func(s *session) error {
				rec, err := s.client.UpdateRecord(s.ctx, s.user, args[0], id, values)
				if err != nil {
					return err
				}
				return printRecord(s, args[0], rec)
			})
		},
	}

	valueFlags(cmd.Flags(), &set, &file)
	return cmd
}

func recordDeleteCmd(g *globals) *cobra.Command {
	var showRelated bool

	cmd := &cobra.Command{
		Use:     "delete <table> <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a record that nothing references",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withClient(g, cmd, func(s *session) error {
				if showRelated {
					deps, err := s.client.RelatedRecords(s.ctx, s.user, args[0], id)
					if err != nil {
						return err
					}
					list := tcli.NewList()
					for _, d := range deps {
						list.AddWarning(d.String())
					}
					if list.Len() == 0 {
						return s.print(deps, tcli.Dim("no records reference #"+args[1])+"\n")
					}
					return s.print(deps, list.String())
				}

				if err := s.client.DeleteRecord(s.ctx, s.user, args[0], id); err != nil {
					return err
				}
				return s.print(map[string]any{"deleted": id}, tcli.FormatSuccess(fmt.Sprintf("deleted %s #%d", args[0], id)))
			})
		},
	}

	cmd.Flags().BoolVar(&showRelated, "related", false, "Only list the records that block deletion")
	return cmd
}

func recordHistoryCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "history <table> <id>",
		Short: "Show the change log of a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withClient(g, cmd, func(s *session) error {
				entries, err := s.client.History(s.ctx, s.user, args[0], id)
				if err != nil {
					return err
				}
				t := tcli.NewTable("AT", "USER", "CHANGE", "DETAILS")
				for _, e := range entries {
					t.AddRow(e.At.Format("2006-01-02 15:04:05"), strconv.FormatInt(e.UserID, 10),
						e.Message, tcli.Cell(e.Description, 60))
				}
				return s.print(entries, t.String())
			})
		},
	}
}

func recordLookupCmd(g *globals) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "lookup <table> <text>",
		Short: "Search records by their label column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(g, cmd, func(s *session) error {
				matches, err := s.client.Lookup(s.ctx, s.user, args[0], args[1], limit)
				if err != nil {
					return err
				}
				t := tcli.NewTable("ID", "LABEL")
				for _, m := range matches {
					t.AddRow(strconv.FormatInt(m.ID, 10), m.Label)
				}
				return s.print(matches, t.String())
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of matches")
	return cmd
}

// -----------------------------------------------------------------------------

func valueFlags(fs *pflag.FlagSet, set *[]string, file *string) {
	fs.StringArrayVarP(set, "set", "s", nil, "Column value as column=value, repeatable")
	fs.StringVar(file, "file", "", "YAML or JSON file with column values")
}

// recordValues merges --file values with --set assignments, which win.
func recordValues(set []string, file string) (map[string]any, error) {
	values := map[string]any{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
	}
	assigned, err := parseAssignments(set)
	if err != nil {
		return nil, err
	}
	for k, v := range assigned {
		values[k] = v
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no values given, use --set or --file")
	}
	return values, nil
}

func parseFilters(filters []string) (map[string][]string, error) {
	params := make(map[string][]string, len(filters))
	pairs, err := parseAssignments(filters)
	if err != nil {
		return nil, err
	}
	for k, v := range pairs {
		s, _ := v.(string)
		params[k] = append(params[k], s)
	}
	return params, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", s)
	}
	return id, nil
}

// display returns the display values of rec, falling back to the stored
// values when the table has no model.
func display(s *session, table string, rec *tablepp.Record) map[string]any {
	out, err := s.client.FormatRecord(s.ctx, table, rec)
	if err != nil {
		return rec.Values
	}
	return out
}

func printRecord(s *session, table string, rec *tablepp.Record) error {
	values := display(s, table, rec)
	if s.g.jsonOutput {
		return tcli.WriteJSON(s.g.stdout, map[string]any{"id": rec.ID, "values": values})
	}
	m, err := s.client.Model(s.ctx, table)
	if err != nil {
		return err
	}
	t := tcli.NewTable("COLUMN", "VALUE")
	t.AddRow("id", strconv.FormatInt(rec.ID, 10))
	for _, f := range m.Fields {
		v, ok := values[f.Slug()]
		if !ok {
			continue
		}
		t.AddRow(f.Name(), tcli.Cell(v, 0))
	}
	_, err = fmt.Fprint(s.g.stdout, t.String())
	return err
}
