package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	tcli "github.com/Zhukowych/tablepp/internal/cli"
	"github.com/Zhukowych/tablepp/pkg/tablepp"
)

// tableCmd groups the table registry commands.
func tableCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "List, create and delete tables",
	}
	cmd.AddCommand(tableListCmd(g), tableCreateCmd(g), tableDeleteCmd(g))
	return cmd
}

func tableListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered tables",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(g, cmd, func(s *session) error {
				tables, err := s.client.Tables(s.ctx)
				if err != nil {
					return err
				}
				t := tcli.NewTable("ID", "NAME", "SLUG", "REV", "DESCRIPTION")
				for _, tbl := range tables {
					t.AddRow(strconv.FormatInt(tbl.ID, 10), tcli.Accent(tbl.Name), tbl.Slug,
						strconv.FormatInt(tbl.Revision, 10), tcli.Cell(tbl.Description, 40))
				}
				return s.print(tables, t.String())
			})
		},
	}
}

func tableCreateCmd(g *globals) *cobra.Command {
	var description string
	var ordering []string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a table and create its physical table",
		Example: `  tablepp table create Contacts --description "People we work with"
  tablepp table create Contacts --ordering=-id`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(g, cmd, func(s *session) error {
				var opts tablepp.Options
				if len(ordering) > 0 {
					opts = tablepp.Options{"ordering": ordering}
				}
				t, err := s.client.CreateTable(s.ctx, args[0], description, opts)
				if err != nil {
					return err
				}
				return s.print(t, tcli.FormatSuccess(fmt.Sprintf("created table %s (%s)", tcli.Accent(t.Name), t.Slug)))
			})
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "Table description")
	cmd.Flags().StringSliceVar(&ordering, "ordering", nil, "Default record order, column slugs with optional - prefix")
	return cmd
}

func tableDeleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <table>",
		Aliases: []string{"rm"},
		Short:   "Delete a table, its physical table and its permission rules",
		Long: `Delete a table. Deletion is refused while relation columns of other tables
point at it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(g, cmd, func(s *session) error {
				t, err := s.table(args[0])
				if err != nil {
					return err
				}
				if err := s.client.DeleteTable(s.ctx, t); err != nil {
					return err
				}
				return s.print(t, tcli.FormatSuccess("deleted table "+tcli.Accent(t.Name)))
			})
		},
	}
}

// columnCmd groups the column registry commands.
func columnCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "column",
		Short: "List, add and remove columns",
	}
	cmd.AddCommand(columnListCmd(g), columnAddCmd(g), columnRemoveCmd(g), columnTypesCmd(g))
	return cmd
}

func columnListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "list <table>",
		Aliases: []string{"ls"},
		Short:   "List the columns of a table",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(g, cmd, func(s *session) error {
				t, err := s.table(args[0])
				if err != nil {
					return err
				}
				cols, err := s.client.Columns(s.ctx, t)
				if err != nil {
					return err
				}
				out := tcli.NewTable("ID", "NAME", "SLUG", "TYPE", "FILTER", "DISPLAY", "SETTINGS")
				for _, c := range cols {
					out.AddRow(strconv.FormatInt(c.ID, 10), tcli.Accent(c.Name), c.Slug, c.DType.String(),
						yesNo(c.IsFilterable), yesNo(c.IsDisplayable), formatSettings(c.Settings))
				}
				return s.print(cols, out.String())
			})
		},
	}
}

func columnAddCmd(g *globals) *cobra.Command {
	var dtype, target string
	var set []string
	var hidden, noFilter bool

	cmd := &cobra.Command{
		Use:   "add <table> <name>",
		Short: "Add a column to a table",
		Example: `  tablepp column add Contacts name --type TEXT --set max_length=64 --set 'filters=[exact, contains]'
  tablepp column add Contacts age --type INTEGER --set min_value=0
  tablepp column add Contacts company --type RELATION --target Companies`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := parseSettings(set)
			if err != nil {
				return err
			}
			return withClient(g, cmd, func(s *session) error {
				t, err := s.table(args[0])
				if err != nil {
					return err
				}
				if target != "" {
					ref, err := s.table(target)
					if err != nil {
						return err
					}
					settings["target_table_id"] = ref.ID
				}
				in := tablepp.ColumnInput{
					Name:          args[1],
					DType:         dtype,
					Settings:      tablepp.Settings(settings),
					IsFilterable:  boolPtr(!noFilter),
					IsDisplayable: boolPtr(!hidden),
				}
				col, err := s.client.AddColumn(s.ctx, t, in)
				if err != nil {
					return err
				}
				return s.print(col, tcli.FormatSuccess(fmt.Sprintf("added %s column %s.%s (%s)",
					col.DType, t.Name, tcli.Accent(col.Name), col.Slug)))
			})
		},
	}

	cmd.Flags().StringVarP(&dtype, "type", "t", "", "Column type: TEXT, INTEGER, FLOAT, BIGTEXT or RELATION")
	cmd.Flags().StringVar(&target, "target", "", "Target table of a RELATION column")
	cmd.Flags().StringArrayVar(&set, "set", nil, "Column setting as key=value, repeatable")
	cmd.Flags().BoolVar(&hidden, "hidden", false, "Exclude the column from record output")
	cmd.Flags().BoolVar(&noFilter, "no-filter", false, "Exclude the column from filters")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func columnRemoveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <table> <column>",
		Aliases: []string{"rm"},
		Short:   "Remove a column and its data",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(g, cmd, func(s *session) error {
				t, err := s.table(args[0])
				if err != nil {
					return err
				}
				col, err := s.client.Column(s.ctx, t, args[1])
				if err != nil {
					return err
				}
				if _, err := s.client.RemoveColumn(s.ctx, t, col); err != nil {
					return err
				}
				return s.print(col, tcli.FormatSuccess(fmt.Sprintf("removed column %s.%s", t.Name, tcli.Accent(col.Name))))
			})
		},
	}
}

func columnTypesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "Show the settings each column type accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			types := tablepp.ColumnTypes()
			if g.jsonOutput {
				return tcli.WriteJSON(g.stdout, types)
			}
			for _, st := range types {
				fmt.Fprintln(g.stdout, tcli.Header(st.DType.String()))
				t := tcli.NewTable("SETTING", "KIND", "DEFAULT")
				for _, f := range st.Fields {
					def := ""
					if f.Default != nil {
						def = fmt.Sprint(f.Default)
					}
					key := f.Key
					if f.Required {
						key += " *"
					}
					t.AddRow(key, string(f.Kind), def)
				}
				fmt.Fprintln(g.stdout, tcli.Indent(t.String(), 2))
			}
			return nil
		},
	}
}

func formatSettings(s tablepp.Settings) string {
	if len(s) == 0 {
		return tcli.Dim("-")
	}
	parts := make([]string, 0, len(s))
	for _, k := range sortedKeys(s) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, s[k]))
	}
	return strings.Join(parts, " ")
}

func boolPtr(b bool) *bool { return &b }
