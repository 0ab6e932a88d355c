// Package main provides the tablepp CLI: user-defined tables, columns,
// records and permissions stored in a SQL database.
//
// Usage:
//
//	tablepp apply -f schema.yaml   # Reconcile tables with a schema file
//	tablepp export                 # Print the registry as a schema file
//	tablepp migrate [--dry]        # Sync physical tables with the registry
//	tablepp verify                 # Detect schema drift
//	tablepp table list|create|delete
//	tablepp column list|add|remove|types
//	tablepp record list|get|create|update|delete|history|lookup
//	tablepp access grant|revoke|rules|member
package main

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	tcli "github.com/Zhukowych/tablepp/internal/cli"

	// Database drivers
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// version is set via ldflags during build: -ldflags="-X main.version=v1.0.0"
var version = "dev"

// globals carries the persistent flags and output streams of one command
// run.
type globals struct {
	databaseURL string
	configFile  string
	dialect     string
	verbose     bool
	jsonOutput  bool

	// configExplicit is set when --config was given; a missing file is
	// then an error.
	configExplicit bool

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globals{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "tablepp",
		Short:         "Dynamic tables over a SQL database",
		Long:          `tablepp stores user-defined tables and columns in a registry and keeps real database tables in sync with it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			g.configExplicit = cmd.Flags().Changed("config")
			if g.jsonOutput {
				tcli.SetDefault(&tcli.Config{Mode: tcli.ModeJSON, Writer: g.stdout})
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&g.databaseURL, "database-url", "d", "", "Database connection URL")
	pf.StringVarP(&g.configFile, "config", "c", DefaultConfigFile, "Path to config file")
	pf.StringVar(&g.dialect, "dialect", "", "Database dialect (postgres, sqlite); detected from the URL when empty")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Log SQL and schema changes to stderr")
	pf.BoolVar(&g.jsonOutput, "json", false, "Print results as JSON")

	root.AddCommand(
		applyCmd(g),
		exportCmd(g),
		migrateCmd(g),
		verifyCmd(g),
		tableCmd(g),
		columnCmd(g),
		recordCmd(g),
		accessCmd(g),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
