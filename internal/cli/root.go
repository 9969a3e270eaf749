// Package cli implements the heap command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the heap command line with os.Args.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	app := &app{}

	cmd := &cobra.Command{
		Use:   "heap",
		Short: "Keep a heap of posts and their threads",
		Long: "heap manages a directory of post files, derives the reply threads between\n" +
			"them and edits posts in bulk. Reply cycles are reported, never followed.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.close()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&app.opts.configFile, "config", "", "config file (default: search heap.yaml)")
	flags.StringVar(&app.opts.postsDir, "posts", "", "posts directory (default: paths.posts_dir)")
	flags.BoolVar(&app.opts.json, "json", false, "JSON output")
	flags.StringVar(&app.opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&app.opts.logFormat, "log-format", "", "log format (console, json)")
	flags.BoolVar(&app.opts.noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	flags.BoolVar(&app.opts.journal, "journal", false, "record post events in the database journal")

	cmd.AddCommand(
		newListCmd(app),
		newThreadCmd(app),
		newRootsCmd(app),
		newCyclesCmd(app),
		newClosureCmd(app, "exp", "List every post of the threads of the given posts"),
		newClosureCmd(app, "up", "List the given posts and their ancestors"),
		newClosureCmd(app, "down", "List the given posts and their descendants"),
		newDeleteCmd(app),
		newUndeleteCmd(app),
		newJoinCmd(app),
		newTagCmd(app),
		newSubjectCmd(app),
		newNewCmd(app),
		newExportCmd(app),
		newImportCmd(app),
		newHistoryCmd(app),
		newWatchCmd(app),
		newSelectCmd(app),
		newConfigCmd(app),
	)

	return cmd
}
