package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/heapkeeper/internal/db"
	"github.com/tOgg1/heapkeeper/internal/events"
	"github.com/tOgg1/heapkeeper/internal/heap"
)

func newExportCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [db]",
		Short: "Export the archive to a SQLite snapshot",
		Long: "Write every post, deleted ones included, with its resolved parent, sibling\n" +
			"position and cycle flag to a SQLite database (default: database.path).",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := app.cfg.Database.Path
			if len(args) == 1 {
				path = args[0]
			}

			archive, err := app.load(ctx)
			if err != nil {
				return err
			}
			database, err := app.openDatabase(ctx, path)
			if err != nil {
				return err
			}
			defer database.Close()

			n, err := db.NewSnapshotRepository(database).ExportArchive(ctx, archive)
			if err != nil {
				return Exitf(ExitCodeFailure, "export: %v", err)
			}

			if app.opts.json {
				return app.writeJSON(map[string]any{"db": absPath(path), "posts": n})
			}
			fmt.Fprintf(app.out, "exported %d posts to %s\n", n, absPath(path))
			return nil
		},
	}
}

func newImportCmd(app *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "import <db>",
		Short: "Write the posts of a SQLite snapshot to the posts directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			existing, err := app.store.Heapids()
			if err != nil {
				return Exitf(ExitCodeFailure, "list posts: %v", err)
			}
			if len(existing) > 0 && !force {
				return usageError(cmd, "%s already holds %d posts, use --force to overwrite", app.store.Root, len(existing))
			}

			database, err := app.openDatabase(ctx, args[0])
			if err != nil {
				return err
			}
			defer database.Close()

			snapshot, err := db.NewSnapshotRepository(database).LoadArchive(ctx)
			if err != nil {
				return Exitf(ExitCodeFailure, "import: %v", err)
			}

			// Fresh posts are modified, so the store writes every one of them.
			archive := heap.NewArchive()
			for _, p := range snapshot.AllPosts() {
				if err := archive.AddWithID(p.ID(), heap.NewPost(p.Header(), p.Body())); err != nil {
					return heapError(err)
				}
			}
			n, err := app.save(ctx, archive)
			if err != nil {
				return err
			}

			if app.opts.json {
				return app.writeJSON(map[string]any{"dir": app.store.Root, "posts": n})
			}
			fmt.Fprintf(app.out, "imported %d posts into %s\n", n, app.store.Root)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing post files")
	return cmd
}

func newHistoryCmd(app *app) *cobra.Command {
	var (
		limit int
		since time.Duration
	)
	cmd := &cobra.Command{
		Use:   "history [heapid]",
		Short: "Show the event journal",
		Long:  "Show events recorded with --journal, oldest first.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			database := app.db
			if database == nil {
				var err error
				if database, err = app.openDatabase(ctx, app.cfg.Database.Path); err != nil {
					return err
				}
				defer database.Close()
			}

			q := db.EventQuery{Limit: limit}
			if len(args) == 1 {
				q.PostID = &args[0]
			}
			if since > 0 {
				from := time.Now().Add(-since)
				q.Since = &from
			}
			page, err := db.NewEventRepository(database).Query(ctx, q)
			if err != nil {
				return Exitf(ExitCodeFailure, "history: %v", err)
			}

			if app.opts.json {
				list := page.Events
				if list == nil {
					list = []*events.Event{}
				}
				return app.writeJSON(list)
			}
			for _, ev := range page.Events {
				post := ev.PostID
				if post == "" {
					post = "-"
				}
				fmt.Fprintf(app.out, "%s  %-16s  %s\n", ev.Timestamp.Local().Format(time.DateTime), ev.Type, post)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum number of events")
	cmd.Flags().DurationVar(&since, "since", 0, "only events younger than this")
	return cmd
}
