package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tOgg1/heapkeeper/internal/heap"
	"github.com/tOgg1/heapkeeper/internal/postfile"
)

func newWatchCmd(app *app) *cobra.Command {
	var tree bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload the archive whenever post files change",
		Long: "Watch the posts directory and report the changed heapids and the cycle\n" +
			"count after every reload. Stop with Ctrl+C.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.watch(ctx, tree)
		},
	}
	cmd.Flags().BoolVar(&tree, "tree", false, "print the thread tree after every reload")
	return cmd
}

func (a *app) watch(ctx context.Context, tree bool) error {
	var prev *heap.Archive
	report := func(ctx context.Context, touched []string) {
		archive, changed, err := a.store.Reload(ctx, prev)
		if err != nil {
			a.logger.Error().Err(err).Msg("reload failed")
			return
		}
		if prev == nil {
			changed = nil
		}
		prev = archive
		a.logger.Debug().Strs("files", touched).Strs("changed", changed).Msg("posts reloaded")
		cycles := archive.Cycles().Len()
		if a.opts.json {
			if changed == nil {
				changed = []string{}
			}
			_ = a.writeJSON(map[string]any{"changed": changed, "posts": archive.Len(), "cycles": cycles})
			return
		}
		if len(changed) > 0 {
			fmt.Fprintf(a.out, "changed: %s\n", strings.Join(changed, " "))
		}
		fmt.Fprintf(a.out, "%d posts, %d on cycles\n", archive.Len(), cycles)
		if tree {
			if err := a.renderer().Thread(archive, nil); err != nil {
				a.logger.Error().Err(err).Msg("render failed")
			}
		}
	}

	w, err := postfile.NewWatcher(a.store, a.cfg.Watch.Debounce, report)
	if err != nil {
		return Exitf(ExitCodeFailure, "watch: %v", err)
	}
	report(ctx, nil)
	if err := w.Run(ctx); err != nil {
		return Exitf(ExitCodeFailure, "watch: %v", err)
	}
	return nil
}
