package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSelectCmd(app *app) *cobra.Command {
	var clearSel bool
	cmd := &cobra.Command{
		Use:   "select [heapid...]",
		Short: "Show or set the selection",
		Long: "Commands given no heapids operate on the selection. Without arguments\n" +
			"the current selection is shown.",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := app.selectionStore()
			sel, err := store.Load()
			if err != nil {
				return Exitf(ExitCodeFailure, "load selection: %v", err)
			}

			switch {
			case clearSel:
				if len(args) > 0 {
					return usageError(cmd, "--clear takes no heapids")
				}
				if err := store.Clear(); err != nil {
					return Exitf(ExitCodeFailure, "clear selection: %v", err)
				}
				sel.Clear()
			case len(args) > 0:
				archive, err := app.load(cmd.Context())
				if err != nil {
					return err
				}
				set, err := archive.PostSetOf(args...)
				if err != nil {
					return heapError(err)
				}
				sel.Set(app.store.Root, set.IDs())
				if err := store.Save(sel); err != nil {
					return Exitf(ExitCodeFailure, "save selection: %v", err)
				}
			}

			ids := sel.For(app.store.Root)
			if app.opts.json {
				if ids == nil {
					ids = []string{}
				}
				return app.writeJSON(map[string]any{"dir": app.store.Root, "heapids": ids})
			}
			if len(ids) == 0 {
				fmt.Fprintln(app.out, "(no selection)")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(app.out, id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearSel, "clear", false, "clear the selection")
	return cmd
}
