package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tOgg1/heapkeeper/internal/heap"
)

func newListCmd(app *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "ls [heapid...]",
		Aliases: []string{"list"},
		Short:   "List posts",
		Long:    "List the given posts, the selection, or every post in post order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := app.load(cmd.Context())
			if err != nil {
				return err
			}
			set, err := app.postSet(cmd, archive, args, false)
			if err != nil {
				return err
			}

			var posts []*heap.Post
			switch {
			case set != nil:
				posts = set.Sorted()
			case all:
				everything, err := archive.NewPostSet(archive.AllPosts()...)
				if err != nil {
					return heapError(err)
				}
				posts = everything.Sorted()
			default:
				posts = archive.All().Sorted()
			}
			return app.writePosts(archive, posts)
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include deleted posts")
	return cmd
}

func newThreadCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "thread [heapid]",
		Short: "Show a thread as a tree",
		Long:  "Show the thread below a post, or every thread followed by the posts on reply cycles.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := app.load(cmd.Context())
			if err != nil {
				return err
			}
			var root *heap.Post
			if len(args) == 1 {
				if root, err = archive.Lookup(args[0]); err != nil {
					return heapError(err)
				}
				if root.IsDeleted() {
					return Exitf(ExitCodeFailure, "post %s is deleted", root.ID())
				}
			}

			if app.opts.json {
				return app.writeJSON(walkJSON(archive, root))
			}
			return app.renderer().Thread(archive, root)
		},
	}
}

type itemJSON struct {
	Pos    heap.Pos `json:"pos"`
	Heapid string   `json:"heapid"`
	Level  int      `json:"level"`
}

func walkJSON(archive *heap.Archive, root *heap.Post) []itemJSON {
	items := archive.Walk(root, heap.WalkOptions{})
	if root == nil {
		items = append(items, archive.WalkCycles()...)
	}
	out := make([]itemJSON, 0, len(items))
	for _, item := range items {
		out = append(out, itemJSON{Pos: item.Pos, Heapid: item.Post.ID(), Level: item.Level})
	}
	return out
}

func newRootsCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "roots",
		Short: "List the thread roots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := app.load(cmd.Context())
			if err != nil {
				return err
			}
			return app.writePosts(archive, archive.Roots())
		},
	}
}

func newCyclesCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cycles",
		Short: "List the posts on or feeding into reply cycles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := app.load(cmd.Context())
			if err != nil {
				return err
			}
			cycles := archive.Cycles().Sorted()
			if len(cycles) == 0 && !app.opts.json {
				fmt.Fprintln(app.out, "no cycles")
				return nil
			}
			return app.writePosts(archive, cycles)
		},
	}
}

// newClosureCmd lists a closure of the given posts: exp, up or down.
func newClosureCmd(app *app, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " [heapid...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := app.load(cmd.Context())
			if err != nil {
				return err
			}
			set, err := app.postSet(cmd, archive, args, true)
			if err != nil {
				return err
			}

			var closure *heap.PostSet
			switch name {
			case "up":
				closure, err = set.Ascendants()
			case "down":
				closure, err = set.Descendants()
			default:
				closure, err = set.Exp()
			}
			if err != nil {
				return heapError(err)
			}
			return app.writePosts(archive, closure.Sorted())
		},
	}
}
