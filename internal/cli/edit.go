package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/heapkeeper/internal/heap"
	"github.com/tOgg1/heapkeeper/internal/manip"
)

// editFunc is one bulk edit over the resolved post set.
type editFunc func(e *manip.Editor, set *heap.PostSet) ([]string, error)

// runEdit loads the archive, applies fn to the posts named by args and
// saves the modified posts.
func (a *app) runEdit(cmd *cobra.Command, args []string, op string, fn editFunc) error {
	ctx := cmd.Context()
	archive, err := a.load(ctx)
	if err != nil {
		return err
	}
	set, err := a.postSet(cmd, archive, args, true)
	if err != nil {
		return err
	}
	touched, err := fn(a.editor(ctx, archive), set)
	if err != nil {
		return heapError(err)
	}
	return a.report(ctx, archive, op, touched)
}

func newDeleteCmd(app *app) *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:     "delete [heapid...]",
		Aliases: []string{"rm"},
		Short:   "Delete posts",
		Long:    "Delete posts. A deleted post keeps its heapid and message id; everything else is wiped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if recursive {
				return app.runEdit(cmd, args, "delete", (*manip.Editor).DeleteRecursive)
			}
			return app.runEdit(cmd, args, "delete", (*manip.Editor).Delete)
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "also delete all descendants")
	return cmd
}

func newUndeleteCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "undelete [heapid...]",
		Short: "Clear the deleted flag of posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runEdit(cmd, args, "undelete", (*manip.Editor).Undelete)
		},
	}
}

func newJoinCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "join <parent> <child>",
		Short: "Make a post a reply of another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			archive, err := app.load(ctx)
			if err != nil {
				return err
			}
			parent, err := archive.Lookup(args[0])
			if err != nil {
				return heapError(err)
			}
			child, err := archive.Lookup(args[1])
			if err != nil {
				return heapError(err)
			}
			touched, err := app.editor(ctx, archive).Join(parent, child)
			if err != nil {
				return heapError(err)
			}
			if archive.IsCyclic(child) {
				app.logger.Warn().Str("parent", parent.ID()).Str("child", child.ID()).Msg("join created a reply cycle")
			}
			return app.report(ctx, archive, "join", touched)
		},
	}
}

func newTagCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Edit post tags",
	}

	type tagOp struct {
		name, short   string
		flat, recurse func(*manip.Editor, *heap.PostSet, []string) ([]string, error)
	}
	for _, op := range []tagOp{
		{"add", "Add tags to posts", (*manip.Editor).AddTags, (*manip.Editor).AddTagsRecursive},
		{"remove", "Remove tags from posts", (*manip.Editor).RemoveTags, (*manip.Editor).RemoveTagsRecursive},
		{"set", "Replace the tags of posts", (*manip.Editor).SetTags, (*manip.Editor).SetTagsRecursive},
	} {
		var tags []string
		var recursive bool
		sub := &cobra.Command{
			Use:   op.name + " [heapid...] --tags a,b",
			Short: op.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				tags = splitTags(tags)
				if len(tags) == 0 && op.name != "set" {
					return usageError(cmd, "--tags is required")
				}
				fn := op.flat
				if recursive {
					fn = op.recurse
				}
				return app.runEdit(cmd, args, "tag "+op.name, func(e *manip.Editor, set *heap.PostSet) ([]string, error) {
					return fn(e, set, tags)
				})
			},
		}
		sub.Flags().StringSliceVarP(&tags, "tags", "t", nil, "tags, comma separated")
		sub.Flags().BoolVarP(&recursive, "recursive", "r", false, "also edit all descendants")
		cmd.AddCommand(sub)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "propagate [heapid...]",
		Short: "Add the tags of posts to all their descendants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runEdit(cmd, args, "tag propagate", (*manip.Editor).PropagateTags)
		},
	})
	return cmd
}

func splitTags(values []string) []string {
	var out []string
	for _, v := range values {
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				out = append(out, tag)
			}
		}
	}
	return out
}

func newSubjectCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subject",
		Short: "Edit post subjects",
	}

	var recursive bool
	set := &cobra.Command{
		Use:   "set <subject> [heapid...]",
		Short: "Set the subject of posts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject := args[0]
			fn := (*manip.Editor).SetSubject
			if recursive {
				fn = (*manip.Editor).SetSubjectRecursive
			}
			return app.runEdit(cmd, args[1:], "subject set", func(e *manip.Editor, s *heap.PostSet) ([]string, error) {
				return fn(e, s, subject)
			})
		},
	}
	set.Flags().BoolVarP(&recursive, "recursive", "r", false, "also edit all descendants")

	var capRecursive bool
	capitalize := &cobra.Command{
		Use:   "capitalize [heapid...]",
		Short: "Capitalize the subject of posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if capRecursive {
				return app.runEdit(cmd, args, "subject capitalize", (*manip.Editor).CapitalizeSubjectRecursive)
			}
			return app.runEdit(cmd, args, "subject capitalize", (*manip.Editor).CapitalizeSubject)
		},
	}
	capitalize.Flags().BoolVarP(&capRecursive, "recursive", "r", false, "also edit all descendants")

	cmd.AddCommand(
		set,
		&cobra.Command{
			Use:   "propagate [heapid...]",
			Short: "Copy the subject of posts to all their descendants",
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.runEdit(cmd, args, "subject propagate", (*manip.Editor).PropagateSubject)
			},
		},
		capitalize,
	)
	return cmd
}
