package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/heapkeeper/internal/heap"
)

func newNewCmd(app *app) *cobra.Command {
	var (
		author, subject, parent, messageID, date, file, prefix string
		tags                                                   []string
		normalize                                              bool
	)
	cmd := &cobra.Command{
		Use:   "new [body]",
		Short: "Add a post",
		Long: "Add a post under the next free heapid. The body is the argument, the\n" +
			"--file contents or standard input when piped.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			bodyArg := ""
			if len(args) == 1 {
				bodyArg = args[0]
			}
			body, err := resolveBody(cmd, bodyArg, file)
			if err != nil {
				return err
			}

			archive, err := app.load(ctx)
			if err != nil {
				return err
			}
			if parent != "" {
				if _, ok := archive.PostByMessageID(parent); !ok {
					if _, ok := archive.Post(parent); !ok {
						app.logger.Warn().Str("parent", parent).Msg("parent does not match any post")
					}
				}
			}
			if date == "" {
				date = time.Now().Format(time.RFC1123Z)
			}

			p := heap.NewPost(heap.Header{
				Author:    author,
				Subject:   subject,
				MessageID: messageID,
				Parent:    parent,
				Date:      date,
				Tags:      splitTags(tags),
			}, body)
			if normalize {
				p.NormalizeSubject()
			}
			if !cmd.Flags().Changed("prefix") {
				prefix = app.cfg.Archive.IDPrefix
			}
			if _, err := archive.Add(p, prefix); err != nil {
				return heapError(err)
			}
			if _, err := app.save(ctx, archive); err != nil {
				return err
			}

			if app.opts.json {
				return app.writeJSON(toPostJSON(archive, p))
			}
			fmt.Fprintln(app.out, p.ID())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&author, "author", "", "post author")
	flags.StringVarP(&subject, "subject", "s", "", "post subject")
	flags.StringVarP(&parent, "parent", "p", "", "message id or heapid of the parent post")
	flags.StringVar(&messageID, "message-id", "", "message id of the post")
	flags.StringVar(&date, "date", "", "RFC 2822 date (default: now)")
	flags.StringSliceVarP(&tags, "tags", "t", nil, "tags, comma separated")
	flags.StringVarP(&file, "file", "f", "", "read the body from a file")
	flags.StringVar(&prefix, "prefix", "", "heapid prefix (default: archive.id_prefix)")
	flags.BoolVar(&normalize, "normalize", false, "move [tag] groups of the subject into the tags")
	return cmd
}

func resolveBody(cmd *cobra.Command, bodyArg, filePath string) (string, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath != "" && strings.TrimSpace(bodyArg) != "" {
		return "", usageError(cmd, "provide either a body argument or --file, not both")
	}

	switch {
	case filePath != "":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", Exitf(ExitCodeFailure, "read file: %v", err)
		}
		return string(data), nil
	case bodyArg != "":
		return bodyArg, nil
	default:
		data, err := readStdinIfPiped(cmd)
		if err != nil {
			return "", Exitf(ExitCodeFailure, "read stdin: %v", err)
		}
		return data, nil
	}
}

// readStdinIfPiped reads the command input unless it is a terminal.
func readStdinIfPiped(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		info, err := f.Stat()
		if err != nil {
			return "", err
		}
		if info.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
