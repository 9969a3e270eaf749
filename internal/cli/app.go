package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tOgg1/heapkeeper/internal/config"
	"github.com/tOgg1/heapkeeper/internal/db"
	"github.com/tOgg1/heapkeeper/internal/events"
	"github.com/tOgg1/heapkeeper/internal/heap"
	"github.com/tOgg1/heapkeeper/internal/logging"
	"github.com/tOgg1/heapkeeper/internal/manip"
	"github.com/tOgg1/heapkeeper/internal/postfile"
	"github.com/tOgg1/heapkeeper/internal/render"
)

type globalOptions struct {
	configFile string
	postsDir   string
	json       bool
	logLevel   string
	logFormat  string
	noColor    bool
	journal    bool
}

// app is the state shared by the commands of one invocation.
type app struct {
	opts   globalOptions
	loader *config.Loader
	cfg    *config.Config
	logger zerolog.Logger
	store  *postfile.Store
	pub    *events.InMemoryPublisher
	db     *db.DB
	out    io.Writer
}

func (a *app) init(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()
	a.loader = config.NewLoader()
	if a.opts.configFile != "" {
		a.loader.SetConfigFile(a.opts.configFile)
	}
	if a.opts.postsDir != "" {
		a.loader.Set("paths.posts_dir", a.opts.postsDir)
	}
	if a.opts.logLevel != "" {
		a.loader.Set("logging.level", a.opts.logLevel)
	}
	if a.opts.logFormat != "" {
		a.loader.Set("logging.format", a.opts.logFormat)
	}

	cfg, err := a.loader.Load()
	if err != nil {
		return Exitf(ExitCodeUsage, "%v", err)
	}
	a.cfg = cfg

	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cmd.ErrOrStderr(),
		EnableCaller: cfg.Logging.EnableCaller,
		NoColor:      a.opts.noColor,
	})
	a.logger = logging.Component("cli")
	if used := a.loader.ConfigFileUsed(); used != "" {
		a.logger.Debug().Str("file", used).Msg("config loaded")
	}

	var pubOpts []events.PublisherOption
	pubOpts = append(pubOpts, events.WithLogger(logging.Component("events")))
	if a.opts.journal {
		database, err := a.openDatabase(cmd.Context(), cfg.Database.Path)
		if err != nil {
			return err
		}
		a.db = database
		pubOpts = append(pubOpts, events.WithRepository(db.NewEventRepository(database)))
	}
	a.pub = events.NewInMemoryPublisher(pubOpts...)

	store, err := postfile.NewStore(cfg.Paths.PostsDir,
		postfile.WithWorkers(cfg.Archive.LoadWorkers),
		postfile.WithLogger(logging.Component("postfile")),
		postfile.WithPublisher(a.pub),
	)
	if err != nil {
		return Exitf(ExitCodeFailure, "init store: %v", err)
	}
	a.store = store
	return nil
}

func (a *app) close() error {
	if a.pub != nil {
		a.pub.Close()
	}
	if a.db != nil {
		err := a.db.Close()
		a.db = nil
		return err
	}
	return nil
}

func (a *app) openDatabase(ctx context.Context, path string) (*db.DB, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	database, err := db.Open(ctx, db.Config{
		Path:        path,
		BusyTimeout: time.Duration(a.cfg.Database.BusyTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return nil, Exitf(ExitCodeFailure, "open database %s: %v", path, err)
	}
	return database, nil
}

// load reads the archive and publishes its changes.
func (a *app) load(ctx context.Context) (*heap.Archive, error) {
	archive, err := a.store.Load(ctx)
	if err != nil {
		return nil, Exitf(ExitCodeFailure, "load posts: %v", err)
	}
	events.Attach(ctx, archive, a.pub)
	return archive, nil
}

func (a *app) editor(ctx context.Context, archive *heap.Archive) *manip.Editor {
	return manip.New(ctx, archive, a.pub)
}

func (a *app) save(ctx context.Context, archive *heap.Archive) (int, error) {
	n, err := a.store.Save(ctx, archive)
	if err != nil {
		return n, Exitf(ExitCodeFailure, "save posts: %v", err)
	}
	return n, nil
}

func (a *app) selectionStore() *config.SelectionStore {
	return config.NewSelectionStore(a.cfg.SelectionPath())
}

// postSet resolves heapid arguments. Without arguments it falls back to
// the saved selection of the posts directory; required reports an error
// when both are empty.
func (a *app) postSet(cmd *cobra.Command, archive *heap.Archive, args []string, required bool) (*heap.PostSet, error) {
	ids := args
	if len(ids) == 0 {
		sel, err := a.selectionStore().Load()
		if err != nil {
			return nil, Exitf(ExitCodeFailure, "load selection: %v", err)
		}
		ids = sel.For(a.store.Root)
		if len(ids) > 0 {
			a.logger.Debug().Strs("heapids", ids).Msg("using selection")
		}
	}
	if len(ids) == 0 {
		if required {
			return nil, usageError(cmd, "no heapids given and nothing selected")
		}
		return nil, nil
	}
	set, err := archive.PostSetOf(ids...)
	if err != nil {
		return nil, heapError(err)
	}
	return set, nil
}

func (a *app) renderer() *render.Renderer {
	return render.New(a.out, render.Options{
		Color:        a.colorEnabled(),
		SubjectWidth: a.cfg.Render.SubjectWidth,
		ShowDates:    a.cfg.Render.ShowDates,
		Indent:       a.cfg.Render.Indent,
	})
}

func (a *app) colorEnabled() bool {
	if a.opts.noColor {
		return false
	}
	switch a.cfg.Render.Color {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := a.out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// report prints the touched heapids of an edit and saves the archive.
func (a *app) report(ctx context.Context, archive *heap.Archive, op string, touched []string) error {
	saved, err := a.save(ctx, archive)
	if err != nil {
		return err
	}
	a.logger.Info().Str("op", op).Int("touched", len(touched)).Int("saved", saved).Msg("posts edited")

	if a.opts.json {
		if touched == nil {
			touched = []string{}
		}
		return a.writeJSON(editResult{Op: op, Touched: touched, Saved: saved})
	}
	if len(touched) == 0 {
		fmt.Fprintln(a.out, "no posts changed")
		return nil
	}
	fmt.Fprintf(a.out, "%s: %s\n", op, strings.Join(touched, " "))
	return nil
}

type editResult struct {
	Op      string   `json:"op"`
	Touched []string `json:"touched"`
	Saved   int      `json:"saved"`
}

// postJSON is the JSON form of a post.
type postJSON struct {
	Heapid    string   `json:"heapid"`
	Author    string   `json:"author,omitempty"`
	Subject   string   `json:"subject,omitempty"`
	MessageID string   `json:"message_id,omitempty"`
	Parent    string   `json:"parent,omitempty"`
	Resolved  string   `json:"resolved_parent,omitempty"`
	Date      string   `json:"date,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Flags     []string `json:"flags,omitempty"`
	Deleted   bool     `json:"deleted,omitempty"`
	Cyclic    bool     `json:"cyclic,omitempty"`
}

func toPostJSON(archive *heap.Archive, p *heap.Post) postJSON {
	out := postJSON{
		Heapid:    p.ID(),
		Author:    p.Author(),
		Subject:   p.Subject(),
		MessageID: p.MessageID(),
		Parent:    p.ParentRef(),
		Date:      p.Date(),
		Tags:      p.Tags(),
		Flags:     p.Flags(),
		Deleted:   p.IsDeleted(),
		Cyclic:    archive.IsCyclic(p),
	}
	if parent := archive.Parent(p); parent != nil {
		out.Resolved = parent.ID()
	}
	return out
}

func (a *app) writePosts(archive *heap.Archive, posts []*heap.Post) error {
	if a.opts.json {
		out := make([]postJSON, 0, len(posts))
		for _, p := range posts {
			out = append(out, toPostJSON(archive, p))
		}
		return a.writeJSON(out)
	}
	return a.renderer().List(posts)
}

// absPath resolves path against the working directory for messages.
func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
