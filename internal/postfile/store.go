package postfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tOgg1/heapkeeper/internal/events"
	"github.com/tOgg1/heapkeeper/internal/heap"
	"github.com/tOgg1/heapkeeper/internal/logging"
)

const (
	// Ext is the extension of post files.
	Ext = ".post"

	rootDirPerm  = 0o755
	postFilePerm = 0o644

	defaultWorkers = 8
)

// Store keeps the posts of one archive in a directory.
type Store struct {
	Root    string
	workers int
	logger  zerolog.Logger
	pub     events.Publisher
}

type StoreOption func(*Store)

// WithWorkers bounds the number of post files parsed concurrently.
func WithWorkers(n int) StoreOption {
	return func(store *Store) {
		if n > 0 {
			store.workers = n
		}
	}
}

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(store *Store) {
		store.logger = logger
	}
}

// WithPublisher reports loads and saves as archive events.
func WithPublisher(pub events.Publisher) StoreOption {
	return func(store *Store) {
		store.pub = pub
	}
}

// NewStore initializes a store rooted at dir.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("posts directory required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	store := &Store{
		Root:    abs,
		workers: defaultWorkers,
		logger:  logging.Component("postfile"),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

func (s *Store) EnsureRoot() error {
	return os.MkdirAll(s.Root, rootDirPerm)
}

// PostPath returns the file that holds the post with the given heapid.
func (s *Store) PostPath(heapid string) string {
	return filepath.Join(s.Root, heapid+Ext)
}

// IsPostFile reports whether name looks like a post file name.
func IsPostFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, Ext) && len(base) > len(Ext) && !strings.HasPrefix(base, ".")
}

// Heapids lists the heapids of the post files in heapid order. A missing
// directory holds no posts.
func (s *Store) Heapids() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsPostFile(entry.Name()) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), Ext))
	}
	slices.SortFunc(ids, heap.CompareIDs)
	return ids, nil
}

// ReadPost parses the post file of one heapid into a detached post.
func (s *Store) ReadPost(heapid string) (*heap.Post, error) {
	data, err := os.ReadFile(s.PostPath(heapid))
	if err != nil {
		return nil, err
	}
	p, err := ParsePost(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.PostPath(heapid), err)
	}
	return p, nil
}

// Load reads every post file into a new archive. Files are parsed
// concurrently and added in heapid order, so the archive is the same
// whatever the scheduling. The loaded posts are clean.
func (s *Store) Load(ctx context.Context) (*heap.Archive, error) {
	ids, err := s.Heapids()
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	posts := make([]*heap.Post, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := s.ReadPost(id)
			if err != nil {
				return err
			}
			posts[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a := heap.NewArchive()
	for i, p := range posts {
		if err := a.AddWithID(ids[i], p); err != nil {
			return nil, err
		}
		p.MarkClean()
		s.logExtraKeys(ids[i], p)
	}

	s.logger.Debug().Int("posts", len(ids)).Str("dir", s.Root).Msg("archive loaded")
	s.publish(ctx, events.EventTypeArchiveLoaded, len(ids))
	return a, nil
}

// Reload reads the directory again and returns the heapids whose posts
// were added, removed or changed compared to prev, in heapid order. A nil
// prev reports every post.
func (s *Store) Reload(ctx context.Context, prev *heap.Archive) (*heap.Archive, []string, error) {
	next, err := s.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if prev == nil {
		return next, postIDs(next.AllPosts()), nil
	}

	var changed []string
	for _, p := range next.AllPosts() {
		old, ok := prev.Post(p.ID())
		if !ok || !bytes.Equal(Marshal(old), Marshal(p)) {
			changed = append(changed, p.ID())
		}
	}
	for _, p := range prev.AllPosts() {
		if _, ok := next.Post(p.ID()); !ok {
			changed = append(changed, p.ID())
		}
	}
	slices.SortFunc(changed, heap.CompareIDs)
	return next, changed, nil
}

func postIDs(posts []*heap.Post) []string {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID())
	}
	return ids
}

func (s *Store) logExtraKeys(heapid string, p *heap.Post) {
	extra := p.Header().Extra
	if len(extra) == 0 {
		return
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	logger := logging.WithPost(s.logger, heapid)
	event := logger.Warn().Strs("keys", keys)
	for _, k := range keys {
		event = event.Str(k, logging.RedactField(k, strings.Join(extra[k], ", ")))
	}
	event.Msg("additional header keys")
}

// Save writes the modified posts of a back to their files and marks them
// clean. It returns the number of files written.
func (s *Store) Save(ctx context.Context, a *heap.Archive) (int, error) {
	modified := a.Modified()
	if len(modified) == 0 {
		return 0, nil
	}
	if err := s.EnsureRoot(); err != nil {
		return 0, err
	}

	saved := 0
	for _, p := range modified {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		if err := writeFileAtomic(s.PostPath(p.ID()), Marshal(p), postFilePerm); err != nil {
			return saved, fmt.Errorf("save post %s: %w", p.ID(), err)
		}
		p.MarkClean()
		saved++
	}

	s.logger.Debug().Int("posts", saved).Str("dir", s.Root).Msg("archive saved")
	s.publish(ctx, events.EventTypeArchiveSaved, saved)
	return saved, nil
}

func (s *Store) publish(ctx context.Context, typ events.EventType, count int) {
	if s.pub == nil {
		return
	}
	ev := events.NewEvent(typ, "")
	ev.Metadata = map[string]string{
		"dir":   s.Root,
		"posts": strconv.Itoa(count),
	}
	s.pub.Publish(ctx, ev)
}

// writeFileAtomic replaces path through a temporary file in the same
// directory, so readers never see a partially written post.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	tmpName = ""
	return nil
}
