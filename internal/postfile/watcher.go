package postfile

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/tOgg1/heapkeeper/internal/heap"
	"github.com/tOgg1/heapkeeper/internal/logging"
)

// DefaultDebounce is the quiet period after the last post file event before
// the watcher reports a batch.
const DefaultDebounce = 500 * time.Millisecond

// ChangeHandler receives the heapids whose post files were created, written,
// removed or renamed during one debounce window, in heapid order.
type ChangeHandler func(ctx context.Context, heapids []string)

// Watcher reports changes of the post files of a store.
type Watcher struct {
	store    *Store
	debounce time.Duration
	handler  ChangeHandler
	logger   zerolog.Logger
}

// NewWatcher creates a watcher for the store directory. A non-positive
// debounce uses DefaultDebounce.
func NewWatcher(store *Store, debounce time.Duration, handler ChangeHandler) (*Watcher, error) {
	if store == nil {
		return nil, fmt.Errorf("store required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		store:    store,
		debounce: debounce,
		handler:  handler,
		logger:   logging.Component("watcher"),
	}, nil
}

// Run watches until ctx is done. The handler is called from the Run
// goroutine only, never concurrently with itself.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.store.EnsureRoot(); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(w.store.Root); err != nil {
		return fmt.Errorf("watch %s: %w", w.store.Root, err)
	}
	w.logger.Debug().Str("dir", w.store.Root).Dur("debounce", w.debounce).Msg("watching posts")

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			pending[strings.TrimSuffix(filepath.Base(event.Name), Ext)] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for id := range pending {
				batch = append(batch, id)
			}
			clear(pending)
			slices.SortFunc(batch, heap.CompareIDs)
			w.handler(ctx, batch)
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if !IsPostFile(event.Name) {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
