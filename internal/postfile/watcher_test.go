package postfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/heapkeeper/internal/testutil"
)

func TestNewWatcherValidation(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = NewWatcher(nil, 0, func(context.Context, []string) {})
	assert.Error(t, err)
	_, err = NewWatcher(store, 0, nil)
	assert.Error(t, err)

	w, err := NewWatcher(store, 0, func(context.Context, []string) {})
	require.NoError(t, err)
	assert.Equal(t, DefaultDebounce, w.debounce)
}

func TestWatcherBatchesChanges(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	batches := make(chan []string, 4)
	w, err := NewWatcher(store, 200*time.Millisecond, func(_ context.Context, ids []string) {
		batches <- ids
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	for _, id := range []string{"10", "2"} {
		testutil.WritePost(t, dir, id, "Subject: s\n\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))

	select {
	case got := <-batches:
		assert.Equal(t, []string{"2", "10"}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no batch reported")
	}
}

func TestWatcherStopsOnCancel(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "posts"))
	require.NoError(t, err)
	w, err := NewWatcher(store, time.Millisecond, func(context.Context, []string) {})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, w.Run(ctx))
	assert.DirExists(t, store.Root)
}
