package postfile

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/heapkeeper/internal/events"
	"github.com/tOgg1/heapkeeper/internal/heap"
	"github.com/tOgg1/heapkeeper/internal/logging"
	"github.com/tOgg1/heapkeeper/internal/testutil"
)

func TestStoreHeapids(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []string{"10", "2", "a1"} {
		testutil.WritePost(t, dir, id, "\n")
	}
	testutil.WritePost(t, dir, ".hidden", "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"+Ext), 0o755))

	store, err := NewStore(dir)
	require.NoError(t, err)
	ids, err := store.Heapids()
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "10", "a1"}, ids)
}

func TestStoreHeapidsMissingDir(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "none"))
	require.NoError(t, err)
	ids, err := store.Heapids()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestNewStoreRequiresDir(t *testing.T) {
	_, err := NewStore("  ")
	assert.Error(t, err)
}

func TestStoreLoad(t *testing.T) {
	dir := t.TempDir()
	testutil.WritePost(t, dir, "1", "Subject: root\nMessage-Id: <m1>\n\nhello\n")
	testutil.WritePost(t, dir, "2", "Subject: reply\nParent: <m1>\n\nhi\n")
	testutil.WritePost(t, dir, "3", "Subject: reply to reply\nParent: 2\n\n")

	pub := events.NewInMemoryPublisher()
	var loaded []*events.Event
	require.NoError(t, pub.Subscribe("rec", events.Filter{EventTypes: []events.EventType{events.EventTypeArchiveLoaded}},
		func(ev *events.Event) { loaded = append(loaded, ev) }))

	store, err := NewStore(dir, WithWorkers(2), WithPublisher(pub))
	require.NoError(t, err)
	a, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, a.Len())
	assert.Empty(t, a.Modified())

	p3, err := a.Lookup("3")
	require.NoError(t, err)
	root := a.Root(p3)
	require.NotNil(t, root)
	assert.Equal(t, "1", root.ID())
	assert.Equal(t, "hello\n", root.Body())

	require.Len(t, loaded, 1)
	assert.Equal(t, "3", loaded[0].Metadata["posts"])
}

func TestStoreLoadInvalidFile(t *testing.T) {
	dir := t.TempDir()
	testutil.WritePost(t, dir, "1", "Subject: a\nSubject: b\n\n")

	store, err := NewStore(dir)
	require.NoError(t, err)
	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ErrInvalidHeader)
	assert.Contains(t, err.Error(), "1"+Ext)
}

func TestStoreLoadLogsExtraKeys(t *testing.T) {
	dir := t.TempDir()
	testutil.WritePost(t, dir, "1", "Subject: s\nX-Mailer: ed <ed@example.com>\nX-Auth-Token: abc\n\n")
	testutil.WritePost(t, dir, "2", "Subject: plain\n\n")

	var buf bytes.Buffer
	store, err := NewStore(dir, WithLogger(zerolog.New(&buf)))
	require.NoError(t, err)
	_, err = store.Load(context.Background())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "additional header keys", entry["message"])
	assert.Equal(t, "1", entry["heapid"])
	assert.Equal(t, "ed <e***@example.com>", entry["X-Mailer"])
	assert.Equal(t, logging.RedactedValue, entry["X-Auth-Token"])
	assert.Equal(t, []any{"X-Auth-Token", "X-Mailer"}, entry["keys"])
}

func TestStoreLoadCanceled(t *testing.T) {
	dir := t.TempDir()
	testutil.WritePost(t, dir, "1", "\n")

	store, err := NewStore(dir)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStoreSaveWritesModifiedPosts(t *testing.T) {
	dir := t.TempDir()
	testutil.WritePost(t, dir, "1", "Subject: one\n\n")
	testutil.WritePost(t, dir, "2", "Subject: two\n\n")

	store, err := NewStore(dir)
	require.NoError(t, err)
	a, err := store.Load(context.Background())
	require.NoError(t, err)

	p, err := a.Lookup("2")
	require.NoError(t, err)
	p.AddTag("done")
	_, err = a.Add(heap.NewPost(heap.Header{Subject: "three", Parent: "2"}, "new"), "")
	require.NoError(t, err)

	n, err := store.Save(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, a.Modified())

	data, err := os.ReadFile(filepath.Join(dir, "2"+Ext))
	require.NoError(t, err)
	assert.Equal(t, "Subject: two\nTag: done\n\n\n", string(data))

	ids, err := store.Heapids()
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}

	n, err = store.Save(context.Background(), a)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStoreSaveThenLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "posts")
	store, err := NewStore(dir)
	require.NoError(t, err)

	a := heap.NewArchive()
	root, err := a.Add(heap.NewPost(heap.Header{Subject: "root", MessageID: "<r>"}, "x"), "")
	require.NoError(t, err)
	_, err = a.Add(heap.NewPost(heap.Header{Subject: "child", Parent: "<r>"}, "y"), "")
	require.NoError(t, err)

	_, err = store.Save(context.Background(), a)
	require.NoError(t, err)

	back, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, a.Len(), back.Len())
	for _, p := range a.Posts() {
		q, err := back.Lookup(p.ID())
		require.NoError(t, err)
		assert.Equal(t, p.Header(), q.Header())
		assert.Equal(t, p.Body(), q.Body())
	}
	assert.Equal(t, []string{root.ID()}, postIDs(back.Roots()))
}

func TestStoreReload(t *testing.T) {
	dir := t.TempDir()
	testutil.WritePost(t, dir, "1", "Subject: a\n\n")
	testutil.WritePost(t, dir, "2", "Subject: b\n\n")
	testutil.WritePost(t, dir, "3", "Subject: c\n\n")

	store, err := NewStore(dir)
	require.NoError(t, err)
	first, changed, err := store.Reload(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, changed)

	testutil.WritePost(t, dir, "2", "Subject: b\nTag: x\n\n")
	testutil.WritePost(t, dir, "10", "Subject: d\n\n")
	require.NoError(t, os.Remove(filepath.Join(dir, "3"+Ext)))

	second, changed, err := store.Reload(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "10"}, changed)
	assert.Equal(t, 3, second.Len())

	_, changed, err = store.Reload(context.Background(), second)
	require.NoError(t, err)
	assert.Empty(t, changed)
}
