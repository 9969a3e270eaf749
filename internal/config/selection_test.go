package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSelection_SetAndFor(t *testing.T) {
	sel := &Selection{}
	if !sel.IsEmpty() {
		t.Fatal("new selection should be empty")
	}

	sel.Set("/heap/posts", []string{"3", "1", "3"})
	if got := sel.String(); got != "1 3" {
		t.Errorf("String() = %q, want %q", got, "1 3")
	}
	if got := sel.For("/heap/posts/"); len(got) != 2 {
		t.Errorf("For(same dir) = %v, want 2 heapids", got)
	}
	if got := sel.For("/elsewhere"); got != nil {
		t.Errorf("For(other dir) = %v, want nil", got)
	}

	sel.Clear()
	if !sel.IsEmpty() || sel.String() != "(no selection)" {
		t.Errorf("Clear() left %q", sel.String())
	}
}

func TestSelectionStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "selection.yaml")
	store := NewSelectionStore(path)

	sel, err := store.Load()
	if err != nil {
		t.Fatalf("Load() on missing file: %v", err)
	}
	if !sel.IsEmpty() {
		t.Fatalf("Load() on missing file = %v, want empty", sel)
	}

	sel.Set("posts", []string{"7", "2"})
	if err := store.Save(sel); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.String() != "2 7" || loaded.PostsDir != "posts" {
		t.Errorf("Load() = %+v", loaded)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("selection file still exists after Clear()")
	}
	if err := store.Clear(); err != nil {
		t.Errorf("Clear() on missing file: %v", err)
	}
}

func TestSelectionStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selection.yaml")
	if err := os.WriteFile(path, []byte("heapids: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewSelectionStore(path).Load(); err == nil {
		t.Error("Load() on corrupt file should fail")
	}
}
