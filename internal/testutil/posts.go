// Package testutil holds fixtures shared by the heap package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// PostExt is the extension of post files.
const PostExt = ".post"

// WritePost writes the post file of heapid into dir.
func WritePost(t testing.TB, dir, heapid, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, heapid+PostExt), []byte(content), 0o644); err != nil {
		t.Fatalf("write post %s: %v", heapid, err)
	}
}

// ReadPost returns the content of the post file of heapid in dir.
func ReadPost(t testing.TB, dir, heapid string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, heapid+PostExt))
	if err != nil {
		t.Fatalf("read post %s: %v", heapid, err)
	}
	return string(data)
}

// PostDir creates a temporary posts directory holding the given post files,
// keyed by heapid.
func PostDir(t testing.TB, posts map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for heapid, content := range posts {
		WritePost(t, dir, heapid, content)
	}
	return dir
}

// Isolate points HOME and XDG_CONFIG_HOME at a temp directory and makes it
// the working directory, so no user config leaks into a test. It returns the
// directory.
func Isolate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("HOME", root)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "xdg"))
	t.Chdir(root)
	return root
}
