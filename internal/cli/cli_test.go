package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/heapkeeper/internal/heap"
	"github.com/tOgg1/heapkeeper/internal/testutil"
)

type testEnv struct {
	root     string
	postsDir string
}

// newTestEnv isolates config lookup and state in a temp dir and seeds
//
//	1 -> 2 -> 3
//	4 <-> 5
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := testutil.Isolate(t)
	t.Setenv("HEAP_PATHS_STATE_DIR", filepath.Join(root, "state"))
	t.Setenv("HEAP_DATABASE_PATH", filepath.Join(root, "state", "heap.db"))
	t.Setenv("NO_COLOR", "")

	env := &testEnv{root: root, postsDir: filepath.Join(root, "posts")}
	require.NoError(t, os.MkdirAll(env.postsDir, 0o755))
	env.write(t, "1", "Author: ada\nSubject: hello\nMessage-Id: <m1>\nDate: Mon, 02 Jan 2006 15:04:05 +0000\n\nfirst\n")
	env.write(t, "2", "Author: bob\nSubject: Re: hello\nParent: <m1>\nDate: Tue, 03 Jan 2006 15:04:05 +0000\n\nsecond\n")
	env.write(t, "3", "Author: cy\nSubject: other\nParent: 2\nDate: Wed, 04 Jan 2006 15:04:05 +0000\n\nthird\n")
	env.write(t, "4", "Subject: loop\nParent: 5\n\n")
	env.write(t, "5", "Subject: loop\nParent: 4\n\n")
	return env
}

func (e *testEnv) write(t *testing.T, heapid, content string) {
	testutil.WritePost(t, e.postsDir, heapid, content)
}

func (e *testEnv) read(t *testing.T, heapid string) string {
	return testutil.ReadPost(t, e.postsDir, heapid)
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runWithInput(t, "", args...)
}

func (e *testEnv) runWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd("test")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetArgs(append([]string{"--posts", e.postsDir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err)
	return out
}

func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

func decodePosts(t *testing.T, out string) []postJSON {
	t.Helper()
	var posts []postJSON
	require.NoError(t, json.Unmarshal([]byte(out), &posts))
	return posts
}

func heapids(posts []postJSON) []string {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.Heapid)
	}
	return ids
}

func TestRootCommandAliases(t *testing.T) {
	root := newRootCmd("dev")

	found, _, err := root.Find([]string{"list"})
	require.NoError(t, err)
	assert.Equal(t, "ls", found.Name())

	found, _, err = root.Find([]string{"rm"})
	require.NoError(t, err)
	assert.Equal(t, "delete", found.Name())

	found, _, err = root.Find([]string{"tag", "propagate"})
	require.NoError(t, err)
	assert.Equal(t, "propagate", found.Name())
}

func TestListAndThread(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun(t, "ls")
	assert.Contains(t, out, "HEAPID")
	assert.Contains(t, out, "ada")

	posts := decodePosts(t, env.mustRun(t, "--json", "ls", "3", "1"))
	assert.Equal(t, []string{"1", "3"}, heapids(posts))
	assert.Equal(t, "2", posts[1].Resolved)

	out = env.mustRun(t, "thread")
	assert.Equal(t, ""+
		"<1> ada hello\n"+
		"  <2> bob\n"+
		"    <3> cy other\n"+
		"cycles:\n"+
		"  <4> loop\n"+
		"  <5> loop\n", out)

	out = env.mustRun(t, "thread", "2")
	assert.Equal(t, "<2> bob\n  <3> cy other\n", out)

	var items []itemJSON
	require.NoError(t, json.Unmarshal([]byte(env.mustRun(t, "--json", "thread", "2")), &items))
	require.Len(t, items, 4)
	assert.Equal(t, itemJSON{Pos: "begin", Heapid: "3", Level: 1}, items[1])
}

func TestRootsAndCycles(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, []string{"1"}, heapids(decodePosts(t, env.mustRun(t, "--json", "roots"))))

	cycles := decodePosts(t, env.mustRun(t, "--json", "cycles"))
	assert.Equal(t, []string{"4", "5"}, heapids(cycles))
	assert.True(t, cycles[0].Cyclic)
}

func TestClosures(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, []string{"1", "2"}, heapids(decodePosts(t, env.mustRun(t, "--json", "up", "2"))))
	assert.Equal(t, []string{"2", "3"}, heapids(decodePosts(t, env.mustRun(t, "--json", "down", "2"))))
	assert.Equal(t, []string{"1", "2", "3"}, heapids(decodePosts(t, env.mustRun(t, "--json", "exp", "3"))))
	assert.Equal(t, []string{"4", "5"}, heapids(decodePosts(t, env.mustRun(t, "--json", "exp", "4"))))
}

func TestUnknownHeapidIsUsageError(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "down", "99")
	require.Error(t, err)
	assert.Equal(t, ExitCodeUsage, exitCode(err))

	_, err = env.run(t, "exp")
	assert.Equal(t, ExitCodeUsage, exitCode(err))
}

func TestDeleteRecursiveSaves(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun(t, "delete", "-r", "2")
	assert.Equal(t, "delete: 2 3\n", out)
	assert.Contains(t, env.read(t, "2"), "Flag: deleted")
	assert.NotContains(t, env.read(t, "3"), "other")

	// Posts without a date sort first.
	assert.Equal(t, []string{"4", "5", "1"}, heapids(decodePosts(t, env.mustRun(t, "--json", "ls"))))
	assert.Len(t, decodePosts(t, env.mustRun(t, "--json", "ls", "--all")), 5)

	out = env.mustRun(t, "undelete", "2")
	assert.Equal(t, "undelete: 2\n", out)
	assert.Equal(t, []string{"2", "1"}, heapids(decodePosts(t, env.mustRun(t, "--json", "roots"))))
}

func TestTagCommands(t *testing.T) {
	env := newTestEnv(t)

	var res editResult
	require.NoError(t, json.Unmarshal([]byte(env.mustRun(t, "--json", "tag", "add", "-r", "1", "--tags", "a,b")), &res))
	assert.Equal(t, []string{"1", "2", "3"}, res.Touched)
	assert.Equal(t, 3, res.Saved)
	assert.Contains(t, env.read(t, "3"), "Tag: a\nTag: b\n")

	env.mustRun(t, "tag", "remove", "3", "-t", "a")
	posts := decodePosts(t, env.mustRun(t, "--json", "ls", "3"))
	assert.Equal(t, []string{"b"}, posts[0].Tags)

	env.mustRun(t, "tag", "set", "4", "-t", "x")
	env.mustRun(t, "tag", "propagate", "4")
	posts = decodePosts(t, env.mustRun(t, "--json", "ls", "5"))
	assert.Equal(t, []string{"x"}, posts[0].Tags)

	_, err := env.run(t, "tag", "add", "1")
	assert.Equal(t, ExitCodeUsage, exitCode(err))
}

func TestSubjectCommands(t *testing.T) {
	env := newTestEnv(t)

	env.mustRun(t, "subject", "set", "new topic", "3")
	assert.Contains(t, env.read(t, "3"), "Subject: new topic\n")

	env.mustRun(t, "subject", "capitalize", "-r", "1")
	assert.Contains(t, env.read(t, "1"), "Subject: Hello\n")
	assert.Contains(t, env.read(t, "3"), "Subject: New topic\n")

	env.mustRun(t, "subject", "propagate", "1")
	assert.Contains(t, env.read(t, "3"), "Subject: Hello\n")
}

func TestJoin(t *testing.T) {
	env := newTestEnv(t)

	env.mustRun(t, "join", "3", "4")
	assert.Contains(t, env.read(t, "4"), "Parent: 3\n")

	out := env.mustRun(t, "--json", "cycles")
	assert.Empty(t, decodePosts(t, out))

	_, err := env.run(t, "join", "1")
	assert.Error(t, err)
}

func TestNewPost(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.runWithInput(t, "piped body\n", "new", "-s", "[idea] fresh", "--normalize", "-p", "<m1>", "--author", "dee")
	require.NoError(t, err)
	assert.Equal(t, "6\n", out)

	content := env.read(t, "6")
	assert.Contains(t, content, "Subject: fresh\n")
	assert.Contains(t, content, "Tag: idea\n")
	assert.True(t, strings.HasSuffix(content, "\n\npiped body\n"))

	posts := decodePosts(t, env.mustRun(t, "--json", "ls", "6"))
	assert.Equal(t, "1", posts[0].Resolved)

	out = env.mustRun(t, "new", "--prefix", "x", "body")
	assert.Equal(t, "x1\n", out)
}

func TestSelection(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, "(no selection)\n", env.mustRun(t, "select"))
	assert.Equal(t, "2\n3\n", env.mustRun(t, "select", "3", "2"))

	assert.Equal(t, []string{"1", "2", "3"}, heapids(decodePosts(t, env.mustRun(t, "--json", "up"))))
	env.mustRun(t, "tag", "add", "-t", "sel")
	assert.Contains(t, env.read(t, "2"), "Tag: sel")
	assert.NotContains(t, env.read(t, "1"), "Tag: sel")

	assert.Equal(t, "(no selection)\n", env.mustRun(t, "select", "--clear"))
	_, err := env.run(t, "select", "99")
	assert.Equal(t, ExitCodeUsage, exitCode(err))
}

func TestExportImport(t *testing.T) {
	env := newTestEnv(t)
	dbPath := filepath.Join(env.root, "snap.db")

	out := env.mustRun(t, "export", dbPath)
	assert.Contains(t, out, "exported 5 posts")

	target := filepath.Join(env.root, "restored")
	cmd := newRootCmd("test")
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--posts", target, "import", dbPath})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "imported 5 posts")

	data, err := os.ReadFile(filepath.Join(target, "3.post"))
	require.NoError(t, err)
	assert.Equal(t, env.read(t, "3"), string(data))

	_, err = env.run(t, "import", dbPath)
	assert.Equal(t, ExitCodeUsage, exitCode(err))
}

func TestJournalHistory(t *testing.T) {
	env := newTestEnv(t)

	env.mustRun(t, "--journal", "tag", "add", "2", "-t", "x")

	out := env.mustRun(t, "--json", "history", "2")
	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "post.updated", list[0]["type"])

	out = env.mustRun(t, "history")
	assert.Contains(t, out, "archive.loaded")
	assert.Contains(t, out, "archive.saved")
}

func TestConfigShow(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun(t, "config", "show")
	assert.Contains(t, out, "posts_dir: "+env.postsDir)
	assert.Contains(t, out, "subject_width: 60")

	require.NoError(t, os.WriteFile(filepath.Join(env.root, "heap.yaml"), []byte("render:\n  indent: 4\n"), 0o644))
	out = env.mustRun(t, "config", "show")
	assert.Contains(t, out, "indent: 4")
	assert.Contains(t, out, "# ")

	_, err := env.run(t, "--log-format", "xml", "config", "show")
	assert.Equal(t, ExitCodeUsage, exitCode(err))
}

func TestWatchReportsUntilCanceled(t *testing.T) {
	env := newTestEnv(t)
	cmd := newRootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--posts", env.postsDir, "watch"})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Equal(t, "5 posts, 2 on cycles\n", out.String())
}

func TestHeapError(t *testing.T) {
	assert.NoError(t, heapError(nil))

	err := heapError(&heap.UsageError{Op: "post set", Msg: "unknown heapid", Err: heap.ErrPostNotFound})
	assert.Equal(t, ExitCodeUsage, exitCode(err))
	assert.ErrorIs(t, err, heap.ErrPostNotFound)

	assert.Equal(t, ExitCodeFailure, exitCode(heapError(errors.New("disk full"))))

	wrapped := Exitf(ExitCodeUsage, "bad")
	assert.Same(t, wrapped, heapError(wrapped))
	assert.Equal(t, "exit status 3", (&ExitError{Code: 3}).Error())
}
