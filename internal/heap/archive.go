// Package heap implements the post archive and its thread graph.
//
// Posts refer to their parents through free-form reply references that are
// resolved by message id first and heapid second. The archive derives the
// thread structure (parent -> children buckets) and the cycle
// classification from the current non-deleted posts, and recomputes both
// whenever a structural mutation bumps its generation counter.
//
// An Archive is not safe for concurrent use. Embedders that share one across
// goroutines must guard every read and write with a single lock.
package heap

import (
	"fmt"
	"strconv"
	"strings"
)

// ChangeKind classifies a mutation reported to archive listeners.
type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeUpdated   ChangeKind = "updated"
	ChangeStructure ChangeKind = "structure"
	ChangeDeleted   ChangeKind = "deleted"
	ChangeUndeleted ChangeKind = "undeleted"
)

// Structural reports whether the change can alter the thread graph.
func (k ChangeKind) Structural() bool {
	return k != ChangeUpdated
}

// Change is delivered to listeners after every post mutation.
type Change struct {
	Kind       ChangeKind
	PostID     string
	Generation uint64
}

// Listener receives archive changes synchronously.
type Listener func(Change)

// Archive owns all posts and the derived thread graph.
type Archive struct {
	posts       map[string]*Post
	order       []string
	byMessageID map[string]string
	nextIndex   map[string]int
	listeners   []Listener

	generation uint64
	cache      *threadGraph
}

// NewArchive returns an empty archive.
func NewArchive() *Archive {
	return &Archive{
		posts:       make(map[string]*Post),
		byMessageID: make(map[string]string),
		nextIndex:   make(map[string]int),
	}
}

// Generation increases with every structural mutation.
func (a *Archive) Generation() uint64 { return a.generation }

// Len returns the number of posts, deleted ones included.
func (a *Archive) Len() int { return len(a.order) }

// AddListener registers fn for all subsequent changes.
func (a *Archive) AddListener(fn Listener) {
	if fn != nil {
		a.listeners = append(a.listeners, fn)
	}
}

// NextID returns the next free heapid of the form prefix+n, where n is larger
// than the number of every existing heapid with that prefix.
func (a *Archive) NextID(prefix string) string {
	next, ok := a.nextIndex[prefix]
	if !ok {
		next = 1
		for _, id := range a.order {
			if !strings.HasPrefix(id, prefix) {
				continue
			}
			n, err := strconv.Atoi(id[len(prefix):])
			if err != nil {
				continue
			}
			if n >= next {
				next = n + 1
			}
		}
	}
	for {
		id := prefix + strconv.Itoa(next)
		next++
		if _, taken := a.posts[id]; !taken {
			a.nextIndex[prefix] = next
			return id
		}
	}
}

// Add attaches a detached post under the next free heapid with the given
// prefix.
func (a *Archive) Add(p *Post, prefix string) (*Post, error) {
	if err := a.checkDetached("add", p); err != nil {
		return nil, err
	}
	if err := a.AddWithID(a.NextID(prefix), p); err != nil {
		return nil, err
	}
	return p, nil
}

// AddWithID attaches a detached post under an explicit heapid. Loaders use it
// to keep the heapids found on disk.
func (a *Archive) AddWithID(id string, p *Post) error {
	if err := a.checkDetached("add", p); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return usageErrorf("add", nil, "empty heapid")
	}
	if _, taken := a.posts[id]; taken {
		return usageErrorf("add", nil, "heapid %q already in use", id)
	}

	p.id = id
	p.archive = a
	a.posts[id] = p
	a.order = append(a.order, id)
	if mid := p.header.MessageID; mid != "" {
		if _, ok := a.byMessageID[mid]; !ok {
			a.byMessageID[mid] = id
		}
	}
	for prefix, next := range a.nextIndex {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		if n, err := strconv.Atoi(id[len(prefix):]); err == nil && n >= next {
			a.nextIndex[prefix] = n + 1
		}
	}

	p.modified = true
	a.postChanged(p, ChangeAdded)
	return nil
}

func (a *Archive) checkDetached(op string, p *Post) error {
	if p == nil {
		return usageErrorf(op, nil, "nil post")
	}
	if p.archive != nil {
		return usageErrorf(op, nil, "post %q already belongs to an archive", p.id)
	}
	return nil
}

// Post returns the post with the given heapid, deleted or not.
func (a *Archive) Post(id string) (*Post, bool) {
	p, ok := a.posts[id]
	return p, ok
}

// Lookup is Post with an error for unknown heapids.
func (a *Archive) Lookup(id string) (*Post, error) {
	p, ok := a.posts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, id)
	}
	return p, nil
}

// PostByMessageID returns the post first registered with the message id.
func (a *Archive) PostByMessageID(messageID string) (*Post, bool) {
	id, ok := a.byMessageID[messageID]
	if !ok {
		return nil, false
	}
	return a.posts[id], true
}

// AllPosts returns every post in insertion order, deleted ones included.
func (a *Archive) AllPosts() []*Post {
	out := make([]*Post, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.posts[id])
	}
	return out
}

// Posts returns the non-deleted posts in insertion order.
func (a *Archive) Posts() []*Post {
	out := make([]*Post, 0, len(a.order))
	for _, id := range a.order {
		if p := a.posts[id]; !p.IsDeleted() {
			out = append(out, p)
		}
	}
	return out
}

// Modified returns the posts that changed since they were last saved.
func (a *Archive) Modified() []*Post {
	var out []*Post
	for _, id := range a.order {
		if p := a.posts[id]; p.modified {
			out = append(out, p)
		}
	}
	return out
}

// Delete marks the post with the given heapid deleted.
func (a *Archive) Delete(id string) error {
	p, err := a.mutable("delete", id)
	if err != nil {
		return err
	}
	p.Delete()
	return nil
}

// Undelete clears the deleted flag of the post with the given heapid.
func (a *Archive) Undelete(id string) error {
	p, err := a.mutable("undelete", id)
	if err != nil {
		return err
	}
	p.Undelete()
	return nil
}

// SetParent changes the reply reference of the post with the given heapid.
func (a *Archive) SetParent(id, parent string) error {
	p, err := a.mutable("set parent", id)
	if err != nil {
		return err
	}
	p.SetParent(parent)
	return nil
}

func (a *Archive) mutable(op, id string) (*Post, error) {
	p, ok := a.posts[id]
	if !ok {
		return nil, usageErrorf(op, ErrPostNotFound, "unknown heapid %q", id)
	}
	return p, nil
}

// reindexMessageID keeps the first-writer-wins message id index consistent
// after p changed its message id from old.
func (a *Archive) reindexMessageID(p *Post, old string) {
	if old != "" && a.byMessageID[old] == p.id {
		delete(a.byMessageID, old)
		for _, id := range a.order {
			if a.posts[id].header.MessageID == old {
				a.byMessageID[old] = id
				break
			}
		}
	}
	if mid := p.header.MessageID; mid != "" {
		if _, ok := a.byMessageID[mid]; !ok {
			a.byMessageID[mid] = p.id
		}
	}
}

func (a *Archive) postChanged(p *Post, kind ChangeKind) {
	if kind.Structural() {
		a.generation++
	}
	change := Change{Kind: kind, PostID: p.id, Generation: a.generation}
	for _, fn := range a.listeners {
		fn(change)
	}
}

// resolveParent applies the reply resolution rules to p: message id first,
// heapid second, deleted posts never count. ok is false for roots.
func (a *Archive) resolveParent(p *Post) (string, bool) {
	ref := p.header.Parent
	if ref == "" || p.IsDeleted() {
		return "", false
	}
	if id, found := a.byMessageID[ref]; found {
		if parent := a.posts[id]; !parent.IsDeleted() {
			return id, true
		}
	}
	if parent, found := a.posts[ref]; found && !parent.IsDeleted() {
		return ref, true
	}
	return "", false
}

// Parent returns the resolved parent of p, or nil for roots, deleted posts
// and posts of other archives.
func (a *Archive) Parent(p *Post) *Post {
	if p == nil || p.archive != a {
		return nil
	}
	id, ok := a.resolveParent(p)
	if !ok {
		return nil
	}
	return a.posts[id]
}

// Root returns the root of the thread containing p, or nil when the
// ancestor chain of p never reaches a root.
func (a *Archive) Root(p *Post) *Post {
	if p == nil || p.archive != a || p.IsDeleted() {
		return nil
	}
	if a.IsCyclic(p) {
		return nil
	}
	for {
		parent := a.Parent(p)
		if parent == nil {
			return p
		}
		p = parent
	}
}

// All returns the set of non-deleted posts.
func (a *Archive) All() *PostSet {
	s := a.emptySet()
	for _, p := range a.Posts() {
		s.ids[p.id] = struct{}{}
	}
	return s
}
