package heap

import "strconv"

// Pos is the position of a PostItem in a walk.
type Pos string

const (
	PosBegin Pos = "begin"
	PosMain  Pos = "main"
	PosEnd   Pos = "end"
	PosFlat  Pos = "flat"
)

// PostItem is one step of a thread walk.
type PostItem struct {
	Pos   Pos
	Post  *Post
	Level int
}

func (it PostItem) String() string {
	return "<PostItem: pos=" + string(it.Pos) + ", heapid='" + it.Post.id + "', level=" + strconv.Itoa(it.Level) + ">"
}

// WalkOptions tunes Walk.
type WalkOptions struct {
	// Main adds a PosMain item right after every PosBegin item.
	Main bool
}

// Walk walks the thread of root depth first and returns a PosBegin item when
// the walk enters a post and a PosEnd item when it leaves its subthread. With
// a nil root every root thread is walked in post order, each root at level 0.
//
// A child that is already on the current path is not entered, so the walk
// terminates whatever the bucket contents are.
func (a *Archive) Walk(root *Post, opts WalkOptions) []PostItem {
	g := a.graph()

	var stack []PostItem
	if root == nil {
		roots := g.buckets[RootBucket]
		for i := len(roots) - 1; i >= 0; i-- {
			stack = append(stack, PostItem{Pos: PosBegin, Post: a.posts[roots[i]]})
		}
	} else {
		if root.archive != a || root.IsDeleted() {
			return nil
		}
		stack = append(stack, PostItem{Pos: PosBegin, Post: root})
	}

	var out []PostItem
	onPath := make(map[string]struct{})
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, item)

		if item.Pos == PosEnd {
			delete(onPath, item.Post.id)
			continue
		}
		if opts.Main {
			out = append(out, PostItem{Pos: PosMain, Post: item.Post, Level: item.Level})
		}
		onPath[item.Post.id] = struct{}{}
		stack = append(stack, PostItem{Pos: PosEnd, Post: item.Post, Level: item.Level})

		children := g.buckets[item.Post.id]
		for i := len(children) - 1; i >= 0; i-- {
			if _, cycle := onPath[children[i]]; cycle {
				continue
			}
			stack = append(stack, PostItem{Pos: PosBegin, Post: a.posts[children[i]], Level: item.Level + 1})
		}
	}
	return out
}

// IterThread returns the posts of the thread of root in pre-order. A nil root
// yields every root thread in turn.
func (a *Archive) IterThread(root *Post) []*Post {
	var out []*Post
	for _, item := range a.Walk(root, WalkOptions{}) {
		if item.Pos == PosBegin {
			out = append(out, item.Post)
		}
	}
	return out
}

// WalkCycles returns a PosFlat item for every cyclic post in post order.
func (a *Archive) WalkCycles() []PostItem {
	ids := a.graph().cycles
	out := make([]PostItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, PostItem{Pos: PosFlat, Post: a.posts[id]})
	}
	return out
}
