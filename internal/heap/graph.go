package heap

import (
	"maps"
	"slices"
)

// RootBucket is the thread structure key of posts without a resolvable
// parent. Heapids are never empty, so it cannot collide with a post.
const RootBucket = ""

type cycleStatus uint8

const (
	statusUnvisited cycleStatus = iota
	statusInProgress
	statusAcyclic
	statusCyclic
)

// threadGraph is the derived thread structure of one archive generation.
type threadGraph struct {
	generation uint64
	parent     map[string]string   // heapid -> resolved parent heapid, roots absent
	buckets    map[string][]string // RootBucket or heapid -> ordered children
	status     map[string]cycleStatus
	cycles     []string // cyclic heapids in post order
}

// graph returns the thread graph of the current generation, rebuilding it
// when a structural mutation happened since the last build.
func (a *Archive) graph() *threadGraph {
	if a.cache == nil || a.cache.generation != a.generation {
		a.cache = buildThreadGraph(a)
	}
	return a.cache
}

func buildThreadGraph(a *Archive) *threadGraph {
	posts := a.Posts()
	g := &threadGraph{
		generation: a.generation,
		parent:     make(map[string]string, len(posts)),
		buckets:    map[string][]string{RootBucket: {}},
		status:     make(map[string]cycleStatus, len(posts)),
	}

	for _, p := range posts {
		bucket := RootBucket
		if parentID, ok := a.resolveParent(p); ok {
			g.parent[p.id] = parentID
			bucket = parentID
		}
		g.buckets[bucket] = append(g.buckets[bucket], p.id)
	}
	byID := func(x, y string) int { return ComparePosts(a.posts[x], a.posts[y]) }
	for _, children := range g.buckets {
		slices.SortFunc(children, byID)
	}

	g.classify(posts)
	for _, p := range posts {
		if g.status[p.id] == statusCyclic {
			g.cycles = append(g.cycles, p.id)
		}
	}
	slices.SortFunc(g.cycles, byID)
	return g
}

// classify walks the ancestor chain of every unvisited post and marks the
// whole walked path acyclic when it reaches a root or an acyclic post, and
// cyclic when it reaches a cyclic post or closes a loop on itself. Posts
// feeding into a cycle are therefore cyclic too.
func (g *threadGraph) classify(posts []*Post) {
	path := make([]string, 0, 16)
	for _, p := range posts {
		if g.status[p.id] != statusUnvisited {
			continue
		}
		path = path[:0]
		result := statusAcyclic
		id := p.id
		for {
			g.status[id] = statusInProgress
			path = append(path, id)

			parentID, ok := g.parent[id]
			if !ok {
				break
			}
			st := g.status[parentID]
			if st == statusUnvisited {
				id = parentID
				continue
			}
			if st == statusCyclic || st == statusInProgress {
				// In-progress posts only exist on the current path, so this is
				// a back edge.
				result = statusCyclic
			}
			break
		}
		for _, visited := range path {
			g.status[visited] = result
		}
	}
}

// Bucket returns the ordered child heapids of parentID, or of the roots for
// RootBucket.
func (a *Archive) Bucket(parentID string) []string {
	return slices.Clone(a.graph().buckets[parentID])
}

// ThreadStruct returns a copy of the whole bucket mapping. The RootBucket
// key is always present.
func (a *Archive) ThreadStruct() map[string][]string {
	g := a.graph()
	out := make(map[string][]string, len(g.buckets))
	for k, v := range g.buckets {
		out[k] = slices.Clone(v)
	}
	return out
}

// Children returns the children of p in post order, or the roots when p is
// nil.
func (a *Archive) Children(p *Post) []*Post {
	key := RootBucket
	if p != nil {
		if p.archive != a {
			return nil
		}
		key = p.id
	}
	return a.postsOf(a.graph().buckets[key])
}

// Roots returns the posts without a resolvable parent, in post order.
func (a *Archive) Roots() []*Post {
	return a.Children(nil)
}

// Threads maps every root heapid to the set of posts in its thread.
func (a *Archive) Threads() map[string]*PostSet {
	out := make(map[string]*PostSet)
	for _, root := range a.Roots() {
		out[root.id] = a.descendantsOf([]string{root.id})
	}
	return out
}

// Cycles returns the posts whose ancestor chain never reaches a root.
func (a *Archive) Cycles() *PostSet {
	s := a.emptySet()
	for _, id := range a.graph().cycles {
		s.ids[id] = struct{}{}
	}
	return s
}

func (a *Archive) HasCycle() bool {
	return len(a.graph().cycles) > 0
}

// IsCyclic reports whether p lies on or feeds into a reply cycle.
func (a *Archive) IsCyclic(p *Post) bool {
	if p == nil || p.archive != a {
		return false
	}
	return a.graph().status[p.id] == statusCyclic
}

// ResolvedParents returns heapid -> resolved parent heapid for every
// non-root, non-deleted post.
func (a *Archive) ResolvedParents() map[string]string {
	return maps.Clone(a.graph().parent)
}

func (a *Archive) postsOf(ids []string) []*Post {
	out := make([]*Post, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.posts[id])
	}
	return out
}
