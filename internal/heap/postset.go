package heap

import (
	"slices"
)

// PostSet is a set of heapids bound to one archive. Closures and set algebra
// return new sets and never modify their operands.
type PostSet struct {
	archive *Archive
	ids     map[string]struct{}
}

// NewPostSet returns a set of the given posts. A nil post or a post of
// another archive is a usage error.
func (a *Archive) NewPostSet(posts ...*Post) (*PostSet, error) {
	s := a.emptySet()
	for _, p := range posts {
		if err := s.Add(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (a *Archive) emptySet() *PostSet {
	return &PostSet{archive: a, ids: make(map[string]struct{})}
}

// PostSetOf returns the set of the given heapids. Unknown heapids are a usage
// error.
func (a *Archive) PostSetOf(ids ...string) (*PostSet, error) {
	s := a.emptySet()
	for _, id := range ids {
		if _, ok := a.posts[id]; !ok {
			return nil, usageErrorf("post set", ErrPostNotFound, "unknown heapid %q", id)
		}
		s.ids[id] = struct{}{}
	}
	return s, nil
}

func (s *PostSet) Archive() *Archive { return s.archive }

func (s *PostSet) Len() int { return len(s.ids) }

func (s *PostSet) IsEmpty() bool { return len(s.ids) == 0 }

func (s *PostSet) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Add inserts a post of the same archive.
func (s *PostSet) Add(p *Post) error {
	if p == nil || p.archive != s.archive {
		return usageErrorf("add to post set", nil, "post belongs to another archive")
	}
	s.ids[p.id] = struct{}{}
	return nil
}

// Remove drops a heapid. Absent heapids are ignored.
func (s *PostSet) Remove(id string) {
	delete(s.ids, id)
}

func (s *PostSet) Clone() *PostSet {
	out := &PostSet{archive: s.archive, ids: make(map[string]struct{}, len(s.ids))}
	for id := range s.ids {
		out.ids[id] = struct{}{}
	}
	return out
}

// IDs returns the heapids in heapid order.
func (s *PostSet) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.SortFunc(out, CompareIDs)
	return out
}

// Sorted returns the posts in post order.
func (s *PostSet) Sorted() []*Post {
	out := make([]*Post, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, s.archive.posts[id])
	}
	slices.SortFunc(out, ComparePosts)
	return out
}

// Forall calls fn for every post in post order.
func (s *PostSet) Forall(fn func(*Post)) {
	for _, p := range s.Sorted() {
		fn(p)
	}
}

// Filter returns the posts for which keep returns true.
func (s *PostSet) Filter(keep func(*Post) bool) *PostSet {
	out := s.archive.emptySet()
	for id := range s.ids {
		if keep(s.archive.posts[id]) {
			out.ids[id] = struct{}{}
		}
	}
	return out
}

// checkMembers rejects sets holding heapids the archive no longer knows.
func (s *PostSet) checkMembers(op string) error {
	for id := range s.ids {
		if _, ok := s.archive.posts[id]; !ok {
			return usageErrorf(op, ErrPostNotFound, "unknown heapid %q", id)
		}
	}
	return nil
}

// Ascendants returns the posts of s together with all their ancestors.
func (s *PostSet) Ascendants() (*PostSet, error) {
	if err := s.checkMembers("ascendants"); err != nil {
		return nil, err
	}
	return s.archive.ascendantsOf(s.keys()), nil
}

// Descendants returns the posts of s together with all their descendants.
func (s *PostSet) Descendants() (*PostSet, error) {
	if err := s.checkMembers("descendants"); err != nil {
		return nil, err
	}
	return s.archive.descendantsOf(s.keys()), nil
}

// Exp returns every post of the threads touched by s: the descendants of the
// ascendants.
func (s *PostSet) Exp() (*PostSet, error) {
	if err := s.checkMembers("exp"); err != nil {
		return nil, err
	}
	up := s.archive.ascendantsOf(s.keys())
	return s.archive.descendantsOf(up.keys()), nil
}

func (s *PostSet) keys() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

func (a *Archive) ascendantsOf(ids []string) *PostSet {
	g := a.graph()
	out := a.emptySet()
	for _, id := range ids {
		for {
			if _, seen := out.ids[id]; seen {
				break
			}
			out.ids[id] = struct{}{}
			parent, ok := g.parent[id]
			if !ok {
				break
			}
			id = parent
		}
	}
	return out
}

func (a *Archive) descendantsOf(ids []string) *PostSet {
	g := a.graph()
	out := a.emptySet()
	stack := slices.Clone(ids)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := out.ids[id]; seen {
			continue
		}
		out.ids[id] = struct{}{}
		for _, child := range g.buckets[id] {
			if _, seen := out.ids[child]; !seen {
				stack = append(stack, child)
			}
		}
	}
	return out
}

func (s *PostSet) sameArchive(op string, other *PostSet) error {
	if other == nil || other.archive != s.archive {
		return usageErrorf(op, nil, "post sets belong to different archives")
	}
	return nil
}

// Union returns the posts in s or other.
func (s *PostSet) Union(other *PostSet) (*PostSet, error) {
	if err := s.sameArchive("union", other); err != nil {
		return nil, err
	}
	out := s.Clone()
	for id := range other.ids {
		out.ids[id] = struct{}{}
	}
	return out, nil
}

// Intersection returns the posts in both s and other.
func (s *PostSet) Intersection(other *PostSet) (*PostSet, error) {
	if err := s.sameArchive("intersection", other); err != nil {
		return nil, err
	}
	out := s.archive.emptySet()
	for id := range s.ids {
		if _, ok := other.ids[id]; ok {
			out.ids[id] = struct{}{}
		}
	}
	return out, nil
}

// Difference returns the posts in s but not in other.
func (s *PostSet) Difference(other *PostSet) (*PostSet, error) {
	if err := s.sameArchive("difference", other); err != nil {
		return nil, err
	}
	out := s.archive.emptySet()
	for id := range s.ids {
		if _, ok := other.ids[id]; !ok {
			out.ids[id] = struct{}{}
		}
	}
	return out, nil
}

// SymmetricDifference returns the posts in exactly one of s and other.
func (s *PostSet) SymmetricDifference(other *PostSet) (*PostSet, error) {
	if err := s.sameArchive("symmetric difference", other); err != nil {
		return nil, err
	}
	out := s.archive.emptySet()
	for id := range s.ids {
		if _, ok := other.ids[id]; !ok {
			out.ids[id] = struct{}{}
		}
	}
	for id := range other.ids {
		if _, ok := s.ids[id]; !ok {
			out.ids[id] = struct{}{}
		}
	}
	return out, nil
}

// Equal compares the heapids of two sets of the same archive.
func (s *PostSet) Equal(other *PostSet) (bool, error) {
	if err := s.sameArchive("equal", other); err != nil {
		return false, err
	}
	if len(s.ids) != len(other.ids) {
		return false, nil
	}
	for id := range s.ids {
		if _, ok := other.ids[id]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// IsSubset reports whether every post of s is in other.
func (s *PostSet) IsSubset(other *PostSet) (bool, error) {
	if err := s.sameArchive("subset", other); err != nil {
		return false, err
	}
	for id := range s.ids {
		if _, ok := other.ids[id]; !ok {
			return false, nil
		}
	}
	return true, nil
}
