// Package manip implements bulk edits over post sets.
//
// Recursive variants expand their input with PostSet.Descendants, so they
// terminate on reply cycles. Every operation reports the heapids it touched.
package manip

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/tOgg1/heapkeeper/internal/events"
	"github.com/tOgg1/heapkeeper/internal/heap"
	"github.com/tOgg1/heapkeeper/internal/logging"
)

// Editor applies bulk edits to one archive.
type Editor struct {
	archive *heap.Archive
	pub     events.Publisher
	logger  zerolog.Logger
}

// New returns an editor for a. pub must receive the archive changes, see
// events.Attach. A nil pub gets a private publisher attached to a.
func New(ctx context.Context, a *heap.Archive, pub events.Publisher) *Editor {
	if pub == nil {
		pub = events.NewInMemoryPublisher()
		events.Attach(ctx, a, pub)
	}
	return &Editor{
		archive: a,
		pub:     pub,
		logger:  logging.Component("manip"),
	}
}

func (e *Editor) Archive() *heap.Archive { return e.archive }

// run executes fn and returns the heapids touched meanwhile. An empty set
// is a no-op.
func (e *Editor) run(op string, s *heap.PostSet, fn func(*heap.PostSet) error) ([]string, error) {
	if s == nil || s.Archive() != e.archive {
		return nil, &heap.UsageError{Op: op, Msg: "post set belongs to another archive"}
	}
	if s.IsEmpty() {
		return nil, nil
	}

	l, err := events.NewModificationListener(e.pub)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = l.Close() }()

	if err := fn(s); err != nil {
		return nil, err
	}
	touched := l.Touched()
	e.logger.Debug().Str("op", op).Int("posts", s.Len()).Int("touched", len(touched)).Msg("bulk edit")
	return touched, nil
}

// recursive runs fn over the descendants of the set.
func recursive(fn func(*heap.PostSet) error) func(*heap.PostSet) error {
	return func(s *heap.PostSet) error {
		all, err := s.Descendants()
		if err != nil {
			return err
		}
		return fn(all)
	}
}

func descendantsOf(a *heap.Archive, p *heap.Post) (*heap.PostSet, error) {
	s, err := a.NewPostSet(p)
	if err != nil {
		return nil, err
	}
	return s.Descendants()
}

func forall(fn func(*heap.Post)) func(*heap.PostSet) error {
	return func(s *heap.PostSet) error {
		s.Forall(fn)
		return nil
	}
}

// Delete deletes the posts of s.
func (e *Editor) Delete(s *heap.PostSet) ([]string, error) {
	return e.run("delete", s, deleteAll)
}

// DeleteRecursive deletes the posts of s and all their descendants.
func (e *Editor) DeleteRecursive(s *heap.PostSet) ([]string, error) {
	return e.run("delete recursive", s, recursive(deleteAll))
}

// deleteAll collects the posts before deleting any of them, since deleting
// changes the thread structure the closures are computed from.
func deleteAll(s *heap.PostSet) error {
	for _, p := range s.Sorted() {
		p.Delete()
	}
	return nil
}

// Undelete clears the deleted flag of the posts of s.
func (e *Editor) Undelete(s *heap.PostSet) ([]string, error) {
	return e.run("undelete", s, forall(func(p *heap.Post) {
		if p.IsDeleted() {
			p.Undelete()
		}
	}))
}

// Join makes child a reply of parent.
func (e *Editor) Join(parent, child *heap.Post) ([]string, error) {
	if parent == nil || child == nil || parent.Archive() != e.archive || child.Archive() != e.archive {
		return nil, &heap.UsageError{Op: "join", Msg: "posts must belong to the archive"}
	}
	set, err := e.archive.NewPostSet(child)
	if err != nil {
		return nil, err
	}
	return e.run("join", set, forall(func(p *heap.Post) {
		p.SetParent(parent.ID())
	}))
}

// AddTags adds tags to the posts of s.
func (e *Editor) AddTags(s *heap.PostSet, tags []string) ([]string, error) {
	return e.run("add tags", s, forall(addTags(tags)))
}

// AddTagsRecursive adds tags to the posts of s and their descendants.
func (e *Editor) AddTagsRecursive(s *heap.PostSet, tags []string) ([]string, error) {
	return e.run("add tags recursive", s, recursive(forall(addTags(tags))))
}

// RemoveTags removes tags from the posts of s.
func (e *Editor) RemoveTags(s *heap.PostSet, tags []string) ([]string, error) {
	return e.run("remove tags", s, forall(removeTags(tags)))
}

// RemoveTagsRecursive removes tags from the posts of s and their
// descendants.
func (e *Editor) RemoveTagsRecursive(s *heap.PostSet, tags []string) ([]string, error) {
	return e.run("remove tags recursive", s, recursive(forall(removeTags(tags))))
}

// SetTags replaces the tags of the posts of s.
func (e *Editor) SetTags(s *heap.PostSet, tags []string) ([]string, error) {
	return e.run("set tags", s, forall(setTags(tags)))
}

// SetTagsRecursive replaces the tags of the posts of s and their
// descendants.
func (e *Editor) SetTagsRecursive(s *heap.PostSet, tags []string) ([]string, error) {
	return e.run("set tags recursive", s, recursive(forall(setTags(tags))))
}

// PropagateTags adds the tags of every post of s to all its descendants.
func (e *Editor) PropagateTags(s *heap.PostSet) ([]string, error) {
	return e.run("propagate tags", s, func(s *heap.PostSet) error {
		for _, src := range s.Sorted() {
			tags := src.Tags()
			sub, err := descendantsOf(e.archive, src)
			if err != nil {
				return err
			}
			sub.Forall(addTags(tags))
		}
		return nil
	})
}

func addTags(tags []string) func(*heap.Post) {
	return func(p *heap.Post) {
		p.SetTags(append(append([]string(nil), p.Tags()...), tags...))
	}
}

func removeTags(tags []string) func(*heap.Post) {
	drop := make(map[string]bool, len(tags))
	for _, t := range tags {
		drop[strings.TrimSpace(t)] = true
	}
	return func(p *heap.Post) {
		var keep []string
		for _, t := range p.Tags() {
			if !drop[t] {
				keep = append(keep, t)
			}
		}
		p.SetTags(keep)
	}
}

func setTags(tags []string) func(*heap.Post) {
	return func(p *heap.Post) {
		p.SetTags(tags)
	}
}

// SetSubject sets the subject of the posts of s.
func (e *Editor) SetSubject(s *heap.PostSet, subject string) ([]string, error) {
	return e.run("set subject", s, forall(setSubject(subject)))
}

// SetSubjectRecursive sets the subject of the posts of s and their
// descendants.
func (e *Editor) SetSubjectRecursive(s *heap.PostSet, subject string) ([]string, error) {
	return e.run("set subject recursive", s, recursive(forall(setSubject(subject))))
}

// PropagateSubject copies the subject of every post of s to all its
// descendants.
func (e *Editor) PropagateSubject(s *heap.PostSet) ([]string, error) {
	return e.run("propagate subject", s, func(s *heap.PostSet) error {
		for _, src := range s.Sorted() {
			subject := src.Subject()
			sub, err := descendantsOf(e.archive, src)
			if err != nil {
				return err
			}
			sub.Forall(setSubject(subject))
		}
		return nil
	})
}

// CapitalizeSubject capitalizes the subjects of the posts of s.
func (e *Editor) CapitalizeSubject(s *heap.PostSet) ([]string, error) {
	return e.run("capitalize subject", s, forall(capitalizeSubject))
}

// CapitalizeSubjectRecursive capitalizes the subjects of the posts of s and
// their descendants.
func (e *Editor) CapitalizeSubjectRecursive(s *heap.PostSet) ([]string, error) {
	return e.run("capitalize subject recursive", s, recursive(forall(capitalizeSubject)))
}

func setSubject(subject string) func(*heap.Post) {
	return func(p *heap.Post) {
		p.SetSubject(subject)
	}
}

func capitalizeSubject(p *heap.Post) {
	p.SetSubject(Capitalize(p.Subject()))
}

// Capitalize upper-cases the first letter of s and lower-cases the rest.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
