package heap

import (
	"net/mail"
	"regexp"
	"slices"
	"strings"
	"time"
)

// FlagDeleted is the flag carried by deleted posts.
const FlagDeleted = "deleted"

// Header holds the header fields of a post as they appear in a post file.
type Header struct {
	Author    string
	Subject   string
	MessageID string
	Parent    string
	Date      string
	Tags      []string
	Flags     []string
	Refs      []string
	// Extra keeps header keys the heap does not interpret, so they survive
	// a load/save round trip.
	Extra map[string][]string
}

// Clone returns a deep copy of the header.
func (h Header) Clone() Header {
	out := h
	out.Tags = slices.Clone(h.Tags)
	out.Flags = slices.Clone(h.Flags)
	out.Refs = slices.Clone(h.Refs)
	if h.Extra != nil {
		out.Extra = make(map[string][]string, len(h.Extra))
		for k, v := range h.Extra {
			out.Extra[k] = slices.Clone(v)
		}
	}
	return out
}

// Post is a single message on the heap.
//
// A post becomes part of an archive through Archive.Add or Archive.AddWithID,
// which assign its heapid. Every setter marks the post modified and reports
// the change to the owning archive.
type Post struct {
	id       string
	archive  *Archive
	header   Header
	body     string
	modified bool

	tsValid bool
	ts      int64
	meta    map[string]string
}

// NewPost creates a detached post from a header and body.
func NewPost(h Header, body string) *Post {
	h = h.Clone()
	h.Tags = normalizeSet(h.Tags)
	h.Flags = normalizeSet(h.Flags)
	return &Post{
		header:   h,
		body:     normalizeBody(body),
		modified: true,
	}
}

// normalizeSet trims, drops empty entries, sorts and de-duplicates. An empty
// set is nil.
func normalizeSet(values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// normalizeBody strips surrounding whitespace and terminates the body with
// exactly one newline.
func normalizeBody(body string) string {
	body = strings.ReplaceAll(body, "\r", "")
	return strings.TrimSpace(body) + "\n"
}

func (p *Post) ID() string { return p.id }

// Archive returns the archive owning the post, or nil for a detached post.
func (p *Post) Archive() *Archive { return p.archive }

// Header returns a copy of the post header.
func (p *Post) Header() Header { return p.header.Clone() }

func (p *Post) Author() string    { return p.header.Author }
func (p *Post) MessageID() string { return p.header.MessageID }
func (p *Post) ParentRef() string { return p.header.Parent }
func (p *Post) Date() string      { return p.header.Date }
func (p *Post) Body() string      { return p.body }

// Tags returns the sorted tag set. The slice must not be modified.
func (p *Post) Tags() []string { return p.header.Tags }

// Flags returns the sorted flag set. The slice must not be modified.
func (p *Post) Flags() []string { return p.header.Flags }

func (p *Post) Refs() []string { return p.header.Refs }

// Modified reports whether the post changed since it was last saved.
func (p *Post) Modified() bool { return p.modified }

// MarkClean records that the post has been persisted.
func (p *Post) MarkClean() { p.modified = false }

func (p *Post) IsDeleted() bool {
	_, found := slices.BinarySearch(p.header.Flags, FlagDeleted)
	return found
}

func (p *Post) HasTag(tag string) bool {
	_, found := slices.BinarySearch(p.header.Tags, tag)
	return found
}

// HasTagFrom reports whether the post has at least one of the tags.
func (p *Post) HasTagFrom(tags ...string) bool {
	for _, tag := range tags {
		if p.HasTag(tag) {
			return true
		}
	}
	return false
}

// RealSubject is the subject as stored.
func (p *Post) RealSubject() string { return p.header.Subject }

// Subject is the stored subject without a leading "Re:".
func (p *Post) Subject() string {
	return strings.TrimSpace(stripReply(p.header.Subject))
}

func stripReply(subject string) string {
	if len(subject) >= 3 && strings.EqualFold(subject[:3], "re:") {
		return subject[3:]
	}
	return subject
}

// Timestamp returns the unix time of the post date, or 0 when the post has
// no parseable date.
func (p *Post) Timestamp() int64 {
	if !p.tsValid {
		p.ts = 0
		if t, ok := parseDate(p.header.Date); ok {
			p.ts = t.Unix()
		}
		p.tsValid = true
	}
	return p.ts
}

// Time returns the post date. ok is false when the post has no date.
func (p *Post) Time() (time.Time, bool) {
	ts := p.Timestamp()
	if ts == 0 {
		return time.Time{}, false
	}
	return time.Unix(ts, 0).UTC(), true
}

func parseDate(date string) (time.Time, bool) {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Time{}, false
	}
	t, err := mail.ParseDate(date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

var metaLine = regexp.MustCompile(`^\[ *([^ ]*)( (.*))?\]$`)

// Meta returns the meta texts of the body: lines consisting of "[key]" or
// "[key value]". Keys without a value map to "".
func (p *Post) Meta() map[string]string {
	if p.meta == nil {
		p.meta = make(map[string]string)
		for _, line := range strings.Split(p.body, "\n") {
			m := metaLine.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			p.meta[strings.TrimSpace(m[1])] = strings.TrimSpace(m[3])
		}
	}
	return p.meta
}

func (p *Post) String() string {
	return "<post '" + p.id + "'>"
}

// Setters.

func (p *Post) SetAuthor(author string) {
	p.header.Author = author
	p.touch(ChangeUpdated)
}

func (p *Post) SetSubject(subject string) {
	p.header.Subject = subject
	p.touch(ChangeUpdated)
}

// SetMessageID changes the message id and re-registers it in the archive
// index.
func (p *Post) SetMessageID(messageID string) {
	old := p.header.MessageID
	p.header.MessageID = messageID
	if p.archive != nil {
		p.archive.reindexMessageID(p, old)
	}
	p.touch(ChangeStructure)
}

// SetParent sets the reply reference: a message id, a heapid or "".
func (p *Post) SetParent(parent string) {
	p.header.Parent = parent
	p.touch(ChangeStructure)
}

func (p *Post) SetDate(date string) {
	p.header.Date = date
	p.touch(ChangeStructure)
}

func (p *Post) SetTags(tags []string) {
	p.header.Tags = normalizeSet(tags)
	p.touch(ChangeUpdated)
}

func (p *Post) AddTag(tag string) {
	p.SetTags(append(slices.Clone(p.header.Tags), tag))
}

func (p *Post) RemoveTag(tag string) {
	p.SetTags(slices.DeleteFunc(slices.Clone(p.header.Tags), func(t string) bool { return t == tag }))
}

func (p *Post) SetFlags(flags []string) {
	before := p.IsDeleted()
	p.header.Flags = normalizeSet(flags)
	p.touch(flagChange(before, p.IsDeleted()))
}

func (p *Post) SetRefs(refs []string) {
	p.header.Refs = slices.Clone(refs)
	p.touch(ChangeUpdated)
}

func (p *Post) SetBody(body string) {
	p.body = normalizeBody(body)
	p.touch(ChangeUpdated)
}

// Delete wipes every field except the message id and marks the post
// deleted. The heapid stays reserved.
func (p *Post) Delete() {
	p.header = Header{
		MessageID: p.header.MessageID,
		Flags:     []string{FlagDeleted},
	}
	p.body = ""
	p.touch(ChangeDeleted)
}

// Undelete removes the deleted flag. The content wiped by Delete is not
// restored.
func (p *Post) Undelete() {
	if !p.IsDeleted() {
		return
	}
	p.SetFlags(slices.DeleteFunc(slices.Clone(p.header.Flags), func(f string) bool { return f == FlagDeleted }))
}

// NormalizeSubject moves leading "[tag]" groups of the subject into the
// tag set and drops the "Re:" prefix.
func (p *Post) NormalizeSubject() {
	subject, tags := ParseSubject(p.header.Subject)
	p.header.Subject = subject
	p.header.Tags = normalizeSet(append(slices.Clone(p.header.Tags), tags...))
	p.touch(ChangeUpdated)
}

// ParseSubject splits a subject such as "Re: [a] [b] hello" into the real
// subject ("hello") and its leading tags (["a", "b"]).
func ParseSubject(subject string) (string, []string) {
	subject = strings.TrimSpace(stripReply(strings.TrimSpace(subject)))

	var tags []string
	open := -1
	i := 0
scan:
	for ; i < len(subject); i++ {
		switch c := subject[i]; {
		case c == '[' && open < 0:
			open = i
		case c == ']' && open >= 0:
			tags = append(tags, strings.TrimSpace(subject[open+1:i]))
			open = -1
		case c != ' ' && open < 0:
			break scan
		}
	}
	if open >= 0 {
		// Unterminated bracket: it belongs to the subject.
		i = open
	}
	return strings.TrimSpace(subject[i:]), tags
}

func flagChange(wasDeleted, isDeleted bool) ChangeKind {
	switch {
	case !wasDeleted && isDeleted:
		return ChangeDeleted
	case wasDeleted && !isDeleted:
		return ChangeUndeleted
	default:
		return ChangeStructure
	}
}

func (p *Post) touch(kind ChangeKind) {
	p.modified = true
	p.tsValid = false
	p.meta = nil
	if p.archive != nil {
		p.archive.postChanged(p, kind)
	}
}
