// Package render formats threads and post lists for the terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"

	"github.com/tOgg1/heapkeeper/internal/heap"
)

const (
	defaultSubjectWidth = 60
	defaultIndent       = 2
	dateLayout          = "2006-01-02"
	ellipsis            = "..."
)

// Options tunes the output.
type Options struct {
	Color        bool
	SubjectWidth int
	ShowDates    bool
	Indent       int
}

// Renderer writes posts to one output.
type Renderer struct {
	out    io.Writer
	opts   Options
	styles styles
}

type styles struct {
	heapid  lipgloss.Style
	author  lipgloss.Style
	subject lipgloss.Style
	date    lipgloss.Style
	tags    lipgloss.Style
	header  lipgloss.Style
	cycle   lipgloss.Style
}

// New returns a renderer for out. Zero widths fall back to the defaults.
func New(out io.Writer, opts Options) *Renderer {
	if opts.SubjectWidth <= 0 {
		opts.SubjectWidth = defaultSubjectWidth
	}
	if opts.Indent <= 0 {
		opts.Indent = defaultIndent
	}
	return &Renderer{out: out, opts: opts, styles: newStyles(out, opts.Color)}
}

func newStyles(out io.Writer, color bool) styles {
	r := lipgloss.NewRenderer(out)
	if color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return styles{
		heapid:  r.NewStyle().Foreground(lipgloss.Color("33")).Bold(true),
		author:  r.NewStyle().Foreground(lipgloss.Color("245")),
		subject: r.NewStyle(),
		date:    r.NewStyle().Foreground(lipgloss.Color("242")),
		tags:    r.NewStyle().Foreground(lipgloss.Color("142")),
		header:  r.NewStyle().Bold(true).Underline(true),
		cycle:   r.NewStyle().Foreground(lipgloss.Color("160")).Bold(true),
	}
}

// Thread writes the thread of root as an indented tree. A nil root writes
// every thread of the archive and then the posts on reply cycles, which no
// root thread reaches.
func (r *Renderer) Thread(a *heap.Archive, root *heap.Post) error {
	items := a.Walk(root, heap.WalkOptions{})
	for _, item := range items {
		if item.Pos != heap.PosBegin {
			continue
		}
		if err := r.line(item.Level, item.Post, a.Parent(item.Post)); err != nil {
			return err
		}
	}
	if root == nil && a.HasCycle() {
		return r.Cycles(a)
	}
	return nil
}

// Cycles writes the posts whose ancestor chain never reaches a root.
func (r *Renderer) Cycles(a *heap.Archive) error {
	items := a.WalkCycles()
	if len(items) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(r.out, r.styles.cycle.Render("cycles:")); err != nil {
		return err
	}
	for _, item := range items {
		if err := r.line(1, item.Post, nil); err != nil {
			return err
		}
	}
	return nil
}

// line writes one post. The subject is left out when it repeats the subject
// of the parent.
func (r *Renderer) line(level int, p, parent *heap.Post) error {
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", level*r.opts.Indent))
	b.WriteString(r.styles.heapid.Render("<" + p.ID() + ">"))

	if author := p.Author(); author != "" {
		b.WriteByte(' ')
		b.WriteString(r.styles.author.Render(author))
	}
	if subject := p.Subject(); subject != "" && (parent == nil || parent.Subject() != subject) {
		b.WriteByte(' ')
		b.WriteString(r.styles.subject.Render(Truncate(subject, r.opts.SubjectWidth)))
	}
	if tags := p.Tags(); len(tags) > 0 {
		b.WriteByte(' ')
		b.WriteString(r.styles.tags.Render("[" + strings.Join(tags, ",") + "]"))
	}
	if r.opts.ShowDates {
		if t, ok := p.Time(); ok {
			b.WriteByte(' ')
			b.WriteString(r.styles.date.Render(t.Format(dateLayout)))
		}
	}
	b.WriteByte('\n')
	_, err := io.WriteString(r.out, b.String())
	return err
}

// List writes posts as a table in the given order.
func (r *Renderer) List(posts []*heap.Post) error {
	headers := []string{
		r.styles.header.Render("HEAPID"),
		r.styles.header.Render("AUTHOR"),
		r.styles.header.Render("DATE"),
		r.styles.header.Render("SUBJECT"),
		r.styles.header.Render("TAGS"),
	}
	rows := make([][]string, 0, len(posts))
	for _, p := range posts {
		date := ""
		if t, ok := p.Time(); ok {
			date = t.Format(dateLayout)
		}
		subject := Truncate(p.Subject(), r.opts.SubjectWidth)
		if p.IsDeleted() {
			subject = "(deleted)"
		}
		rows = append(rows, []string{
			r.styles.heapid.Render(p.ID()),
			r.styles.author.Render(p.Author()),
			r.styles.date.Render(date),
			subject,
			r.styles.tags.Render(strings.Join(p.Tags(), ",")),
		})
	}
	return writeTable(r.out, headers, rows)
}

// Truncate shortens s to width display columns, ending in "..." when cut.
func Truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= len(ellipsis) {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, ellipsis)
}
