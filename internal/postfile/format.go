// Package postfile reads and writes posts as plain text files, one
// <heapid>.post file per post.
//
// A post file is a block of "Key: value" header lines, a blank line and the
// body. A header line starting with a space continues the value of the
// previous line.
package postfile

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tOgg1/heapkeeper/internal/heap"
)

// ErrInvalidHeader reports a post file whose header cannot be parsed.
var ErrInvalidHeader = errors.New("invalid post header")

// Header keys.
const (
	KeyAuthor    = "Author"
	KeySubject   = "Subject"
	KeyTag       = "Tag"
	KeyMessageID = "Message-Id"
	KeyParent    = "Parent"
	KeyReference = "Reference"
	KeyDate      = "Date"
	KeyFlag      = "Flag"

	// Accepted on read in place of Author and Parent.
	keyFrom      = "From"
	keyInReplyTo = "In-Reply-To"
)

// Decode parses the content of a post file.
func Decode(data []byte) (heap.Header, string, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	fields, order, body, err := splitHeader(text)
	if err != nil {
		return heap.Header{}, "", err
	}

	var h heap.Header
	take := func(key string) ([]string, error) {
		values := fields[key]
		delete(fields, key)
		if len(values) > 1 {
			return nil, fmt.Errorf("%w: multiple %q keys", ErrInvalidHeader, key)
		}
		return values, nil
	}
	// single reads a key that may appear once, either as key or as its
	// alternate spelling alt, never both.
	single := func(key, alt string) (string, error) {
		values, err := take(key)
		if err != nil {
			return "", err
		}
		if alt != "" {
			alternates, err := take(alt)
			if err != nil {
				return "", err
			}
			if len(values) > 0 && len(alternates) > 0 {
				return "", fmt.Errorf("%w: both %q and %q keys", ErrInvalidHeader, key, alt)
			}
			values = append(values, alternates...)
		}
		if len(values) == 0 {
			return "", nil
		}
		return values[0], nil
	}
	list := func(key string) []string {
		values := fields[key]
		delete(fields, key)
		return values
	}

	if h.Author, err = single(KeyAuthor, keyFrom); err != nil {
		return heap.Header{}, "", err
	}
	if h.Subject, err = single(KeySubject, ""); err != nil {
		return heap.Header{}, "", err
	}
	h.Tags = list(KeyTag)
	if h.MessageID, err = single(KeyMessageID, ""); err != nil {
		return heap.Header{}, "", err
	}
	if h.Parent, err = single(KeyParent, keyInReplyTo); err != nil {
		return heap.Header{}, "", err
	}
	if h.Date, err = single(KeyDate, ""); err != nil {
		return heap.Header{}, "", err
	}
	h.Flags = list(KeyFlag)
	h.Refs = list(KeyReference)

	for _, key := range order {
		if values, ok := fields[key]; ok {
			if h.Extra == nil {
				h.Extra = make(map[string][]string)
			}
			h.Extra[key] = values
		}
	}
	return h, body, nil
}

// splitHeader returns the header values per key, the keys in order of first
// appearance and the body.
func splitHeader(text string) (map[string][]string, []string, string, error) {
	fields := make(map[string][]string)
	var order []string
	var key string

	lineNo := 0
	for text != "" {
		line, rest, _ := strings.Cut(text, "\n")
		lineNo++
		if line == "" {
			text = rest
			break
		}
		text = rest

		if line[0] == ' ' {
			if key == "" {
				return nil, nil, "", fmt.Errorf("%w: line %d: continuation without a key", ErrInvalidHeader, lineNo)
			}
			values := fields[key]
			values[len(values)-1] += "\n" + line[1:]
			continue
		}

		k, v, ok := strings.Cut(line, ":")
		if !ok || k == "" || strings.ContainsAny(k, " \t") {
			return nil, nil, "", fmt.Errorf("%w: line %d: %q", ErrInvalidHeader, lineNo, line)
		}
		key = k
		if _, seen := fields[k]; !seen {
			order = append(order, k)
		}
		fields[k] = append(fields[k], strings.TrimPrefix(v, " "))
	}
	return fields, order, text, nil
}

// Encode renders a header and body in post file format. Known keys come
// first in a fixed order, other keys follow sorted by name.
func Encode(h heap.Header, body string) []byte {
	var buf bytes.Buffer
	write := func(key, value string) {
		buf.WriteString(key)
		buf.WriteString(": ")
		buf.WriteString(strings.ReplaceAll(value, "\n", "\n "))
		buf.WriteByte('\n')
	}
	writeOne := func(key, value string) {
		if value != "" {
			write(key, value)
		}
	}
	writeAll := func(key string, values []string) {
		for _, v := range values {
			write(key, v)
		}
	}

	writeOne(KeyAuthor, h.Author)
	writeOne(KeySubject, h.Subject)
	writeAll(KeyTag, h.Tags)
	writeOne(KeyMessageID, h.MessageID)
	writeOne(KeyParent, h.Parent)
	writeAll(KeyReference, h.Refs)
	writeOne(KeyDate, h.Date)
	writeAll(KeyFlag, h.Flags)

	extra := make([]string, 0, len(h.Extra))
	for k := range h.Extra {
		extra = append(extra, k)
	}
	slices.Sort(extra)
	for _, k := range extra {
		writeAll(k, h.Extra[k])
	}

	buf.WriteByte('\n')
	buf.WriteString(body)
	return buf.Bytes()
}

// ParsePost decodes a post file into a detached post.
func ParsePost(data []byte) (*heap.Post, error) {
	h, body, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return heap.NewPost(h, body), nil
}

// Marshal renders a post in post file format.
func Marshal(p *heap.Post) []byte {
	return Encode(p.Header(), p.Body())
}
