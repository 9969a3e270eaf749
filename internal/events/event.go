package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/tOgg1/heapkeeper/internal/heap"
)

// EventType names what happened to a post or the archive.
type EventType string

const (
	EventTypePostAdded     EventType = "post.added"
	EventTypePostUpdated   EventType = "post.updated"
	EventTypePostStructure EventType = "post.structure"
	EventTypePostDeleted   EventType = "post.deleted"
	EventTypePostUndeleted EventType = "post.undeleted"

	EventTypeArchiveLoaded EventType = "archive.loaded"
	EventTypeArchiveSaved  EventType = "archive.saved"
)

// Event is one published change.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	PostID     string            `json:"post_id,omitempty"`
	Generation uint64            `json:"generation"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// NewEvent returns an event with a fresh id and the current UTC time.
func NewEvent(typ EventType, postID string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      typ,
		Timestamp: time.Now().UTC(),
		PostID:    postID,
	}
}

// TypeForChange maps an archive change kind to its event type.
func TypeForChange(kind heap.ChangeKind) EventType {
	switch kind {
	case heap.ChangeAdded:
		return EventTypePostAdded
	case heap.ChangeStructure:
		return EventTypePostStructure
	case heap.ChangeDeleted:
		return EventTypePostDeleted
	case heap.ChangeUndeleted:
		return EventTypePostUndeleted
	default:
		return EventTypePostUpdated
	}
}

// IsPostEvent reports whether the event concerns a single post.
func (t EventType) IsPostEvent() bool {
	switch t {
	case EventTypePostAdded, EventTypePostUpdated, EventTypePostStructure,
		EventTypePostDeleted, EventTypePostUndeleted:
		return true
	}
	return false
}
