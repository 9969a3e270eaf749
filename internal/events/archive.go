package events

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/tOgg1/heapkeeper/internal/heap"
)

// Attach publishes every change of the archive as an event.
func Attach(ctx context.Context, a *heap.Archive, pub Publisher) {
	a.AddListener(func(c heap.Change) {
		ev := NewEvent(TypeForChange(c.Kind), c.PostID)
		ev.Generation = c.Generation
		pub.Publish(ctx, ev)
	})
}

// ModificationListener collects the heapids of posts touched by events, so
// a bulk operation can report what it changed.
type ModificationListener struct {
	pub Publisher
	id  string

	mu      sync.Mutex
	touched map[string]struct{}
}

// NewModificationListener subscribes to post events of pub.
func NewModificationListener(pub Publisher) (*ModificationListener, error) {
	l := &ModificationListener{
		pub:     pub,
		id:      "modification-" + uuid.New().String(),
		touched: make(map[string]struct{}),
	}
	err := pub.Subscribe(l.id, Filter{}, func(ev *Event) {
		if !ev.Type.IsPostEvent() {
			return
		}
		l.mu.Lock()
		l.touched[ev.PostID] = struct{}{}
		l.mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Touched returns the collected heapids in heapid order.
func (l *ModificationListener) Touched() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.touched))
	for id := range l.touched {
		out = append(out, id)
	}
	slices.SortFunc(out, heap.CompareIDs)
	return out
}

// Reset forgets the collected heapids.
func (l *ModificationListener) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.touched)
}

// Close unsubscribes the listener.
func (l *ModificationListener) Close() error {
	return l.pub.Unsubscribe(l.id)
}
