package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/heapkeeper/internal/heap"
)

func TestAttachPublishesChanges(t *testing.T) {
	a := heap.NewArchive()
	pub := NewInMemoryPublisher()
	Attach(context.Background(), a, pub)

	var got []*Event
	require.NoError(t, pub.Subscribe("rec", Filter{}, func(ev *Event) { got = append(got, ev) }))

	require.NoError(t, a.AddWithID("1", heap.NewPost(heap.Header{}, "")))
	require.NoError(t, a.AddWithID("2", heap.NewPost(heap.Header{Parent: "1"}, "")))
	p, _ := a.Post("2")
	p.SetSubject("changed")
	require.NoError(t, a.Delete("1"))

	require.Len(t, got, 4)
	assert.Equal(t, EventTypePostAdded, got[0].Type)
	assert.Equal(t, "1", got[0].PostID)
	assert.Equal(t, EventTypePostUpdated, got[2].Type)
	assert.Equal(t, EventTypePostDeleted, got[3].Type)
	assert.Equal(t, a.Generation(), got[3].Generation)
	assert.NotEmpty(t, got[0].ID)
	assert.NotEqual(t, got[0].ID, got[1].ID)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestModificationListener(t *testing.T) {
	a := heap.NewArchive()
	pub := NewInMemoryPublisher()
	Attach(context.Background(), a, pub)

	for _, id := range []string{"1", "2", "10"} {
		require.NoError(t, a.AddWithID(id, heap.NewPost(heap.Header{}, "")))
	}

	l, err := NewModificationListener(pub)
	require.NoError(t, err)

	for _, id := range []string{"10", "2"} {
		p, _ := a.Post(id)
		p.AddTag("x")
	}
	pub.Publish(context.Background(), NewEvent(EventTypeArchiveSaved, ""))
	assert.Equal(t, []string{"2", "10"}, l.Touched())

	l.Reset()
	assert.Empty(t, l.Touched())

	require.NoError(t, l.Close())
	assert.Equal(t, 0, pub.SubscriberCount())
}

func TestTypeForChange(t *testing.T) {
	assert.Equal(t, EventTypePostAdded, TypeForChange(heap.ChangeAdded))
	assert.Equal(t, EventTypePostUpdated, TypeForChange(heap.ChangeUpdated))
	assert.Equal(t, EventTypePostStructure, TypeForChange(heap.ChangeStructure))
	assert.Equal(t, EventTypePostDeleted, TypeForChange(heap.ChangeDeleted))
	assert.Equal(t, EventTypePostUndeleted, TypeForChange(heap.ChangeUndeleted))
	assert.False(t, EventTypeArchiveSaved.IsPostEvent())
}
