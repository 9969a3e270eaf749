package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/heapkeeper/internal/events"
)

func TestEventRepositoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(setupTestDB(t))

	event := &events.Event{
		Type:       events.EventTypePostUpdated,
		PostID:     "7",
		Generation: 3,
		Metadata:   map[string]string{"source": "test"},
	}
	require.NoError(t, repo.Create(ctx, event))
	require.NotEmpty(t, event.ID)
	require.False(t, event.Timestamp.IsZero())

	got, err := repo.Get(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.Type, got.Type)
	assert.Equal(t, "7", got.PostID)
	assert.Equal(t, uint64(3), got.Generation)
	assert.Equal(t, "test", got.Metadata["source"])
	assert.True(t, event.Timestamp.Equal(got.Timestamp))

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrEventNotFound)

	assert.ErrorIs(t, repo.Create(ctx, &events.Event{}), ErrInvalidEvent)
}

func TestEventRepositoryQuery(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(setupTestDB(t))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, post := range []string{"1", "2", "1", "1"} {
		typ := events.EventTypePostUpdated
		if i == 0 {
			typ = events.EventTypePostAdded
		}
		require.NoError(t, repo.Create(ctx, &events.Event{
			Type:      typ,
			PostID:    post,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, repo.Create(ctx, &events.Event{Type: events.EventTypeArchiveSaved, Timestamp: base.Add(time.Minute)}))

	list, err := repo.ListByPost(ctx, "1", 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, events.EventTypePostAdded, list[0].Type)

	typ := events.EventTypePostUpdated
	page, err := repo.Query(ctx, EventQuery{Type: &typ, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	require.NotEmpty(t, page.NextCursor)

	next, err := repo.Query(ctx, EventQuery{Type: &typ, Cursor: page.NextCursor, Limit: 2})
	require.NoError(t, err)
	require.Len(t, next.Events, 1)
	assert.Empty(t, next.NextCursor)

	since := base.Add(30 * time.Second)
	recent, err := repo.Query(ctx, EventQuery{Since: &since})
	require.NoError(t, err)
	require.Len(t, recent.Events, 1)
	assert.Equal(t, events.EventTypeArchiveSaved, recent.Events[0].Type)
	assert.Empty(t, recent.Events[0].PostID)
}

func TestEventRepositoryAsPublisherJournal(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(setupTestDB(t))
	pub := events.NewInMemoryPublisher(events.WithRepository(repo))

	pub.Publish(ctx, events.NewEvent(events.EventTypePostDeleted, "4"))

	list, err := repo.ListByPost(ctx, "4", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, events.EventTypePostDeleted, list[0].Type)
}
