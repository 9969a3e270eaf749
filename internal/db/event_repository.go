package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tOgg1/heapkeeper/internal/events"
)

// timestampLayout keeps the text ordering of stored timestamps equal to
// their time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Event repository errors.
var (
	ErrEventNotFound = errors.New("event not found")
	ErrInvalidEvent  = errors.New("invalid event")
)

// EventRepository persists published events. It satisfies
// events.Repository.
type EventRepository struct {
	db *DB
}

var _ events.Repository = (*EventRepository)(nil)

func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// EventQuery defines filters for querying events.
type EventQuery struct {
	Type   *events.EventType
	PostID *string
	Since  *time.Time // inclusive
	Until  *time.Time // exclusive
	Cursor string     // id of the last event of the previous page
	Limit  int
}

// EventPage represents a page of query results.
type EventPage struct {
	Events     []*events.Event
	NextCursor string
}

// Create appends an event to the journal, filling in a missing id and
// timestamp.
func (r *EventRepository) Create(ctx context.Context, event *events.Event) error {
	if event == nil || event.Type == "" {
		return ErrInvalidEvent
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	} else {
		event.Timestamp = event.Timestamp.UTC()
	}

	var metadataJSON *string
	if event.Metadata != nil {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		s := string(data)
		metadataJSON = &s
	}
	var postID *string
	if event.PostID != "" {
		postID = &event.PostID
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (id, timestamp, type, post_id, generation, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.Timestamp.Format(timestampLayout),
		string(event.Type),
		postID,
		int64(event.Generation),
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Get retrieves an event by id.
func (r *EventRepository) Get(ctx context.Context, id string) (*events.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, timestamp, type, post_id, generation, metadata_json
		FROM events WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query event: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrEventNotFound
	}
	return r.scanEvent(rows)
}

// Query retrieves events matching the filters, oldest first, with cursor
// based pagination.
func (r *EventRepository) Query(ctx context.Context, q EventQuery) (*EventPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, timestamp, type, post_id, generation, metadata_json FROM events WHERE 1=1`
	args := []any{}

	if q.Type != nil {
		query += ` AND type = ?`
		args = append(args, string(*q.Type))
	}
	if q.PostID != nil {
		query += ` AND post_id = ?`
		args = append(args, *q.PostID)
	}
	if q.Since != nil {
		query += ` AND timestamp >= ?`
		args = append(args, q.Since.UTC().Format(timestampLayout))
	}
	if q.Until != nil {
		query += ` AND timestamp < ?`
		args = append(args, q.Until.UTC().Format(timestampLayout))
	}
	if q.Cursor != "" {
		query += ` AND (timestamp, id) > (SELECT timestamp, id FROM events WHERE id = ?)`
		args = append(args, q.Cursor)
	}

	query += ` ORDER BY timestamp, id LIMIT ?`
	args = append(args, limit+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var list []*events.Event
	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	page := &EventPage{Events: list}
	if len(list) > limit {
		page.Events = list[:limit]
		page.NextCursor = list[limit-1].ID
	}
	return page, nil
}

// ListByPost returns the events of one post, oldest first.
func (r *EventRepository) ListByPost(ctx context.Context, postID string, limit int) ([]*events.Event, error) {
	page, err := r.Query(ctx, EventQuery{PostID: &postID, Limit: limit})
	if err != nil {
		return nil, err
	}
	return page.Events, nil
}

func (r *EventRepository) scanEvent(rows *sql.Rows) (*events.Event, error) {
	var event events.Event
	var timestamp, eventType string
	var postID, metadataJSON sql.NullString
	var generation int64

	if err := rows.Scan(&event.ID, &timestamp, &eventType, &postID, &generation, &metadataJSON); err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	event.Type = events.EventType(eventType)
	event.PostID = postID.String
	event.Generation = uint64(generation)
	if t, err := time.Parse(timestampLayout, timestamp); err == nil {
		event.Timestamp = t
	}
	if metadataJSON.Valid {
		if err := json.Unmarshal([]byte(metadataJSON.String), &event.Metadata); err != nil {
			r.db.logger.Warn().Err(err).Str("event_id", event.ID).Msg("failed to parse event metadata")
		}
	}
	return &event, nil
}
