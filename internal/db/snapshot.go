package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/tOgg1/heapkeeper/internal/heap"
)

// SnapshotPost is one exported row of the posts table.
type SnapshotPost struct {
	Heapid       string
	Position     int
	Header       heap.Header
	Body         string
	Timestamp    int64
	Deleted      bool
	ParentHeapid string // resolved parent, "" for roots and deleted posts
	BucketIndex  int    // position among the siblings, -1 for deleted posts
	Cyclic       bool
}

// SnapshotRepository stores archive snapshots.
type SnapshotRepository struct {
	db *DB
}

func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// ExportArchive replaces the stored snapshot with every post of a, deleted
// ones included, together with the derived thread structure. It returns the
// number of posts written.
func (r *SnapshotRepository) ExportArchive(ctx context.Context, a *heap.Archive) (int, error) {
	rows := snapshotRows(a)
	err := r.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM posts`); err != nil {
			return fmt.Errorf("failed to clear posts: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO posts (
				heapid, position, author, subject, message_id, parent_ref, date,
				timestamp, tags_json, flags_json, refs_json, extra_json, body,
				deleted, parent_heapid, bucket_index, cyclic
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, row := range rows {
			if err := insertSnapshotPost(ctx, stmt, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.db.logger.Debug().Int("posts", len(rows)).Str("db", r.db.path).Msg("archive exported")
	return len(rows), nil
}

func snapshotRows(a *heap.Archive) []SnapshotPost {
	parents := a.ResolvedParents()
	buckets := a.ThreadStruct()

	all := a.AllPosts()
	rows := make([]SnapshotPost, 0, len(all))
	for i, p := range all {
		row := SnapshotPost{
			Heapid:      p.ID(),
			Position:    i,
			Header:      p.Header(),
			Body:        p.Body(),
			Timestamp:   p.Timestamp(),
			Deleted:     p.IsDeleted(),
			BucketIndex: -1,
			Cyclic:      a.IsCyclic(p),
		}
		if !row.Deleted {
			row.ParentHeapid = parents[p.ID()]
			row.BucketIndex = slices.Index(buckets[row.ParentHeapid], p.ID())
		}
		rows = append(rows, row)
	}
	return rows
}

func insertSnapshotPost(ctx context.Context, stmt *sql.Stmt, row SnapshotPost) error {
	tags, err := marshalList(row.Header.Tags)
	if err != nil {
		return err
	}
	flags, err := marshalList(row.Header.Flags)
	if err != nil {
		return err
	}
	refs, err := marshalList(row.Header.Refs)
	if err != nil {
		return err
	}
	var extra *string
	if len(row.Header.Extra) > 0 {
		data, err := json.Marshal(row.Header.Extra)
		if err != nil {
			return fmt.Errorf("failed to marshal extra keys: %w", err)
		}
		s := string(data)
		extra = &s
	}
	var parent *string
	if row.ParentHeapid != "" {
		parent = &row.ParentHeapid
	}
	var bucketIndex *int
	if row.BucketIndex >= 0 {
		bucketIndex = &row.BucketIndex
	}

	_, err = stmt.ExecContext(ctx,
		row.Heapid,
		row.Position,
		row.Header.Author,
		row.Header.Subject,
		row.Header.MessageID,
		row.Header.Parent,
		row.Header.Date,
		row.Timestamp,
		tags,
		flags,
		refs,
		extra,
		row.Body,
		boolToInt(row.Deleted),
		parent,
		bucketIndex,
		boolToInt(row.Cyclic),
	)
	if err != nil {
		return fmt.Errorf("failed to insert post %s: %w", row.Heapid, err)
	}
	return nil
}

// List returns the stored snapshot in archive insertion order.
func (r *SnapshotRepository) List(ctx context.Context) ([]SnapshotPost, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT heapid, position, author, subject, message_id, parent_ref, date,
			timestamp, tags_json, flags_json, refs_json, extra_json, body,
			deleted, parent_heapid, bucket_index, cyclic
		FROM posts
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var out []SnapshotPost
	for rows.Next() {
		row, err := scanSnapshotPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}
	return out, nil
}

func scanSnapshotPost(rows *sql.Rows) (SnapshotPost, error) {
	var row SnapshotPost
	var tags, flags, refs string
	var extra, parent sql.NullString
	var bucketIndex sql.NullInt64
	var deleted, cyclic int

	if err := rows.Scan(
		&row.Heapid,
		&row.Position,
		&row.Header.Author,
		&row.Header.Subject,
		&row.Header.MessageID,
		&row.Header.Parent,
		&row.Header.Date,
		&row.Timestamp,
		&tags,
		&flags,
		&refs,
		&extra,
		&row.Body,
		&deleted,
		&parent,
		&bucketIndex,
		&cyclic,
	); err != nil {
		return SnapshotPost{}, fmt.Errorf("failed to scan post: %w", err)
	}

	for _, f := range []struct {
		data string
		dst  *[]string
	}{{tags, &row.Header.Tags}, {flags, &row.Header.Flags}, {refs, &row.Header.Refs}} {
		if err := json.Unmarshal([]byte(f.data), f.dst); err != nil {
			return SnapshotPost{}, fmt.Errorf("post %s: %w", row.Heapid, err)
		}
		// Absent lists are stored as "[]" and read back as nil.
		if len(*f.dst) == 0 {
			*f.dst = nil
		}
	}
	if extra.Valid {
		if err := json.Unmarshal([]byte(extra.String), &row.Header.Extra); err != nil {
			return SnapshotPost{}, fmt.Errorf("post %s: %w", row.Heapid, err)
		}
	}
	row.Deleted = deleted != 0
	row.Cyclic = cyclic != 0
	row.ParentHeapid = parent.String
	row.BucketIndex = -1
	if bucketIndex.Valid {
		row.BucketIndex = int(bucketIndex.Int64)
	}
	return row, nil
}

// LoadArchive rebuilds an archive from the stored snapshot, keeping the
// heapids and insertion order. The thread structure is derived again from
// the reply references. The loaded posts are clean.
func (r *SnapshotRepository) LoadArchive(ctx context.Context) (*heap.Archive, error) {
	rows, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	a := heap.NewArchive()
	for _, row := range rows {
		p := heap.NewPost(row.Header, row.Body)
		if err := a.AddWithID(row.Heapid, p); err != nil {
			return nil, err
		}
		p.MarkClean()
	}
	return a, nil
}

// marshalList encodes nil as an empty JSON list.
func marshalList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
