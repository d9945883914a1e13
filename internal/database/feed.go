package database

import (
	"context"
	"encoding/json"
	"fmt"

	"moments/internal/moments"
)

// Publish appends an entry to the local feed. Publishing a record twice
// leaves the first entry in place.
func (s *SQLiteDatabase) Publish(ctx context.Context, e *moments.FeedEntry) error {
	likedBy := e.LikedBy
	if likedBy == nil {
		likedBy = []string{}
	}
	likedByJSON, err := json.Marshal(likedBy)
	if err != nil {
		return fmt.Errorf("encoding liked_by: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO feed_entries
			(record_id, url, content, author_id, author, category_id, likes_count, liked_by, timestamp, approved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RecordID, e.URL, e.Content, e.AuthorID, e.Author, e.CategoryID, e.LikesCount,
		string(likedByJSON), e.Timestamp, e.Approved)
	if err != nil {
		return fmt.Errorf("inserting feed entry: %w", err)
	}
	return nil
}

// ListFeed returns up to limit feed entries, newest first.
func (s *SQLiteDatabase) ListFeed(ctx context.Context, limit int) ([]*moments.FeedEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, url, content, author_id, author, category_id, likes_count, liked_by, timestamp, approved
		FROM feed_entries
		ORDER BY timestamp DESC, seq DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing feed: %w", err)
	}
	defer rows.Close()

	var result []*moments.FeedEntry
	for rows.Next() {
		var e moments.FeedEntry
		var likedBy string
		if err := rows.Scan(&e.RecordID, &e.URL, &e.Content, &e.AuthorID, &e.Author, &e.CategoryID,
			&e.LikesCount, &likedBy, &e.Timestamp, &e.Approved); err != nil {
			return nil, fmt.Errorf("scanning feed entry: %w", err)
		}
		if err := json.Unmarshal([]byte(likedBy), &e.LikedBy); err != nil {
			return nil, fmt.Errorf("decoding liked_by: %w", err)
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}
