package moments

import (
	"context"
	"time"
)

// FeedEntry is the denormalized copy of an accepted contribution that drives
// the live gallery. It is not the source of truth.
type FeedEntry struct {
	RecordID   string    `json:"recordId"`
	URL        string    `json:"url"`
	Content    string    `json:"content"`
	AuthorID   string    `json:"authorId"`
	Author     string    `json:"author"`
	CategoryID string    `json:"categoryId"`
	LikesCount int       `json:"likesCount"`
	LikedBy    []string  `json:"likedBy"`
	Timestamp  time.Time `json:"timestamp"`
	Approved   bool      `json:"approved"`
}

// NewFeedEntry builds the feed copy of an accepted record.
func NewFeedEntry(r *ImageRecord) *FeedEntry {
	return &FeedEntry{
		RecordID:   r.ID,
		URL:        r.OptimizedURL,
		Content:    r.OptimizedURL,
		AuthorID:   r.AuthorID,
		Author:     r.AuthorName,
		CategoryID: r.CategoryID,
		LikesCount: 0,
		LikedBy:    []string{},
		Timestamp:  r.CreatedAt,
		Approved:   true,
	}
}

// FeedWriter publishes FeedEntries. Publishing the same RecordID twice must
// leave exactly one entry in the feed.
type FeedWriter interface {
	Publish(ctx context.Context, entry *FeedEntry) error
}
