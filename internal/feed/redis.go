package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"moments/internal/moments"
)

// Default key names
const (
	DefaultStream  = "moments:feed"
	DefaultChannel = "moments:live"
)

// claimTTL bounds how long an unfinished claim blocks the record. A publisher
// that dies between claiming and appending leaves a marker that expires.
const claimTTL = time.Minute

// RedisFeed appends accepted contributions to a Redis stream and announces
// them on a pub/sub channel for live galleries.
//
// Keys:
//
//	<stream>                      stream of feed entries, oldest first
//	<stream>:published:<recordID> marker holding the entry's stream ID,
//	                              empty with a TTL while a publish is under way
type RedisFeed struct {
	client  *redis.Client
	stream  string
	channel string
}

var _ moments.FeedWriter = (*RedisFeed)(nil)

// NewRedisFeed creates a RedisFeed. Empty names use the defaults.
func NewRedisFeed(client *redis.Client, stream, channel string) *RedisFeed {
	if stream == "" {
		stream = DefaultStream
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisFeed{client: client, stream: stream, channel: channel}
}

func (f *RedisFeed) markerKey(recordID string) string {
	return f.stream + ":published:" + recordID
}

// Publish adds the entry to the stream once. Publishing a record that is
// already in the feed is a no-op.
func (f *RedisFeed) Publish(ctx context.Context, e *moments.FeedEntry) error {
	marker := f.markerKey(e.RecordID)

	claimed, err := f.client.SetNX(ctx, marker, "", claimTTL).Result()
	if err != nil {
		return fmt.Errorf("claiming feed marker: %w", err)
	}
	if !claimed {
		return nil
	}

	values, err := entryValues(e)
	if err != nil {
		f.client.Del(context.WithoutCancel(ctx), marker)
		return err
	}

	id, err := f.client.XAdd(ctx, &redis.XAddArgs{Stream: f.stream, Values: values}).Result()
	if err != nil {
		f.client.Del(context.WithoutCancel(ctx), marker)
		return fmt.Errorf("appending to feed stream: %w", err)
	}
	if err := f.client.Set(context.WithoutCancel(ctx), marker, id, 0).Err(); err != nil {
		return fmt.Errorf("recording feed marker for %s: %w", id, err)
	}

	// Subscribers that miss the announcement catch up from the stream.
	if payload, err := json.Marshal(e); err == nil {
		f.client.Publish(ctx, f.channel, payload)
	}
	return nil
}

// List returns up to count entries, newest first.
func (f *RedisFeed) List(ctx context.Context, count int64) ([]*moments.FeedEntry, error) {
	if count <= 0 {
		count = 50
	}
	msgs, err := f.client.XRevRangeN(ctx, f.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("reading feed stream: %w", err)
	}

	out := make([]*moments.FeedEntry, 0, len(msgs))
	for _, m := range msgs {
		e, err := parseEntry(m.Values)
		if err != nil {
			return nil, fmt.Errorf("parsing feed entry %s: %w", m.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Subscribe returns a subscription to live announcements. The caller must
// close it.
func (f *RedisFeed) Subscribe(ctx context.Context) *redis.PubSub {
	return f.client.Subscribe(ctx, f.channel)
}

func entryValues(e *moments.FeedEntry) (map[string]interface{}, error) {
	likedBy := e.LikedBy
	if likedBy == nil {
		likedBy = []string{}
	}
	likedByJSON, err := json.Marshal(likedBy)
	if err != nil {
		return nil, fmt.Errorf("encoding likedBy: %w", err)
	}

	return map[string]interface{}{
		"recordId":   e.RecordID,
		"url":        e.URL,
		"content":    e.Content,
		"authorId":   e.AuthorID,
		"author":     e.Author,
		"categoryId": e.CategoryID,
		"likesCount": e.LikesCount,
		"likedBy":    string(likedByJSON),
		"timestamp":  e.Timestamp.UTC().Format(time.RFC3339Nano),
		"approved":   strconv.FormatBool(e.Approved),
	}, nil
}

func parseEntry(values map[string]interface{}) (*moments.FeedEntry, error) {
	str := func(k string) string {
		s, _ := values[k].(string)
		return s
	}

	e := &moments.FeedEntry{
		RecordID:   str("recordId"),
		URL:        str("url"),
		Content:    str("content"),
		AuthorID:   str("authorId"),
		Author:     str("author"),
		CategoryID: str("categoryId"),
	}

	var err error
	if e.LikesCount, err = strconv.Atoi(str("likesCount")); err != nil {
		return nil, fmt.Errorf("likesCount: %w", err)
	}
	if err := json.Unmarshal([]byte(str("likedBy")), &e.LikedBy); err != nil {
		return nil, fmt.Errorf("likedBy: %w", err)
	}
	if e.Timestamp, err = time.Parse(time.RFC3339Nano, str("timestamp")); err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	if e.Approved, err = strconv.ParseBool(str("approved")); err != nil {
		return nil, fmt.Errorf("approved: %w", err)
	}
	return e, nil
}
