package trending

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by sinks when a topic id is unknown.
var ErrNotFound = errors.New("trending: not found")

// Sink persists snapshots and serves reads of the latest one.
type Sink interface {
	UpsertTopics(ctx context.Context, topics []TrendingTopic) error
	UpsertPosts(ctx context.Context, posts []TrendingPost) error
	DeleteTopicsOlderThan(ctx context.Context, ts time.Time) (int64, error)
	DeletePostsOlderThan(ctx context.Context, ts time.Time) (int64, error)

	// AllTopics returns topics ordered by post count, largest first.
	AllTopics(ctx context.Context) ([]TrendingTopic, error)
	TopicByID(ctx context.Context, id string) (TrendingTopic, error)
	// PostsForTopic returns posts ordered by like count, largest first.
	PostsForTopic(ctx context.Context, topicID string) ([]TrendingPost, error)
	// LatestCachedAt reports the newest CachedAt across topics; ok is false when empty.
	LatestCachedAt(ctx context.Context) (ts time.Time, ok bool, err error)
}

// Transactor is implemented by sinks that can apply several writes atomically.
type Transactor interface {
	InTx(ctx context.Context, fn func(tx Sink) error) error
}

// writeSnapshot inserts the new rows before deleting older ones so readers never observe an
// empty table.
func writeSnapshot(ctx context.Context, sink Sink, snap *Snapshot) error {
	if err := sink.UpsertTopics(ctx, snap.Topics); err != nil {
		return err
	}
	if err := sink.UpsertPosts(ctx, snap.Posts); err != nil {
		return err
	}
	if _, err := sink.DeletePostsOlderThan(ctx, snap.CachedAt); err != nil {
		return err
	}
	if _, err := sink.DeleteTopicsOlderThan(ctx, snap.CachedAt); err != nil {
		return err
	}
	return nil
}
