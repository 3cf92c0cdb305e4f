package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"trendradar/internal/trending"
)

// Memory keeps snapshots in process memory. Transactions stage writes on a copy and swap it in.
type Memory struct {
	txMu   sync.Mutex
	mu     sync.RWMutex
	topics map[string]trending.TrendingTopic
	posts  map[string]trending.TrendingPost
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		topics: make(map[string]trending.TrendingTopic),
		posts:  make(map[string]trending.TrendingPost),
	}
}

// InTx runs fn against a staged copy and publishes it atomically when fn succeeds.
func (m *Memory) InTx(ctx context.Context, fn func(tx trending.Sink) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	staged := &Memory{
		topics: make(map[string]trending.TrendingTopic, len(m.topics)),
		posts:  make(map[string]trending.TrendingPost, len(m.posts)),
	}
	for id, t := range m.topics {
		staged.topics[id] = t
	}
	for id, p := range m.posts {
		staged.posts[id] = p
	}
	m.mu.RUnlock()

	if err := fn(staged); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.topics, m.posts = staged.topics, staged.posts
	m.mu.Unlock()
	return nil
}

// UpsertTopics inserts or replaces topics by id.
func (m *Memory) UpsertTopics(ctx context.Context, topics []trending.TrendingTopic) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range topics {
		t.KeyPoints = append([]string(nil), t.KeyPoints...)
		m.topics[t.ID] = t
	}
	return nil
}

// UpsertPosts inserts or replaces posts by id.
func (m *Memory) UpsertPosts(ctx context.Context, posts []trending.TrendingPost) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range posts {
		m.posts[p.ID] = p
	}
	return nil
}

// DeleteTopicsOlderThan drops topics cached strictly before ts, along with their posts.
func (m *Memory) DeleteTopicsOlderThan(ctx context.Context, ts time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, t := range m.topics {
		if !t.CachedAt.Before(ts) {
			continue
		}
		delete(m.topics, id)
		removed++
		for pid, p := range m.posts {
			if p.TopicID == id {
				delete(m.posts, pid)
			}
		}
	}
	return removed, nil
}

// DeletePostsOlderThan drops posts cached strictly before ts.
func (m *Memory) DeletePostsOlderThan(ctx context.Context, ts time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, p := range m.posts {
		if p.CachedAt.Before(ts) {
			delete(m.posts, id)
			removed++
		}
	}
	return removed, nil
}

// AllTopics returns topics ordered by post count descending.
func (m *Memory) AllTopics(ctx context.Context) ([]trending.TrendingTopic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]trending.TrendingTopic, 0, len(m.topics))
	for _, t := range m.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PostCount != out[j].PostCount {
			return out[i].PostCount > out[j].PostCount
		}
		if !out[i].CachedAt.Equal(out[j].CachedAt) {
			return out[i].CachedAt.After(out[j].CachedAt)
		}
		return out[i].TrendName < out[j].TrendName
	})
	return out, nil
}

// TopicByID returns one topic or trending.ErrNotFound.
func (m *Memory) TopicByID(ctx context.Context, id string) (trending.TrendingTopic, error) {
	if err := ctx.Err(); err != nil {
		return trending.TrendingTopic{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.topics[id]
	if !ok {
		return trending.TrendingTopic{}, trending.ErrNotFound
	}
	return t, nil
}

// PostsForTopic returns posts of a topic ordered by like count descending.
func (m *Memory) PostsForTopic(ctx context.Context, topicID string) ([]trending.TrendingPost, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []trending.TrendingPost
	for _, p := range m.posts {
		if p.TopicID == topicID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LikeCount != out[j].LikeCount {
			return out[i].LikeCount > out[j].LikeCount
		}
		return out[i].PostID < out[j].PostID
	})
	return out, nil
}

// LatestCachedAt returns the newest topic timestamp.
func (m *Memory) LatestCachedAt(ctx context.Context) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest time.Time
	for _, t := range m.topics {
		if t.CachedAt.After(latest) {
			latest = t.CachedAt
		}
	}
	return latest, !latest.IsZero(), nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
