package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"trendradar/internal/trending"
)

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLite persists snapshots in a local SQLite file.
type SQLite struct {
	db *sql.DB
	q  sqlQuerier
}

// NewSQLite opens (creating if needed) the database at dbPath and applies the schema.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, q: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trending_topics (
		id TEXT PRIMARY KEY,
		trend_name TEXT NOT NULL,
		title TEXT NOT NULL,
		summary TEXT NOT NULL,
		key_points TEXT NOT NULL DEFAULT '[]',
		sentiment TEXT NOT NULL,
		category TEXT NOT NULL,
		post_count INTEGER NOT NULL,
		cached_at INTEGER NOT NULL,
		UNIQUE (trend_name, cached_at)
	);

	CREATE TABLE IF NOT EXISTS trending_posts (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL,
		topic_id TEXT NOT NULL REFERENCES trending_topics(id) ON DELETE CASCADE,
		author_name TEXT NOT NULL,
		author_handle TEXT NOT NULL,
		author_avatar_url TEXT,
		text TEXT NOT NULL,
		media_url TEXT,
		like_count INTEGER NOT NULL,
		retweet_count INTEGER NOT NULL,
		reply_count INTEGER NOT NULL,
		post_url TEXT NOT NULL,
		published_at INTEGER NOT NULL,
		cached_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trending_topics_cached ON trending_topics(cached_at);
	CREATE INDEX IF NOT EXISTS idx_trending_posts_topic ON trending_posts(topic_id);
	CREATE INDEX IF NOT EXISTS idx_trending_posts_post ON trending_posts(post_id);
	CREATE INDEX IF NOT EXISTS idx_trending_posts_cached ON trending_posts(cached_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InTx applies fn inside a single database transaction.
func (s *SQLite) InTx(ctx context.Context, fn func(tx trending.Sink) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&SQLite{db: s.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// UpsertTopics inserts or replaces topics by id.
func (s *SQLite) UpsertTopics(ctx context.Context, topics []trending.TrendingTopic) error {
	for _, t := range topics {
		keyPoints, err := json.Marshal(nonNilStrings(t.KeyPoints))
		if err != nil {
			return fmt.Errorf("encode key points for %s: %w", t.ID, err)
		}
		_, err = s.q.ExecContext(ctx, `
			INSERT INTO trending_topics (id, trend_name, title, summary, key_points, sentiment, category, post_count, cached_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				trend_name = excluded.trend_name,
				title = excluded.title,
				summary = excluded.summary,
				key_points = excluded.key_points,
				sentiment = excluded.sentiment,
				category = excluded.category,
				post_count = excluded.post_count,
				cached_at = excluded.cached_at
		`, t.ID, t.TrendName, t.Title, t.Summary, string(keyPoints), string(t.Sentiment), t.Category, t.PostCount, toMillis(t.CachedAt))
		if err != nil {
			return fmt.Errorf("upsert topic %s: %w", t.ID, err)
		}
	}
	return nil
}

// UpsertPosts inserts or replaces posts by id.
func (s *SQLite) UpsertPosts(ctx context.Context, posts []trending.TrendingPost) error {
	for _, p := range posts {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO trending_posts (id, post_id, topic_id, author_name, author_handle, author_avatar_url, text, media_url,
				like_count, retweet_count, reply_count, post_url, published_at, cached_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				post_id = excluded.post_id,
				topic_id = excluded.topic_id,
				author_name = excluded.author_name,
				author_handle = excluded.author_handle,
				author_avatar_url = excluded.author_avatar_url,
				text = excluded.text,
				media_url = excluded.media_url,
				like_count = excluded.like_count,
				retweet_count = excluded.retweet_count,
				reply_count = excluded.reply_count,
				post_url = excluded.post_url,
				published_at = excluded.published_at,
				cached_at = excluded.cached_at
		`, p.ID, p.PostID, p.TopicID, p.AuthorName, p.AuthorHandle, p.AuthorAvatarURL, p.Text, p.MediaURL,
			p.LikeCount, p.RetweetCount, p.ReplyCount, p.PostURL, toMillis(p.PublishedAt), toMillis(p.CachedAt))
		if err != nil {
			return fmt.Errorf("upsert post %s: %w", p.ID, err)
		}
	}
	return nil
}

// DeleteTopicsOlderThan removes topics cached strictly before ts; their posts cascade.
func (s *SQLite) DeleteTopicsOlderThan(ctx context.Context, ts time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM trending_topics WHERE cached_at < ?`, toMillis(ts))
	if err != nil {
		return 0, fmt.Errorf("delete topics: %w", err)
	}
	return res.RowsAffected()
}

// DeletePostsOlderThan removes posts cached strictly before ts.
func (s *SQLite) DeletePostsOlderThan(ctx context.Context, ts time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM trending_posts WHERE cached_at < ?`, toMillis(ts))
	if err != nil {
		return 0, fmt.Errorf("delete posts: %w", err)
	}
	return res.RowsAffected()
}

const sqliteTopicColumns = `id, trend_name, title, summary, key_points, sentiment, category, post_count, cached_at`

// AllTopics returns topics ordered by post count descending.
func (s *SQLite) AllTopics(ctx context.Context) ([]trending.TrendingTopic, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+sqliteTopicColumns+`
		FROM trending_topics
		ORDER BY post_count DESC, cached_at DESC, trend_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []trending.TrendingTopic
	for rows.Next() {
		t, err := scanSQLiteTopic(rows)
		if err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// TopicByID returns one topic or trending.ErrNotFound.
func (s *SQLite) TopicByID(ctx context.Context, id string) (trending.TrendingTopic, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+sqliteTopicColumns+` FROM trending_topics WHERE id = ?`, id)
	t, err := scanSQLiteTopic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return trending.TrendingTopic{}, trending.ErrNotFound
	}
	return t, err
}

// PostsForTopic returns posts of a topic ordered by like count descending.
func (s *SQLite) PostsForTopic(ctx context.Context, topicID string) ([]trending.TrendingPost, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, post_id, topic_id, author_name, author_handle, author_avatar_url, text, media_url,
			like_count, retweet_count, reply_count, post_url, published_at, cached_at
		FROM trending_posts
		WHERE topic_id = ?
		ORDER BY like_count DESC, post_id ASC
	`, topicID)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []trending.TrendingPost
	for rows.Next() {
		var p trending.TrendingPost
		var avatar, media sql.NullString
		var published, cached int64
		if err := rows.Scan(&p.ID, &p.PostID, &p.TopicID, &p.AuthorName, &p.AuthorHandle, &avatar, &p.Text, &media,
			&p.LikeCount, &p.RetweetCount, &p.ReplyCount, &p.PostURL, &published, &cached); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.AuthorAvatarURL = avatar.String
		p.MediaURL = media.String
		p.PublishedAt = fromMillis(published)
		p.CachedAt = fromMillis(cached)
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// LatestCachedAt returns the newest topic timestamp.
func (s *SQLite) LatestCachedAt(ctx context.Context) (time.Time, bool, error) {
	var latest sql.NullInt64
	if err := s.q.QueryRowContext(ctx, `SELECT MAX(cached_at) FROM trending_topics`).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("query latest: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return fromMillis(latest.Int64), true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTopic(row rowScanner) (trending.TrendingTopic, error) {
	var t trending.TrendingTopic
	var keyPoints, sentiment string
	var cached int64
	if err := row.Scan(&t.ID, &t.TrendName, &t.Title, &t.Summary, &keyPoints, &sentiment, &t.Category, &t.PostCount, &cached); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("scan topic: %w", err)
	}
	if err := json.Unmarshal([]byte(keyPoints), &t.KeyPoints); err != nil {
		return t, fmt.Errorf("decode key points for %s: %w", t.ID, err)
	}
	t.Sentiment = trending.Sentiment(sentiment)
	t.CachedAt = fromMillis(cached)
	return t, nil
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
