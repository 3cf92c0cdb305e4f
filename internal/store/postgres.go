package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"trendradar/internal/trending"
)

// pgxQuerier is the surface shared by pools and transactions.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgxPool is satisfied by *pgxpool.Pool and by pgxmock pools in tests.
type pgxPool interface {
	pgxQuerier
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Postgres persists snapshots in PostgreSQL.
type Postgres struct {
	pool pgxPool
	q    pgxQuerier
}

// NewPostgres connects to dsn, verifies connectivity and applies the schema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	s := newPostgres(pool)
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func newPostgres(pool pgxPool) *Postgres {
	return &Postgres{pool: pool, q: pool}
}

// Close releases the pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS trending_topics (
	id TEXT PRIMARY KEY,
	trend_name TEXT NOT NULL,
	title TEXT NOT NULL,
	summary TEXT NOT NULL,
	key_points TEXT[] NOT NULL DEFAULT '{}',
	sentiment TEXT NOT NULL,
	category TEXT NOT NULL,
	post_count INTEGER NOT NULL,
	cached_at TIMESTAMPTZ NOT NULL,
	UNIQUE (trend_name, cached_at)
);

CREATE TABLE IF NOT EXISTS trending_posts (
	id TEXT PRIMARY KEY,
	post_id TEXT NOT NULL,
	topic_id TEXT NOT NULL REFERENCES trending_topics(id) ON DELETE CASCADE,
	author_name TEXT NOT NULL,
	author_handle TEXT NOT NULL,
	author_avatar_url TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL,
	media_url TEXT NOT NULL DEFAULT '',
	like_count INTEGER NOT NULL,
	retweet_count INTEGER NOT NULL,
	reply_count INTEGER NOT NULL,
	post_url TEXT NOT NULL,
	published_at TIMESTAMPTZ NOT NULL,
	cached_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trending_topics_cached ON trending_topics(cached_at);
CREATE INDEX IF NOT EXISTS idx_trending_posts_topic ON trending_posts(topic_id);
CREATE INDEX IF NOT EXISTS idx_trending_posts_post ON trending_posts(post_id);
CREATE INDEX IF NOT EXISTS idx_trending_posts_cached ON trending_posts(cached_at);
`

func (s *Postgres) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// InTx applies fn inside a single transaction, rolling back on error or panic.
func (s *Postgres) InTx(ctx context.Context, fn func(tx trending.Sink) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(&Postgres{pool: s.pool, q: tx})
	return err
}

// UpsertTopics inserts or replaces topics by id.
func (s *Postgres) UpsertTopics(ctx context.Context, topics []trending.TrendingTopic) error {
	for _, t := range topics {
		_, err := s.q.Exec(ctx, `
			INSERT INTO trending_topics (id, trend_name, title, summary, key_points, sentiment, category, post_count, cached_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				trend_name = EXCLUDED.trend_name,
				title = EXCLUDED.title,
				summary = EXCLUDED.summary,
				key_points = EXCLUDED.key_points,
				sentiment = EXCLUDED.sentiment,
				category = EXCLUDED.category,
				post_count = EXCLUDED.post_count,
				cached_at = EXCLUDED.cached_at
		`, t.ID, t.TrendName, t.Title, t.Summary, nonNilStrings(t.KeyPoints), string(t.Sentiment), t.Category, t.PostCount, t.CachedAt.UTC())
		if err != nil {
			return fmt.Errorf("upsert topic %s: %w", t.ID, err)
		}
	}
	return nil
}

// UpsertPosts inserts or replaces posts by id.
func (s *Postgres) UpsertPosts(ctx context.Context, posts []trending.TrendingPost) error {
	for _, p := range posts {
		_, err := s.q.Exec(ctx, `
			INSERT INTO trending_posts (id, post_id, topic_id, author_name, author_handle, author_avatar_url, text, media_url,
				like_count, retweet_count, reply_count, post_url, published_at, cached_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO UPDATE SET
				post_id = EXCLUDED.post_id,
				topic_id = EXCLUDED.topic_id,
				author_name = EXCLUDED.author_name,
				author_handle = EXCLUDED.author_handle,
				author_avatar_url = EXCLUDED.author_avatar_url,
				text = EXCLUDED.text,
				media_url = EXCLUDED.media_url,
				like_count = EXCLUDED.like_count,
				retweet_count = EXCLUDED.retweet_count,
				reply_count = EXCLUDED.reply_count,
				post_url = EXCLUDED.post_url,
				published_at = EXCLUDED.published_at,
				cached_at = EXCLUDED.cached_at
		`, p.ID, p.PostID, p.TopicID, p.AuthorName, p.AuthorHandle, p.AuthorAvatarURL, p.Text, p.MediaURL,
			p.LikeCount, p.RetweetCount, p.ReplyCount, p.PostURL, p.PublishedAt.UTC(), p.CachedAt.UTC())
		if err != nil {
			return fmt.Errorf("upsert post %s: %w", p.ID, err)
		}
	}
	return nil
}

// DeleteTopicsOlderThan removes topics cached strictly before ts; their posts cascade.
func (s *Postgres) DeleteTopicsOlderThan(ctx context.Context, ts time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM trending_topics WHERE cached_at < $1`, ts.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete topics: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeletePostsOlderThan removes posts cached strictly before ts.
func (s *Postgres) DeletePostsOlderThan(ctx context.Context, ts time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM trending_posts WHERE cached_at < $1`, ts.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete posts: %w", err)
	}
	return tag.RowsAffected(), nil
}

const postgresTopicColumns = `id, trend_name, title, summary, key_points, sentiment, category, post_count, cached_at`

// AllTopics returns topics ordered by post count descending.
func (s *Postgres) AllTopics(ctx context.Context) ([]trending.TrendingTopic, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+postgresTopicColumns+`
		FROM trending_topics
		ORDER BY post_count DESC, cached_at DESC, trend_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []trending.TrendingTopic
	for rows.Next() {
		t, err := scanPostgresTopic(rows)
		if err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// TopicByID returns one topic or trending.ErrNotFound.
func (s *Postgres) TopicByID(ctx context.Context, id string) (trending.TrendingTopic, error) {
	row := s.q.QueryRow(ctx, `SELECT `+postgresTopicColumns+` FROM trending_topics WHERE id = $1`, id)
	t, err := scanPostgresTopic(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return trending.TrendingTopic{}, trending.ErrNotFound
	}
	return t, err
}

// PostsForTopic returns posts of a topic ordered by like count descending.
func (s *Postgres) PostsForTopic(ctx context.Context, topicID string) ([]trending.TrendingPost, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, post_id, topic_id, author_name, author_handle, author_avatar_url, text, media_url,
			like_count, retweet_count, reply_count, post_url, published_at, cached_at
		FROM trending_posts
		WHERE topic_id = $1
		ORDER BY like_count DESC, post_id ASC
	`, topicID)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []trending.TrendingPost
	for rows.Next() {
		var p trending.TrendingPost
		if err := rows.Scan(&p.ID, &p.PostID, &p.TopicID, &p.AuthorName, &p.AuthorHandle, &p.AuthorAvatarURL, &p.Text, &p.MediaURL,
			&p.LikeCount, &p.RetweetCount, &p.ReplyCount, &p.PostURL, &p.PublishedAt, &p.CachedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.PublishedAt = p.PublishedAt.UTC()
		p.CachedAt = p.CachedAt.UTC()
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// LatestCachedAt returns the newest topic timestamp.
func (s *Postgres) LatestCachedAt(ctx context.Context) (time.Time, bool, error) {
	var latest time.Time
	err := s.q.QueryRow(ctx, `SELECT cached_at FROM trending_topics ORDER BY cached_at DESC LIMIT 1`).Scan(&latest)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query latest: %w", err)
	}
	return latest.UTC(), true, nil
}

func scanPostgresTopic(row pgx.Row) (trending.TrendingTopic, error) {
	var t trending.TrendingTopic
	var sentiment string
	if err := row.Scan(&t.ID, &t.TrendName, &t.Title, &t.Summary, &t.KeyPoints, &sentiment, &t.Category, &t.PostCount, &t.CachedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("scan topic: %w", err)
	}
	t.Sentiment = trending.Sentiment(sentiment)
	t.CachedAt = t.CachedAt.UTC()
	return t, nil
}
