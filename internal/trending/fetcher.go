package trending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"trendradar/internal/metrics"
)

// ErrNoPosts is returned when every batch failed or came back empty.
var ErrNoPosts = errors.New("trending: no posts fetched")

// PostFetcher searches the roster in bounded concurrent batches and returns a deduplicated,
// ranked candidate pool.
type PostFetcher struct {
	Client          SearchClient
	Handles         []string
	Ranker          Ranker
	BatchSize       int
	Concurrency     int
	MaxBatchResults int
	MaxCandidates   int
	Now             func() time.Time
	Logger          zerolog.Logger
}

// NewPostFetcher constructs a fetcher with the default batching limits.
func NewPostFetcher(client SearchClient, handles []string, ranker Ranker, logger zerolog.Logger) (*PostFetcher, error) {
	if client == nil {
		return nil, errors.New("fetcher requires a search client")
	}
	if len(handles) == 0 {
		handles = DefaultAccounts()
	}
	if ranker.MaxScore == 0 {
		ranker = DefaultRanker()
	}
	return &PostFetcher{
		Client:          client,
		Handles:         handles,
		Ranker:          ranker,
		BatchSize:       8,
		Concurrency:     3,
		MaxBatchResults: 100,
		MaxCandidates:   220,
		Now:             time.Now,
		Logger:          logger,
	}, nil
}

// Fetch runs every batch, tolerating individual batch failures.
func (f *PostFetcher) Fetch(ctx context.Context) ([]CandidatePost, error) {
	batches := chunkHandles(f.Handles, f.BatchSize)
	if len(batches) == 0 {
		return nil, ErrNoPosts
	}

	concurrency := f.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	sem := semaphore.NewWeighted(int64(concurrency))
	results := make([][]CandidatePost, len(batches))

	var g errgroup.Group
	for i, batch := range batches {
		if err := sem.Acquire(ctx, 1); err != nil {
			_ = g.Wait()
			return nil, fmt.Errorf("fetch: %w", err)
		}
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = f.fetchBatch(ctx, i, batch)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	var all []CandidatePost
	for _, posts := range results {
		all = append(all, posts...)
	}

	pool := dedupeCandidates(all)
	if f.MaxCandidates > 0 && len(pool) > f.MaxCandidates {
		pool = pool[:f.MaxCandidates]
	}
	metrics.CandidatePool.Set(float64(len(pool)))

	if len(pool) == 0 {
		return nil, ErrNoPosts
	}
	f.Logger.Info().Int("batches", len(batches)).Int("candidates", len(pool)).Msg("fetched candidate pool")
	return pool, nil
}

func (f *PostFetcher) fetchBatch(ctx context.Context, index int, handles []string) []CandidatePost {
	maxResults := f.MaxBatchResults
	if maxResults <= 0 {
		maxResults = 100
	}

	page, err := f.Client.Search(ctx, handles, maxResults)
	if err != nil {
		metrics.RecordBatch("failed")
		f.Logger.Warn().Err(err).Int("batch", index).Strs("handles", handles).Msg("search batch failed")
		return nil
	}
	if page == nil || len(page.Posts) == 0 {
		metrics.RecordBatch("empty")
		return nil
	}
	metrics.RecordBatch("ok")

	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	fetchedAt := now().UTC()

	posts := make([]CandidatePost, 0, len(page.Posts))
	for _, raw := range page.Posts {
		if raw.ID == "" {
			continue
		}
		posts = append(posts, f.Ranker.Normalize(raw, *page, fetchedAt))
	}
	return posts
}

// dedupeCandidates keeps the highest-ranked copy of each post and sorts the pool by ranking.
func dedupeCandidates(posts []CandidatePost) []CandidatePost {
	best := make(map[string]int, len(posts))
	out := make([]CandidatePost, 0, len(posts))
	for _, post := range posts {
		if idx, ok := best[post.PostID]; ok {
			if post.RankingScore() > out[idx].RankingScore() {
				out[idx] = post
			}
			continue
		}
		best[post.PostID] = len(out)
		out = append(out, post)
	}
	sortByRanking(out)
	return out
}
