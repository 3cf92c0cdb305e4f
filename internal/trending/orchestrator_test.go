package trending

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendradar/internal/llm"
)

type testSink struct {
	mu     sync.Mutex
	topics map[string]TrendingTopic
	posts  map[string]TrendingPost
	// afterWrite runs after every mutating call with the visible topic count.
	afterWrite func(op string, visible int)
}

func newTestSink() *testSink {
	return &testSink{topics: map[string]TrendingTopic{}, posts: map[string]TrendingPost{}}
}

func (s *testSink) notify(op string) {
	if s.afterWrite != nil {
		s.afterWrite(op, len(s.topics))
	}
}

func (s *testSink) UpsertTopics(_ context.Context, topics []TrendingTopic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range topics {
		s.topics[t.ID] = t
	}
	s.notify("upsert_topics")
	return nil
}

func (s *testSink) UpsertPosts(_ context.Context, posts []TrendingPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range posts {
		s.posts[p.ID] = p
	}
	s.notify("upsert_posts")
	return nil
}

func (s *testSink) DeleteTopicsOlderThan(_ context.Context, ts time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.topics {
		if t.CachedAt.Before(ts) {
			delete(s.topics, id)
			n++
		}
	}
	s.notify("delete_topics")
	return n, nil
}

func (s *testSink) DeletePostsOlderThan(_ context.Context, ts time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, p := range s.posts {
		if p.CachedAt.Before(ts) {
			delete(s.posts, id)
			n++
		}
	}
	s.notify("delete_posts")
	return n, nil
}

func (s *testSink) AllTopics(context.Context) ([]TrendingTopic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TrendingTopic, 0, len(s.topics))
	for _, t := range s.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PostCount != out[j].PostCount {
			return out[i].PostCount > out[j].PostCount
		}
		return out[i].TrendName < out[j].TrendName
	})
	return out, nil
}

func (s *testSink) TopicByID(_ context.Context, id string) (TrendingTopic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.topics[id]
	if !ok {
		return TrendingTopic{}, ErrNotFound
	}
	return t, nil
}

func (s *testSink) PostsForTopic(_ context.Context, topicID string) ([]TrendingPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TrendingPost
	for _, p := range s.posts {
		if p.TopicID == topicID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *testSink) LatestCachedAt(context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest time.Time
	for _, t := range s.topics {
		if t.CachedAt.After(latest) {
			latest = t.CachedAt
		}
	}
	return latest, !latest.IsZero(), nil
}

type staticSource struct {
	posts []CandidatePost
	err   error
}

func (s staticSource) Fetch(context.Context) ([]CandidatePost, error) {
	return s.posts, s.err
}

// sequenceSource answers each Fetch with the next scripted result and repeats the last one.
type sequenceSource struct {
	mu    sync.Mutex
	steps []staticSource
}

func (s *sequenceSource) Fetch(ctx context.Context) ([]CandidatePost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := s.steps[0]
	if len(s.steps) > 1 {
		s.steps = s.steps[1:]
	}
	return step.Fetch(ctx)
}

type funcEngine func(ctx context.Context, posts []CandidatePost) ([]TopicCluster, error)

func (f funcEngine) BuildClusters(ctx context.Context, posts []CandidatePost) ([]TopicCluster, error) {
	return f(ctx, posts)
}

func newTestOrchestrator(t *testing.T, source CandidateSource, refiner ClusterEngine, sink Sink) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(OrchestratorConfig{
		Source:  source,
		Refiner: refiner,
		Builder: NewSnapshotBuilder(),
		Sink:    sink,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)
	return o
}

func trendNames(t *testing.T, sink Sink) []string {
	t.Helper()
	topics, err := sink.AllTopics(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(topics))
	for _, topic := range topics {
		names = append(names, topic.TrendName)
	}
	sort.Strings(names)
	return names
}

func TestRefreshPersistsFastThenRefined(t *testing.T) {
	posts := append(pool("t", "chip", 30), pool("w", "election", 10)...)
	refiner := funcEngine(func(ctx context.Context, _ []CandidatePost) ([]TopicCluster, error) {
		return []TopicCluster{{TopicKey: "chip-deal", Title: "Chipmaker deal", MemberPostIDs: []string{"t-0", "t-1"}}}, nil
	})
	sink := newTestSink()
	o := newTestOrchestrator(t, staticSource{posts: posts}, refiner, sink)

	res, err := o.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, res.Topics)
	assert.True(t, res.Refining)

	o.Wait()

	st := o.Status()
	assert.Equal(t, PhaseRefined, st.Phase)
	assert.False(t, st.Refining)

	names := trendNames(t, sink)
	assert.Len(t, names, 20)
	assert.Contains(t, names, "chip-deal")
	assert.NotContains(t, names, "fallback-technology")
}

func TestRefineFailureKeepsFastSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	refiner := LLMClusterer{Client: llm.NewGeminiClient("key", llm.WithGeminiBaseURL(srv.URL)), Logger: zerolog.Nop()}
	sink := newTestSink()
	o := newTestOrchestrator(t, staticSource{posts: pool("p", "chip", 25)}, refiner, sink)

	_, err := o.Refresh(context.Background())
	require.NoError(t, err)
	before := trendNames(t, sink)
	beforeStamp, _, _ := sink.LatestCachedAt(context.Background())

	o.Wait()

	assert.Equal(t, before, trendNames(t, sink))
	afterStamp, _, _ := sink.LatestCachedAt(context.Background())
	assert.Equal(t, beforeStamp, afterStamp)
	assert.Equal(t, PhaseFast, o.Status().Phase)
}

func TestRefreshFailsWhenNothingFetched(t *testing.T) {
	sink := newTestSink()
	o := newTestOrchestrator(t, staticSource{err: ErrNoPosts}, nil, sink)

	_, err := o.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoPosts)
	assert.Empty(t, trendNames(t, sink))
	assert.Equal(t, PhaseEmpty, o.Status().Phase)
	assert.NotEmpty(t, o.Status().LastError)
}

func TestNewRefreshSupersedesPendingRefinement(t *testing.T) {
	started := make(chan struct{})
	var calls int
	var mu sync.Mutex
	refiner := funcEngine(func(ctx context.Context, _ []CandidatePost) ([]TopicCluster, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(started)
			<-ctx.Done()
			return []TopicCluster{{TopicKey: "stale-refinement", Title: "Stale", MemberPostIDs: []string{"p-0"}}}, nil
		}
		return nil, nil
	})
	sink := newTestSink()
	o := newTestOrchestrator(t, staticSource{posts: pool("p", "chip", 25)}, refiner, sink)

	_, err := o.Refresh(context.Background())
	require.NoError(t, err)
	<-started

	_, err = o.Refresh(context.Background())
	require.NoError(t, err)
	o.Wait()

	assert.NotContains(t, trendNames(t, sink), "stale-refinement")
	assert.Equal(t, PhaseFast, o.Status().Phase)
}

func TestFailedRefreshKeepsPendingRefinement(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	refiner := funcEngine(func(ctx context.Context, _ []CandidatePost) ([]TopicCluster, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return []TopicCluster{{TopicKey: "chip-deal", Title: "Chipmaker deal", MemberPostIDs: []string{"p-0", "p-1"}}}, nil
	})
	source := &sequenceSource{steps: []staticSource{
		{posts: pool("p", "chip", 25)},
		{err: ErrNoPosts},
	}}
	sink := newTestSink()
	o := newTestOrchestrator(t, source, refiner, sink)

	_, err := o.Refresh(context.Background())
	require.NoError(t, err)
	<-started

	_, err = o.Refresh(context.Background())
	require.ErrorIs(t, err, ErrNoPosts)

	close(release)
	o.Wait()

	assert.Equal(t, PhaseRefined, o.Status().Phase)
	assert.Contains(t, trendNames(t, sink), "chip-deal")
}

func TestPersistNeverShrinksVisibleTopicsMidway(t *testing.T) {
	sink := newTestSink()
	var observed []int
	sink.afterWrite = func(_ string, visible int) { observed = append(observed, visible) }

	first := newTestOrchestrator(t, staticSource{posts: pool("a", "chip", 25)}, nil, sink)
	_, err := first.Refresh(context.Background())
	require.NoError(t, err)
	prev := len(trendNames(t, sink))

	observed = nil
	_, err = first.Refresh(context.Background())
	require.NoError(t, err)
	next := len(trendNames(t, sink))

	floor := prev
	if next < floor {
		floor = next
	}
	require.NotEmpty(t, observed)
	for _, n := range observed {
		assert.GreaterOrEqual(t, n, floor)
	}
	assert.Equal(t, 20, next)
}

func TestStampsStrictlyIncreaseWithFrozenClock(t *testing.T) {
	o, err := NewOrchestrator(OrchestratorConfig{
		Source: staticSource{posts: pool("p", "chip", 3)},
		Sink:   newTestSink(),
		Now:    func() time.Time { return testNow },
	})
	require.NoError(t, err)
	defer o.Close()

	a := o.nextStamp()
	b := o.nextStamp()
	assert.True(t, b.After(a))
	assert.Equal(t, time.Millisecond, b.Sub(a))
}

func TestIsStale(t *testing.T) {
	now := testNow
	sink := newTestSink()
	o, err := NewOrchestrator(OrchestratorConfig{
		Source:   staticSource{posts: pool("p", "chip", 3)},
		Builder:  NewSnapshotBuilder(),
		Sink:     sink,
		CacheTTL: 2 * time.Hour,
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)
	defer o.Close()

	stale, err := o.IsStale(context.Background())
	require.NoError(t, err)
	assert.True(t, stale)

	_, refreshed, err := o.RefreshIfStale(context.Background())
	require.NoError(t, err)
	assert.True(t, refreshed)

	stale, err = o.IsStale(context.Background())
	require.NoError(t, err)
	assert.False(t, stale)

	_, refreshed, err = o.RefreshIfStale(context.Background())
	require.NoError(t, err)
	assert.False(t, refreshed)

	now = now.Add(3 * time.Hour)
	stale, err = o.IsStale(context.Background())
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestCloseCancelsRefinement(t *testing.T) {
	refiner := funcEngine(func(ctx context.Context, _ []CandidatePost) ([]TopicCluster, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	o, err := NewOrchestrator(OrchestratorConfig{
		Source:  staticSource{posts: pool("p", "chip", 3)},
		Refiner: refiner,
		Sink:    newTestSink(),
	})
	require.NoError(t, err)

	_, err = o.Refresh(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		o.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop refinement")
	}
}

func TestNewOrchestratorValidates(t *testing.T) {
	_, err := NewOrchestrator(OrchestratorConfig{Sink: newTestSink()})
	assert.Error(t, err)
	_, err = NewOrchestrator(OrchestratorConfig{Source: staticSource{}})
	assert.Error(t, err)
}
