package transporthttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendradar/internal/store"
	"trendradar/internal/trending"
)

var cachedAt = time.Date(2025, 10, 3, 12, 0, 0, 0, time.UTC)

type fakeRefresher struct {
	result  trending.RefreshResult
	err     error
	stale   bool
	status  trending.Status
	refresh int
	ifStale int
}

func (f *fakeRefresher) Refresh(context.Context) (trending.RefreshResult, error) {
	f.refresh++
	return f.result, f.err
}

func (f *fakeRefresher) RefreshIfStale(ctx context.Context) (trending.RefreshResult, bool, error) {
	f.ifStale++
	if !f.stale {
		return trending.RefreshResult{}, false, nil
	}
	res, err := f.Refresh(ctx)
	return res, true, err
}

func (f *fakeRefresher) IsStale(context.Context) (bool, error) { return f.stale, nil }

func (f *fakeRefresher) Status() trending.Status { return f.status }

func seededStore(t *testing.T) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.UpsertTopics(ctx, []trending.TrendingTopic{
		{ID: "t-small", TrendName: "quake", Title: "Quake", Sentiment: trending.SentimentNegative, Category: "world", PostCount: 1, CachedAt: cachedAt},
		{ID: "t-big", TrendName: "ai", Title: "AI launch", Sentiment: trending.SentimentPositive, Category: "technology", PostCount: 2, CachedAt: cachedAt},
	}))
	require.NoError(t, mem.UpsertPosts(ctx, []trending.TrendingPost{
		{ID: "p1", PostID: "1", TopicID: "t-big", LikeCount: 10, CachedAt: cachedAt},
		{ID: "p2", PostID: "2", TopicID: "t-big", LikeCount: 50, CachedAt: cachedAt},
		{ID: "p3", PostID: "3", TopicID: "t-small", LikeCount: 5, CachedAt: cachedAt},
	}))
	return mem
}

func serve(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	return rec
}

func TestTopicsEndpoint(t *testing.T) {
	srv := NewServer(&fakeRefresher{}, seededStore(t), zerolog.Nop())

	rec := serve(t, srv, http.MethodGet, "/trending")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Topics   []trending.TrendingTopic `json:"topics"`
		Count    int                      `json:"count"`
		CachedAt time.Time                `json:"cached_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Topics, 2)
	assert.Equal(t, "t-big", payload.Topics[0].ID)
	assert.Equal(t, 2, payload.Count)
	assert.True(t, payload.CachedAt.Equal(cachedAt))
}

func TestTopicsEndpointEmptyStore(t *testing.T) {
	srv := NewServer(&fakeRefresher{}, store.NewMemory(), zerolog.Nop())

	rec := serve(t, srv, http.MethodGet, "/trending")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"topics":[]`)
	assert.NotContains(t, rec.Body.String(), "cached_at")
}

func TestTopicEndpoint(t *testing.T) {
	srv := NewServer(&fakeRefresher{}, seededStore(t), zerolog.Nop())

	rec := serve(t, srv, http.MethodGet, "/trending/t-big")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Topic trending.TrendingTopic  `json:"topic"`
		Posts []trending.TrendingPost `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "AI launch", payload.Topic.Title)
	require.Len(t, payload.Posts, 2)
	assert.Equal(t, "2", payload.Posts[0].PostID)

	rec = serve(t, srv, http.MethodGet, "/trending/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	fake := &fakeRefresher{result: trending.RefreshResult{Topics: 3, Posts: 9, CachedAt: cachedAt, Refining: true}}
	srv := NewServer(fake, store.NewMemory(), zerolog.Nop())

	rec := serve(t, srv, http.MethodPost, "/trending/refresh")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Refreshed bool                   `json:"refreshed"`
		Result    trending.RefreshResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.True(t, payload.Refreshed)
	assert.Equal(t, 3, payload.Result.Topics)
	assert.True(t, payload.Result.Refining)
	assert.Equal(t, 1, fake.refresh)

	rec = serve(t, srv, http.MethodPost, "/trending/refresh?if_stale=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.False(t, payload.Refreshed)
	assert.Equal(t, 1, fake.ifStale)
	assert.Equal(t, 1, fake.refresh)
}

func TestRefreshEndpointUpstreamFailure(t *testing.T) {
	srv := NewServer(&fakeRefresher{err: trending.ErrNoPosts}, store.NewMemory(), zerolog.Nop())

	rec := serve(t, srv, http.MethodPost, "/trending/refresh")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestRefreshRequiresPost(t *testing.T) {
	srv := NewServer(&fakeRefresher{}, store.NewMemory(), zerolog.Nop())

	rec := serve(t, srv, http.MethodDelete, "/trending/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	fake := &fakeRefresher{
		stale:  true,
		status: trending.Status{Phase: trending.PhaseFast, Refining: true, LastError: "boom"},
	}
	srv := NewServer(fake, store.NewMemory(), zerolog.Nop())

	rec := serve(t, srv, http.MethodGet, "/trending/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "fast", payload["phase"])
	assert.Equal(t, true, payload["refining"])
	assert.Equal(t, true, payload["stale"])
	assert.Equal(t, "boom", payload["last_error"])
}

func TestHealthAndMetrics(t *testing.T) {
	srv := NewServer(&fakeRefresher{}, store.NewMemory(), zerolog.Nop())

	rec := serve(t, srv, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(t, srv, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSwaggerServesOpenAPI(t *testing.T) {
	srv := NewServer(&fakeRefresher{}, store.NewMemory(), zerolog.Nop())

	rec := serve(t, srv, http.MethodGet, "/swagger/openapi.yaml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/trending/{id}")

	rec = serve(t, srv, http.MethodGet, "/swagger")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "swagger-ui")
}
