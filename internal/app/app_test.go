package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendradar/internal/config"
	"trendradar/internal/llm"
	"trendradar/internal/trending"
)

func offlineConfig() config.Config {
	return config.Config{
		StoreDriver:   "memory",
		SearchSource:  "file",
		SearchFixture: filepath.Join("..", "xapi", "testdata", "search.json"),
		LLMProvider:   "none",
		CacheTTL:      time.Hour,
		MaxTopics:     10,
		MinTopics:     2,
	}
}

func TestBuildRefreshesFromFixture(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, offlineConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Orchestrator.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, res.Refining)
	assert.GreaterOrEqual(t, res.Topics, 2)
	assert.Equal(t, trending.PhaseFast, a.Orchestrator.Status().Phase)

	topics, err := a.Store.AllTopics(ctx)
	require.NoError(t, err)
	assert.Len(t, topics, res.Topics)

	stale, err := a.Orchestrator.IsStale(ctx)
	require.NoError(t, err)
	assert.False(t, stale)
}

func TestBuildRejectsBadSettings(t *testing.T) {
	ctx := context.Background()

	cfg := offlineConfig()
	cfg.StoreDriver = "cassandra"
	_, err := Build(ctx, cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "open store")

	cfg = offlineConfig()
	cfg.SearchSource = "x"
	_, err = Build(ctx, cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "TRENDING_X_BEARER_TOKEN")

	cfg = offlineConfig()
	cfg.LLMProvider = "mistral"
	cfg.LLMAPIKey = "k"
	_, err = Build(ctx, cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "unsupported LLM provider")
}

func TestNewCompleterSelectsProvider(t *testing.T) {
	cases := map[string]any{
		"openai":    &llm.Client{},
		"gemini":    &llm.GeminiClient{},
		"anthropic": &llm.AnthropicClient{},
	}
	for provider, want := range cases {
		c, err := newCompleter(config.Config{LLMProvider: provider, LLMAPIKey: "k"})
		require.NoError(t, err)
		assert.IsType(t, want, c, provider)
	}

	c, err := newCompleter(config.Config{LLMProvider: "gemini"})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestWithCacheHonoursZeroTTL(t *testing.T) {
	base := llm.NewClient("k")

	assert.Same(t, base, withCache(base, 0))
	assert.IsType(t, &llm.CachedCompleter{}, withCache(base, time.Minute))
}

func TestNewRankerAppliesRoster(t *testing.T) {
	r := newRanker(config.Config{Roster: &config.Roster{
		Accounts:      []string{"Example"},
		TrustWeights:  map[string]float64{"Example": 1.3},
		DefaultWeight: 0.4,
	}})
	assert.InDelta(t, 1.3, r.TrustWeights["example"], 1e-9)
	assert.InDelta(t, 0.4, r.DefaultWeight, 1e-9)
	assert.InDelta(t, 1.0, r.TrustWeights["reuters"], 1e-9)
}
