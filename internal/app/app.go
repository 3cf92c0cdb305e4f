// Package app wires configuration into a running refresh pipeline. Both the API server and the
// CLI build on it.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"trendradar/internal/config"
	"trendradar/internal/llm"
	"trendradar/internal/store"
	"trendradar/internal/trending"
	"trendradar/internal/xapi"
)

const (
	llmCacheSize = 64

	// RefreshTimeout bounds a single synchronous refresh triggered outside HTTP.
	RefreshTimeout = 2 * time.Minute
)

// App holds the long-lived components.
type App struct {
	Store        store.Store
	Orchestrator *trending.Orchestrator
	Logger       zerolog.Logger
}

// Build opens the store and assembles the fetcher, clusterers and orchestrator.
func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	st, err := store.Open(ctx, store.Options{
		Driver:      cfg.StoreDriver,
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	orch, err := newOrchestrator(cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &App{Store: st, Orchestrator: orch, Logger: logger}, nil
}

// Close stops background refinement and releases the store.
func (a *App) Close() error {
	a.Orchestrator.Close()
	return a.Store.Close()
}

func newOrchestrator(cfg config.Config, sink trending.Sink, logger zerolog.Logger) (*trending.Orchestrator, error) {
	search, err := newSearchClient(cfg)
	if err != nil {
		return nil, err
	}

	handles := trending.DefaultAccounts()
	if cfg.Roster != nil {
		handles = cfg.Roster.Accounts
	}

	fetcher, err := trending.NewPostFetcher(search, handles, newRanker(cfg), logger.With().Str("component", "fetcher").Logger())
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}
	if cfg.BatchSize > 0 {
		fetcher.BatchSize = cfg.BatchSize
	}
	if cfg.FetchConcurrency > 0 {
		fetcher.Concurrency = cfg.FetchConcurrency
	}
	if cfg.BatchResults > 0 {
		fetcher.MaxBatchResults = cfg.BatchResults
	}
	if cfg.MaxCandidates > 0 {
		fetcher.MaxCandidates = cfg.MaxCandidates
	}

	builder := trending.NewSnapshotBuilder()
	if cfg.MaxTopics > 0 {
		builder.MaxTopics = cfg.MaxTopics
	}
	if cfg.MinTopics >= 0 {
		builder.MinTopics = cfg.MinTopics
	}
	builder.AllowBackfillReuse = cfg.BackfillReuse

	var refiner trending.ClusterEngine
	completer, err := newCompleter(cfg)
	if err != nil {
		return nil, err
	}
	if completer != nil {
		refiner = &trending.LLMClusterer{
			Client:      withCache(completer, cfg.LLMCacheTTL),
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
			MaxItems:    cfg.LLMMaxItems,
			Logger:      logger.With().Str("component", "llm_clusterer").Logger(),
		}
		logger.Info().Str("provider", cfg.LLMProvider).Str("model", cfg.LLMModel).Msg("LLM refinement enabled")
	} else {
		logger.Info().Msg("LLM refinement disabled, serving heuristic topics only")
	}

	orch, err := trending.NewOrchestrator(trending.OrchestratorConfig{
		Source:   fetcher,
		Fast:     trending.NewHeuristicClusterer(builder.MaxTopics, 8),
		Refiner:  refiner,
		Builder:  builder,
		Sink:     sink,
		CacheTTL: cfg.CacheTTL,
		Logger:   logger.With().Str("component", "orchestrator").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}
	return orch, nil
}

// withCache memoizes completions for ttl. A non-positive ttl disables caching.
func withCache(c llm.Completer, ttl time.Duration) llm.Completer {
	if ttl <= 0 {
		return c
	}
	return llm.NewCachedCompleter(c, llmCacheSize, ttl)
}

func newSearchClient(cfg config.Config) (trending.SearchClient, error) {
	switch strings.ToLower(cfg.SearchSource) {
	case "file":
		searcher, err := xapi.NewFileSearcher(cfg.SearchFixture)
		if err != nil {
			return nil, fmt.Errorf("init search fixture: %w", err)
		}
		return searcher, nil
	case "x", "":
		if cfg.XBearerToken == "" {
			return nil, fmt.Errorf("TRENDING_X_BEARER_TOKEN is required for the x search source")
		}
		client := xapi.NewClient(cfg.XBearerToken,
			xapi.WithBaseURL(cfg.XBaseURL),
			xapi.WithRequestsPerMinute(cfg.XRequestsPerMin),
		)
		return xapi.NewSearcher(client), nil
	default:
		return nil, fmt.Errorf("unsupported search source %q", cfg.SearchSource)
	}
}

// newCompleter returns nil when refinement is disabled or no key is configured.
func newCompleter(cfg config.Config) (llm.Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if provider == "none" || provider == "" || cfg.LLMAPIKey == "" {
		return nil, nil
	}

	switch provider {
	case "openai":
		return llm.NewClient(cfg.LLMAPIKey, llm.WithBaseURL(cfg.LLMBaseURL), llm.WithModel(cfg.LLMModel)), nil
	case "gemini":
		return llm.NewGeminiClient(cfg.LLMAPIKey, llm.WithGeminiBaseURL(cfg.LLMBaseURL), llm.WithGeminiModel(cfg.LLMModel)), nil
	case "anthropic":
		var opts []option.RequestOption
		if cfg.LLMBaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.LLMBaseURL))
		}
		return llm.NewAnthropicClient(cfg.LLMAPIKey, cfg.LLMModel, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
}

func newRanker(cfg config.Config) trending.Ranker {
	ranker := trending.DefaultRanker()
	if cfg.Roster == nil {
		return ranker
	}
	for handle, weight := range cfg.Roster.TrustWeights {
		ranker.TrustWeights[strings.ToLower(strings.TrimSpace(handle))] = weight
	}
	if cfg.Roster.DefaultWeight > 0 {
		ranker.DefaultWeight = cfg.Roster.DefaultWeight
	}
	return ranker
}
