package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config captures runtime configuration for the trending service.
type Config struct {
	ListenAddr string

	StoreDriver string
	SQLitePath  string
	PostgresDSN string

	SearchSource     string
	SearchFixture    string
	XBearerToken     string
	XBaseURL         string
	XRequestsPerMin  int
	FetchConcurrency int
	BatchSize        int
	BatchResults     int
	MaxCandidates    int

	LLMProvider    string
	LLMAPIKey      string
	LLMModel       string
	LLMBaseURL     string
	LLMTemperature float64
	LLMMaxTokens   int
	LLMMaxItems    int
	LLMCacheTTL    time.Duration

	CacheTTL        time.Duration
	RefreshSchedule string
	MaxTopics       int
	MinTopics       int
	BackfillReuse   bool

	LogLevel  string
	LogFormat string

	RosterFile string
	Roster     *Roster
}

// Roster overrides the followed accounts and their trust weights.
type Roster struct {
	Accounts      []string           `toml:"accounts"`
	TrustWeights  map[string]float64 `toml:"trust_weights"`
	DefaultWeight float64            `toml:"default_weight"`
}

// FromEnv creates a configuration instance sourced from environment variables.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:       getEnv("TRENDING_LISTEN_ADDR", ":8080"),
		StoreDriver:      getEnv("TRENDING_STORE", "sqlite"),
		SQLitePath:       getEnv("TRENDING_SQLITE_PATH", "data/trending.db"),
		PostgresDSN:      getEnv("TRENDING_POSTGRES_DSN", ""),
		SearchSource:     getEnv("TRENDING_SEARCH_SOURCE", "x"),
		SearchFixture:    getEnv("TRENDING_SEARCH_FIXTURE", ""),
		XBearerToken:     getEnv("TRENDING_X_BEARER_TOKEN", ""),
		XBaseURL:         getEnv("TRENDING_X_BASE_URL", ""),
		XRequestsPerMin:  60,
		FetchConcurrency: 3,
		BatchSize:        8,
		BatchResults:     100,
		MaxCandidates:    220,
		LLMProvider:      getEnv("TRENDING_LLM_PROVIDER", "gemini"),
		LLMAPIKey:        getEnv("TRENDING_LLM_API_KEY", ""),
		LLMModel:         getEnv("TRENDING_LLM_MODEL", ""),
		LLMBaseURL:       getEnv("TRENDING_LLM_BASE_URL", ""),
		LLMTemperature:   0.2,
		LLMMaxTokens:     8192,
		LLMMaxItems:      90,
		LLMCacheTTL:      10 * time.Minute,
		CacheTTL:         120 * time.Minute,
		RefreshSchedule:  getEnv("TRENDING_REFRESH_SCHEDULE", "@every 10m"),
		MaxTopics:        40,
		MinTopics:        20,
		BackfillReuse:    true,
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
		RosterFile:       getEnv("TRENDING_ROSTER_FILE", ""),
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"TRENDING_X_RPM", &cfg.XRequestsPerMin},
		{"TRENDING_FETCH_CONCURRENCY", &cfg.FetchConcurrency},
		{"TRENDING_BATCH_SIZE", &cfg.BatchSize},
		{"TRENDING_BATCH_RESULTS", &cfg.BatchResults},
		{"TRENDING_MAX_CANDIDATES", &cfg.MaxCandidates},
		{"TRENDING_LLM_MAX_TOKENS", &cfg.LLMMaxTokens},
		{"TRENDING_LLM_MAX_ITEMS", &cfg.LLMMaxItems},
		{"TRENDING_MAX_TOPICS", &cfg.MaxTopics},
		{"TRENDING_MIN_TOPICS", &cfg.MinTopics},
	}
	for _, it := range ints {
		if raw := os.Getenv(it.key); raw != "" {
			if _, err := fmt.Sscanf(raw, "%d", it.dst); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", it.key, err)
			}
		}
	}

	if temp := os.Getenv("TRENDING_LLM_TEMPERATURE"); temp != "" {
		if _, err := fmt.Sscanf(temp, "%f", &cfg.LLMTemperature); err != nil {
			return Config{}, fmt.Errorf("parse TRENDING_LLM_TEMPERATURE: %w", err)
		}
	}

	if ttl := os.Getenv("TRENDING_CACHE_TTL_M"); ttl != "" {
		var minutes int
		if _, err := fmt.Sscanf(ttl, "%d", &minutes); err != nil {
			return Config{}, fmt.Errorf("parse TRENDING_CACHE_TTL_M: %w", err)
		}
		cfg.CacheTTL = time.Duration(minutes) * time.Minute
	}

	if ttl := os.Getenv("TRENDING_LLM_CACHE_TTL_M"); ttl != "" {
		var minutes int
		if _, err := fmt.Sscanf(ttl, "%d", &minutes); err != nil {
			return Config{}, fmt.Errorf("parse TRENDING_LLM_CACHE_TTL_M: %w", err)
		}
		cfg.LLMCacheTTL = time.Duration(minutes) * time.Minute
	}

	if reuse := os.Getenv("TRENDING_BACKFILL_REUSE"); reuse != "" {
		switch strings.ToLower(reuse) {
		case "1", "true", "yes", "on":
			cfg.BackfillReuse = true
		case "0", "false", "no", "off":
			cfg.BackfillReuse = false
		default:
			return Config{}, fmt.Errorf("parse TRENDING_BACKFILL_REUSE: unexpected value %q", reuse)
		}
	}

	if cfg.MinTopics > cfg.MaxTopics {
		return Config{}, fmt.Errorf("TRENDING_MIN_TOPICS (%d) exceeds TRENDING_MAX_TOPICS (%d)", cfg.MinTopics, cfg.MaxTopics)
	}

	if cfg.RosterFile != "" {
		roster, err := LoadRoster(cfg.RosterFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Roster = roster
	}

	return cfg, nil
}

// LoadRoster reads a TOML roster file.
func LoadRoster(path string) (*Roster, error) {
	var roster Roster
	if _, err := toml.DecodeFile(path, &roster); err != nil {
		return nil, fmt.Errorf("load roster %s: %w", path, err)
	}
	if len(roster.Accounts) == 0 {
		return nil, fmt.Errorf("load roster %s: no accounts listed", path)
	}
	return &roster, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
