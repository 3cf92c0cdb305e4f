package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "gemini", cfg.LLMProvider)
	assert.Equal(t, 120*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 40, cfg.MaxTopics)
	assert.Equal(t, 20, cfg.MinTopics)
	assert.Equal(t, 8192, cfg.LLMMaxTokens)
	assert.True(t, cfg.BackfillReuse)
	assert.Nil(t, cfg.Roster)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TRENDING_STORE", "postgres")
	t.Setenv("TRENDING_CACHE_TTL_M", "30")
	t.Setenv("TRENDING_LLM_TEMPERATURE", "0.5")
	t.Setenv("TRENDING_FETCH_CONCURRENCY", "5")
	t.Setenv("TRENDING_BACKFILL_REUSE", "off")
	t.Setenv("TRENDING_MIN_TOPICS", "5")
	t.Setenv("TRENDING_MAX_TOPICS", "10")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, 30*time.Minute, cfg.CacheTTL)
	assert.InDelta(t, 0.5, cfg.LLMTemperature, 1e-9)
	assert.Equal(t, 5, cfg.FetchConcurrency)
	assert.False(t, cfg.BackfillReuse)
	assert.Equal(t, 5, cfg.MinTopics)
	assert.Equal(t, 10, cfg.MaxTopics)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("TRENDING_BATCH_SIZE", "eight")
	_, err := FromEnv()
	assert.ErrorContains(t, err, "TRENDING_BATCH_SIZE")

	t.Setenv("TRENDING_BATCH_SIZE", "8")
	t.Setenv("TRENDING_MIN_TOPICS", "50")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "exceeds")
}

func TestFromEnvLoadsRoster(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "roster.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
accounts = ["Reuters", "AP"]
default_weight = 1.1

[trust_weights]
reuters = 1.4
`), 0o600))
	t.Setenv("TRENDING_ROSTER_FILE", path)

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.NotNil(t, cfg.Roster)
	assert.Equal(t, []string{"Reuters", "AP"}, cfg.Roster.Accounts)
	assert.InDelta(t, 1.4, cfg.Roster.TrustWeights["reuters"], 1e-9)
	assert.InDelta(t, 1.1, cfg.Roster.DefaultWeight, 1e-9)
}

func TestLoadRosterRequiresAccounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.toml")
	require.NoError(t, os.WriteFile(path, []byte("default_weight = 1.0\n"), 0o600))

	_, err := LoadRoster(path)
	assert.ErrorContains(t, err, "no accounts")
}
