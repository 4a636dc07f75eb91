package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsflow/internal/news"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]string{})
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, ModeFull, cfg.Mode)
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.ItemTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Interval)
	assert.Equal(t, 3, cfg.FetchRetries)
	assert.Equal(t, 400, cfg.FailStatus)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBase)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryJitter)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "dev", cfg.Version)
}

func TestLoadFlagsAndEnv(t *testing.T) {
	t.Setenv("BATCH_SIZE", "2")
	t.Setenv("PROXIES", "http://p1:8080,http://p2:8080")

	cfg, err := Load([]string{"--mode", "fast", "--interval", "0", "--db-driver", "memory", "--user-agent", "ua-1", "--user-agent", "ua-2"})
	require.NoError(t, err)

	assert.Equal(t, ModeFast, cfg.Mode)
	assert.Equal(t, time.Duration(0), cfg.Interval)
	assert.Equal(t, 2, cfg.BatchSize)
	assert.Equal(t, "memory", cfg.DBDriver)
	assert.Equal(t, []string{"ua-1", "ua-2"}, cfg.UserAgents)
	assert.Equal(t, []string{"http://p1:8080", "http://p2:8080"}, cfg.Proxies)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load([]string{"--mode", "slow"})
	assert.Error(t, err)

	_, err = Load([]string{"--batch-size", "0"})
	assert.ErrorContains(t, err, "batch size")

	_, err = Load([]string{"--fail-status", "42"})
	assert.ErrorContains(t, err, "fail status")

	_, err = Load([]string{"--db-dsn", ""})
	assert.ErrorContains(t, err, "dsn")
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSources(t *testing.T) {
	path := writeFile(t, `
sources:
  - id: eenadu
    name: Eenadu
    language: te
    categories: [general, politics]
    feeds:
      - https://example.com/rss/top.xml
      - https://example.com/rss/sports.xml
  - id: wire
    type: api
    api_url: https://api.example.com/v2/top-headlines?country=in
    language: en
  - id: paused
    feeds: [https://paused.example.com/feed]
    active: false
`)

	sources, err := LoadSources(path)
	require.NoError(t, err)
	require.Len(t, sources, 3)

	assert.Equal(t, news.Source{
		ID:         "eenadu",
		Name:       "Eenadu",
		FeedURLs:   []string{"https://example.com/rss/top.xml", "https://example.com/rss/sports.xml"},
		Type:       news.SourceFeed,
		Categories: []string{"general", "politics"},
		Language:   "te",
		Active:     true,
	}, sources[0])
	assert.True(t, sources[1].IsAPI())
	assert.Equal(t, "wire", sources[1].Name)
	assert.False(t, sources[2].Active)
}

func TestLoadSourcesErrors(t *testing.T) {
	_, err := LoadSources(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadSources(writeFile(t, "sources:\n  - id: a\n    type: api\n"))
	assert.ErrorContains(t, err, "api_url")

	_, err = LoadSources(writeFile(t, "sources:\n  - id: a\n  - id: a\n"))
	assert.ErrorContains(t, err, "defined twice")

	_, err = LoadSources(writeFile(t, "sources:\n  - id: a\n    feed: https://x\n"))
	assert.Error(t, err)
}
