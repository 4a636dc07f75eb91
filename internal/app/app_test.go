package app

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsflow/internal/config"
)

func TestScheduleOnce(t *testing.T) {
	var calls atomic.Int32
	Schedule(context.Background(), 0, func(context.Context) { calls.Add(1) })
	assert.EqualValues(t, 1, calls.Load())
}

func TestScheduleRepeatsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	done := make(chan struct{})
	go func() {
		Schedule(ctx, 10*time.Millisecond, func(context.Context) {
			if calls.Add(1) == 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("schedule did not stop after cancel")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	sources := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(sources, []byte(`
sources:
  - id: empty
    name: Empty source
    language: en
    feeds: []
`), 0o644))

	return &config.Config{
		DBDriver:     "memory",
		SourcesFile:  sources,
		Mode:         "fast",
		BatchSize:    5,
		ItemTimeout:  time.Second,
		RateInterval: time.Millisecond,
		FetchTimeout: time.Second,
		FetchRetries: 1,
		MaxRedirects: 5,
		Version:      "test",
	}
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Run(ctx))

	status := a.Coordinator().Status()
	assert.False(t, status.Running)
	assert.Equal(t, 1, status.ActiveSources)
	assert.NotNil(t, status.FinishedAt)
	assert.Empty(t, status.Error)
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "turbo"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.KeywordsFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.SourcesFile = filepath.Join(t.TempDir(), "missing.yaml")
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	a.Close()
}
