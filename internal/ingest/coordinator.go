package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/newsflow/internal/classify"
	"github.com/deusflow/newsflow/internal/dedup"
	"github.com/deusflow/newsflow/internal/news"
	"github.com/deusflow/newsflow/internal/rss"
	"github.com/deusflow/newsflow/internal/scraper"
	"github.com/deusflow/newsflow/internal/storage"
)

const (
	DefaultBatchSize   = 5
	DefaultItemTimeout = 30 * time.Second
)

var ErrRunInProgress = errors.New("ingestion run already in progress")

type Mode string

const (
	ModeFast Mode = "fast"
	ModeFull Mode = "full"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFast, ModeFull:
		return Mode(s), nil
	case "":
		return ModeFull, nil
	}
	return "", fmt.Errorf("unknown mode %q (want fast or full)", s)
}

type FeedReader interface {
	ReadFeed(ctx context.Context, url string) (rss.Result, error)
}

type APIReader interface {
	Read(ctx context.Context, src news.Source) ([]news.CandidateItem, error)
}

type Extractor interface {
	Extract(ctx context.Context, pageURL string, declared []news.Image) (*scraper.ArticleContent, error)
	Snippet(item news.CandidateItem) *scraper.ArticleContent
}

type Classifier interface {
	Classify(ctx context.Context, in classify.Input) (classify.Result, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, title, content, lang string) (string, error)
}

// Recorder receives pipeline events; metrics.Metrics implements it.
type Recorder interface {
	ItemStage(stage string)
	SourceResult(result string)
	RunFinished(d time.Duration, err error)
}

type Config struct {
	BatchSize   int
	ItemTimeout time.Duration
}

// Deps are the collaborators of a Coordinator. API, Summarizer and Recorder
// are optional.
type Deps struct {
	Store      storage.Store
	Feeds      FeedReader
	API        APIReader
	Extractor  Extractor
	Classifier Classifier
	Summarizer Summarizer
	Recorder   Recorder
	Logger     *slog.Logger
}

type Coordinator struct {
	cfg     Config
	deps    Deps
	dedup   *dedup.Deduplicator
	status  *StatusHolder
	running atomic.Bool
	logger  *slog.Logger
	now     func() time.Time
}

func New(cfg Config, deps Deps) *Coordinator {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = DefaultItemTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	return &Coordinator{
		cfg:    cfg,
		deps:   deps,
		dedup:  dedup.New(deps.Store),
		status: &StatusHolder{},
		logger: logger.With("component", "ingest"),
		now:    time.Now,
	}
}

// Status returns the last-run snapshot.
func (c *Coordinator) Status() Status {
	return c.status.Snapshot()
}

// Running reports whether a run is in progress in this process.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// Run ingests every active source once. Sources are processed in batches of
// Config.BatchSize; a batch finishes before the next one starts. The returned
// stats are usable even when err is non-nil. Only a failure to list sources
// fails the run.
func (c *Coordinator) Run(ctx context.Context, mode Mode) (RunStats, error) {
	if !c.running.CompareAndSwap(false, true) {
		return RunStats{}, ErrRunInProgress
	}
	defer c.running.Store(false)

	started := c.now()
	c.status.start(mode, started)
	c.logger.Info("ingestion run started", "mode", mode)

	stats, err := c.run(ctx, mode)

	finished := c.now()
	c.status.finish(finished, err)
	c.deps.Recorder.RunFinished(finished.Sub(started), err)

	if err != nil {
		c.logger.Error("ingestion run failed", "error", err)
		return stats, err
	}
	c.logger.Info("ingestion run finished",
		"duration", finished.Sub(started).Round(time.Millisecond),
		"sources", stats.SourcesTotal,
		"sources_failed", stats.SourcesFailed,
		"items_seen", stats.Totals.ItemsSeen,
		"items_inserted", stats.Totals.ItemsInserted)
	return stats, nil
}

func (c *Coordinator) run(ctx context.Context, mode Mode) (RunStats, error) {
	stats := RunStats{PerSource: []SourceStats{}}

	sources, err := c.deps.Store.ListActiveSources(ctx)
	if err != nil {
		return stats, fmt.Errorf("list active sources: %w", err)
	}
	stats.SourcesTotal = len(sources)
	c.status.setActive(len(sources))

	for start := 0; start < len(sources); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(sources))
		batch := sources[start:end]
		results := make([]SourceStats, len(batch))

		var g errgroup.Group
		for i, src := range batch {
			g.Go(func() error {
				results[i] = c.processSource(ctx, src, mode)
				return nil
			})
		}
		_ = g.Wait()

		for _, s := range results {
			stats.add(s)
		}
		if ctx.Err() != nil {
			c.logger.Warn("ingestion run cancelled", "remaining_sources", len(sources)-end)
			break
		}
	}
	return stats, nil
}

type nopRecorder struct{}

func (nopRecorder) ItemStage(string)                 {}
func (nopRecorder) SourceResult(string)              {}
func (nopRecorder) RunFinished(time.Duration, error) {}
