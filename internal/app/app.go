package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/deusflow/newsflow/internal/apisource"
	"github.com/deusflow/newsflow/internal/classify"
	"github.com/deusflow/newsflow/internal/config"
	"github.com/deusflow/newsflow/internal/fetch"
	"github.com/deusflow/newsflow/internal/gemini"
	"github.com/deusflow/newsflow/internal/ingest"
	"github.com/deusflow/newsflow/internal/logger"
	"github.com/deusflow/newsflow/internal/metrics"
	"github.com/deusflow/newsflow/internal/ratelimit"
	"github.com/deusflow/newsflow/internal/rss"
	"github.com/deusflow/newsflow/internal/scraper"
	"github.com/deusflow/newsflow/internal/server"
	"github.com/deusflow/newsflow/internal/storage"
)

// App wires the pipeline from configuration.
type App struct {
	cfg     *config.Config
	mode    ingest.Mode
	store   storage.Store
	gemini  *gemini.Client
	metrics *metrics.Metrics
	gate    *ratelimit.Gate
	coord   *ingest.Coordinator
	logger  *slog.Logger
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.Init(cfg.Debug)

	mode, err := ingest.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &App{cfg: cfg, mode: mode, store: store, logger: logger.Component("app")}

	if err := a.syncSources(ctx); err != nil {
		a.Close()
		return nil, err
	}

	tables, err := classify.BuiltinTables()
	if cfg.KeywordsFile != "" {
		tables, err = classify.LoadTablesFile(cfg.KeywordsFile)
	}
	if err != nil {
		a.Close()
		return nil, err
	}
	a.logger.Info("keyword tables loaded", "version", tables.Version, "categories", len(tables.Keys()))

	a.metrics = metrics.New()
	gate := ratelimit.NewGate(cfg.RateInterval)
	a.gate = gate

	fetchCfg := fetch.Config{
		Timeout:      cfg.FetchTimeout,
		MaxRedirects: cfg.MaxRedirects,
		FailStatus:   cfg.FailStatus,
		MaxAttempts:  cfg.FetchRetries,
		RetryBase:    cfg.RetryBase,
		RetryJitter:  cfg.RetryJitter,
		UserAgents:   cfg.UserAgents,
		Proxies:      cfg.Proxies,
	}
	// Feeds and article pages rotate identities independently.
	feedFetcher, err := fetch.New(fetchCfg, gate, log, a.metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	pageFetcher, err := fetch.New(fetchCfg, gate, log, a.metrics)
	if err != nil {
		a.Close()
		return nil, err
	}

	feedHTTP := &http.Client{
		Timeout:   cfg.FetchTimeout,
		Transport: gate.Transport(nil),
	}

	var summarizer ingest.Summarizer
	if cfg.GeminiAPIKey != "" {
		a.gemini, err = gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			a.Close()
			return nil, err
		}
		summarizer = a.gemini
	} else {
		a.logger.Info("GEMINI_API_KEY not set, summaries use feed snippets")
	}

	a.coord = ingest.New(ingest.Config{
		BatchSize:   cfg.BatchSize,
		ItemTimeout: cfg.ItemTimeout,
	}, ingest.Deps{
		Store:      store,
		Feeds:      rss.NewReader(feedHTTP, feedFetcher, log, a.metrics),
		API:        apisource.New(feedFetcher, cfg.NewsAPIKey, log),
		Extractor:  scraper.New(pageFetcher, log),
		Classifier: classify.New(tables, store, log, a.metrics),
		Summarizer: summarizer,
		Recorder:   a.metrics,
		Logger:     log,
	})
	return a, nil
}

// syncSources upserts the sources file into the store. A missing file is
// not an error: sources may be managed directly in the database.
func (a *App) syncSources(ctx context.Context) error {
	if a.cfg.SourcesFile == "" {
		return nil
	}
	sources, err := config.LoadSources(a.cfg.SourcesFile)
	if errors.Is(err, fs.ErrNotExist) {
		a.logger.Warn("sources file not found, using stored sources", "path", a.cfg.SourcesFile)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	for _, src := range sources {
		if err := a.store.UpsertSource(ctx, src); err != nil {
			return fmt.Errorf("store source %s: %w", src.ID, err)
		}
	}
	a.logger.Info("sources synced", "count", len(sources), "path", a.cfg.SourcesFile)
	return nil
}

// Coordinator exposes the pipeline, mainly for tests.
func (a *App) Coordinator() *ingest.Coordinator {
	return a.coord
}

// Run serves the monitoring endpoints and runs the pipeline on schedule until
// ctx is cancelled. With a zero interval it runs once and returns.
func (a *App) Run(ctx context.Context) error {
	var srv *server.Server
	var wg sync.WaitGroup

	serveCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	if a.cfg.Listen != "" && a.cfg.Interval > 0 {
		srv = server.New(ctx, a.coord, a.metrics.Handler(), a.cfg.Version, a.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(serveCtx, a.cfg.Listen); err != nil {
				a.logger.Error("monitoring server stopped", "error", err)
			}
		}()
	}

	Schedule(ctx, a.cfg.Interval, func(ctx context.Context) {
		if _, err := a.coord.Run(ctx, a.mode); err != nil {
			if !errors.Is(err, ingest.ErrRunInProgress) {
				a.logger.Error("scheduled run failed", "error", err)
			}
			return
		}
		a.logger.Debug("run stats", "metrics", a.metrics.GetStats(), "rate_gate", a.gate.GetStats())
	})

	stopServer()
	wg.Wait()
	if srv != nil {
		srv.Wait()
	}
	return nil
}

// Schedule calls fn immediately and then every interval until ctx is done.
// A zero interval calls fn once. Calls never overlap; ticks missed while fn
// runs are coalesced.
func Schedule(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (a *App) Close() {
	if a.gemini != nil {
		a.gemini.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close store", "error", err)
		}
	}
}
