package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/deusflow/newsflow/internal/metrics"
	"github.com/deusflow/newsflow/internal/news"
)

type outcome int

const (
	outcomeInserted outcome = iota
	outcomeDuplicate
	outcomeTimeout
	outcomeFailed
)

// processSource reads every feed of src in declared order and runs the item
// pipeline on each item in feed order. It never panics and never returns an
// error: failures end up in SourceStats.Error.
func (c *Coordinator) processSource(ctx context.Context, src news.Source, mode Mode) (stats SourceStats) {
	stats = SourceStats{SourceID: src.ID, Name: src.Name}
	logger := c.logger.With("source", src.Name, "source_id", src.ID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("source panicked", "panic", r, "stack", string(debug.Stack()))
			stats.Error = fmt.Sprintf("panic: %v", r)
		}
		result := "ok"
		if stats.Failed() {
			result = "failed"
		}
		c.deps.Recorder.SourceResult(result)
	}()

	if src.IsAPI() {
		c.processAPISource(ctx, src, mode, &stats)
	} else {
		c.processFeedSource(ctx, src, mode, &stats)
	}

	if ctx.Err() == nil {
		if err := c.deps.Store.TouchSource(ctx, src.ID, c.now().UTC()); err != nil {
			logger.Warn("failed to update last scraped time", "error", err)
		}
	}

	logger.Info("source processed",
		"feeds", stats.FeedsTotal,
		"feeds_failed", stats.FeedsFailed,
		"items_seen", stats.ItemsSeen,
		"items_inserted", stats.ItemsInserted,
		"duplicates", stats.Duplicates,
		"error", stats.Error)
	return stats
}

func (c *Coordinator) processFeedSource(ctx context.Context, src news.Source, mode Mode, stats *SourceStats) {
	stats.FeedsTotal = len(src.FeedURLs)

	var lastErr error
	for _, feedURL := range src.FeedURLs {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		res, err := c.deps.Feeds.ReadFeed(ctx, feedURL)
		if err != nil {
			stats.FeedsFailed++
			lastErr = err
			c.logger.Warn("feed failed", "source", src.Name, "url", feedURL, "stage", "feed", "error", err)
			continue
		}
		stats.FeedsFetched++
		c.processItems(ctx, src, feedURL, res.Items, mode, stats)
	}

	// A source fails only when none of its feeds could be read.
	if stats.FeedsTotal > 0 && stats.FeedsFetched == 0 && lastErr != nil {
		stats.Error = lastErr.Error()
	}
}

func (c *Coordinator) processAPISource(ctx context.Context, src news.Source, mode Mode, stats *SourceStats) {
	stats.FeedsTotal = 1
	if c.deps.API == nil {
		stats.FeedsFailed = 1
		stats.Error = "api sources are not configured"
		return
	}

	items, err := c.deps.API.Read(ctx, src)
	if err != nil {
		stats.FeedsFailed = 1
		stats.Error = err.Error()
		c.logger.Warn("api source failed", "source", src.Name, "url", src.APIURL, "stage", "api", "error", err)
		return
	}
	stats.FeedsFetched = 1
	c.processItems(ctx, src, src.APIURL, items, mode, stats)
}

func (c *Coordinator) processItems(ctx context.Context, src news.Source, origin string, items []news.CandidateItem, mode Mode, stats *SourceStats) {
	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		stats.ItemsSeen++
		c.deps.Recorder.ItemStage(metrics.StageSeen)

		out, scraped, err := c.runItem(ctx, src, origin, item, mode)
		if scraped {
			stats.ItemsScraped++
			c.deps.Recorder.ItemStage(metrics.StageScraped)
		}

		switch out {
		case outcomeInserted:
			stats.ItemsInserted++
			c.status.inserted()
			c.deps.Recorder.ItemStage(metrics.StageInserted)
		case outcomeDuplicate:
			stats.Duplicates++
			c.deps.Recorder.ItemStage(metrics.StageDuplicate)
		case outcomeTimeout:
			stats.TimedOut++
			c.deps.Recorder.ItemStage(metrics.StageTimeout)
			c.logger.Warn("item timed out", "source", src.Name, "url", item.Link, "timeout", c.cfg.ItemTimeout)
		case outcomeFailed:
			c.deps.Recorder.ItemStage(metrics.StageFailed)
			c.logger.Warn("item failed", "source", src.Name, "url", item.Link, "error", err)
		}
	}
}

type itemResult struct {
	outcome outcome
	scraped bool
	err     error
}

// runItem races the item pipeline against the item deadline. The deadline is
// also carried by the context, so fetches in flight are aborted; steps that
// do not observe the context (HTML parsing) finish in the background and
// their result is dropped.
func (c *Coordinator) runItem(ctx context.Context, src news.Source, origin string, item news.CandidateItem, mode Mode) (outcome, bool, error) {
	itemCtx, cancel := context.WithTimeout(ctx, c.cfg.ItemTimeout)
	defer cancel()

	done := make(chan itemResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- itemResult{outcome: outcomeFailed, err: fmt.Errorf("panic: %v", r)}
			}
		}()
		out, scraped, err := c.processItem(itemCtx, src, origin, item, mode)
		done <- itemResult{outcome: out, scraped: scraped, err: err}
	}()

	select {
	case r := <-done:
		if r.outcome == outcomeFailed && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return outcomeTimeout, r.scraped, r.err
		}
		return r.outcome, r.scraped, r.err
	case <-itemCtx.Done():
		if ctx.Err() != nil {
			return outcomeFailed, false, ctx.Err()
		}
		return outcomeTimeout, false, itemCtx.Err()
	}
}
