package rss

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/newsflow/internal/fetch"
	"github.com/deusflow/newsflow/internal/news"
)

const (
	PathPrimary  = "primary"
	PathFallback = "fallback"

	feedAccept = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"
	userAgent  = "newsflow/1.0 (+feed reader)"
)

// Fetcher is the subset of fetch.Client used by the fallback path.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Response, error)
}

// Recorder is notified once per feed URL with result "ok" or "failed".
type Recorder interface {
	FeedResult(result, path string)
}

// Stats describes one feed URL read.
type Stats struct {
	URL       string
	Attempted bool
	Succeeded bool
	Items     int
	Path      string
}

type Result struct {
	Items   []news.CandidateItem
	Fetched bool
	Stats   Stats
}

type Reader struct {
	client   *http.Client
	fetcher  Fetcher
	logger   *slog.Logger
	recorder Recorder
}

// NewReader builds a reader. client is used by the primary path and should
// carry the dispatch gate in its transport; fetcher serves the fallback.
func NewReader(client *http.Client, fetcher Fetcher, logger *slog.Logger, rec Recorder) *Reader {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		client:   client,
		fetcher:  fetcher,
		logger:   logger.With("component", "rss"),
		recorder: rec,
	}
}

// ReadFeed parses feedURL. When the direct parse fails or yields no items the
// document is fetched as raw text and parsed again. An error means both
// paths failed; Result.Stats is filled either way.
func (r *Reader) ReadFeed(ctx context.Context, feedURL string) (Result, error) {
	res := Result{Stats: Stats{URL: feedURL, Attempted: true, Path: PathPrimary}}

	feed, primaryErr := r.parseURL(ctx, feedURL)
	if primaryErr == nil && len(feed.Items) > 0 {
		return r.done(res, feed, PathPrimary), nil
	}
	if ctx.Err() != nil {
		r.record("failed", PathPrimary)
		return res, ctx.Err()
	}

	if primaryErr != nil {
		r.logger.Debug("primary feed parse failed, trying raw fetch", "url", feedURL, "error", primaryErr)
	} else {
		r.logger.Debug("primary feed parse returned no items, trying raw fetch", "url", feedURL)
	}

	fallback, err := r.fetchAndParse(ctx, feedURL)
	if err != nil {
		if primaryErr == nil {
			// The direct parse worked, the feed is simply empty.
			return r.done(res, feed, PathPrimary), nil
		}
		r.record("failed", PathFallback)
		r.logger.Warn("feed unreadable", "url", feedURL, "stage", "feed", "error", err)
		return res, fmt.Errorf("read feed %s: %w", feedURL, err)
	}
	return r.done(res, fallback, PathFallback), nil
}

func (r *Reader) done(res Result, feed *gofeed.Feed, path string) Result {
	res.Items = normalizeItems(feed)
	res.Fetched = true
	res.Stats.Succeeded = true
	res.Stats.Items = len(res.Items)
	res.Stats.Path = path
	r.record("ok", path)
	r.logger.Info("feed loaded", "url", res.Stats.URL, "items", res.Stats.Items, "path", path)
	return res
}

func (r *Reader) parseURL(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	parser := gofeed.NewParser()
	parser.Client = r.client
	parser.UserAgent = userAgent
	return parser.ParseURLWithContext(feedURL, ctx)
}

func (r *Reader) fetchAndParse(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	if r.fetcher == nil {
		return nil, fmt.Errorf("no fallback fetcher configured")
	}
	resp, err := r.fetcher.Fetch(ctx, feedURL, fetch.Options{Accept: feedAccept})
	if err != nil {
		return nil, err
	}
	return ParseBytes(resp.Body)
}

// ParseBytes parses a raw feed document, tolerating leading garbage before
// the first tag and stray control characters.
func ParseBytes(data []byte) (*gofeed.Feed, error) {
	data = sanitize(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty feed document")
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

func sanitize(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if i := bytes.IndexByte(data, '<'); i > 0 {
		data = data[i:]
	}
	return bytes.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, data)
}

func (r *Reader) record(result, path string) {
	if r.recorder != nil {
		r.recorder.FeedResult(result, path)
	}
}
