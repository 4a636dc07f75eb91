package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/newsflow/internal/fetch"
	"github.com/deusflow/newsflow/internal/news"
)

const pageAccept = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Response, error)
}

// ArticleContent is what the extractor derives from one article.
type ArticleContent struct {
	URL       string
	Title     string
	Body      string
	Images    []news.Image
	OpenGraph OpenGraph
	// FromPage is false when only feed-supplied data was used.
	FromPage bool
}

type Extractor struct {
	fetcher   Fetcher
	logger    *slog.Logger
	maxBody   int
	maxImages int
}

func New(fetcher Fetcher, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		fetcher:   fetcher,
		logger:    logger.With("component", "scraper"),
		maxBody:   news.MaxContentLength,
		maxImages: maxImages,
	}
}

// Extract downloads the article page and derives body, images and Open Graph
// data from it. declared are the images supplied by the feed or API.
func (e *Extractor) Extract(ctx context.Context, pageURL string, declared []news.Image) (*ArticleContent, error) {
	resp, err := e.fetcher.Fetch(ctx, pageURL, fetch.Options{Accept: pageAccept})
	if err != nil {
		return nil, fmt.Errorf("fetch article: %w", err)
	}
	base := resp.URL
	if base == "" {
		base = pageURL
	}
	content, err := e.ExtractHTML(base, resp.Body, declared)
	if err != nil {
		return nil, err
	}
	content.URL = pageURL
	return content, nil
}

// ExtractHTML works on an already fetched page. Broken markup degrades to
// whatever could be recovered instead of failing.
func (e *Extractor) ExtractHTML(pageURL string, raw []byte, declared []news.Image) (*ArticleContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	og := readOpenGraph(doc)
	title := og.Title
	if title == "" {
		title = extractTitle(doc)
	}

	// Images first: stripping boilerplate can drop hero figures in headers.
	scraped := e.scrapeImages(doc, pageURL)

	stripBoilerplate(doc)
	body := e.extractBody(doc, raw, pageURL)

	content := &ArticleContent{
		URL:       pageURL,
		Title:     title,
		Body:      body,
		OpenGraph: og,
		FromPage:  true,
	}
	content.Images = chooseImages(scraped, declared, og.Image, pageURL)

	e.logger.Debug("article extracted", "url", pageURL, "body_chars", len(body), "images", len(content.Images))
	return content, nil
}

// Snippet builds content from feed data alone. Used in fast mode and when the
// article page cannot be fetched.
func (e *Extractor) Snippet(item news.CandidateItem) *ArticleContent {
	body := news.PlainText(item.ContentHTML)
	if body == "" {
		body = item.Summary
	}
	return &ArticleContent{
		URL:    item.Link,
		Title:  item.Title,
		Body:   capText(body, e.maxBody),
		Images: chooseImages(nil, item.Images, "", item.Link),
	}
}

func extractTitle(doc *goquery.Document) string {
	selectors := []string{
		"h1",
		".article-title",
		".headline",
		".entry-title",
		"title",
	}

	for _, selector := range selectors {
		title := news.CollapseSpace(doc.Find(selector).First().Text())
		if title != "" {
			return title
		}
	}

	return ""
}
