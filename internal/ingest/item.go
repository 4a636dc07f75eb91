package ingest

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/deusflow/newsflow/internal/classify"
	"github.com/deusflow/newsflow/internal/dedup"
	"github.com/deusflow/newsflow/internal/news"
	"github.com/deusflow/newsflow/internal/scraper"
	"github.com/deusflow/newsflow/internal/storage"
)

// processItem runs hash check, extraction, canonical check, classification,
// slug resolution and insert for one item. scraped reports whether content
// was built for it.
func (c *Coordinator) processItem(ctx context.Context, src news.Source, origin string, item news.CandidateItem, mode Mode) (outcome, bool, error) {
	if item.Title == "" || item.Link == "" {
		return outcomeFailed, false, fmt.Errorf("item without title or link")
	}

	dup, err := c.dedup.IsDuplicate(ctx, item, src.ID)
	if err != nil {
		return outcomeFailed, false, err
	}
	if dup {
		return outcomeDuplicate, false, nil
	}

	content := c.content(ctx, item, mode)
	if err := ctx.Err(); err != nil {
		return outcomeFailed, false, err
	}

	seen, err := c.dedup.SeenURL(ctx, item.Link)
	if err != nil {
		return outcomeFailed, true, err
	}
	if seen {
		return outcomeDuplicate, true, nil
	}

	lang := classify.BaseLanguage(src.Language)
	class, err := c.deps.Classifier.Classify(ctx, classify.Input{
		Title:            item.Title,
		Summary:          news.PlainText(item.Summary),
		Body:             content.Body,
		Language:         src.Language,
		SourceCategories: src.Categories,
	})
	if err != nil {
		// the detected labels are still valid, only the category lookup failed
		c.logger.Warn("classification degraded", "url", item.Link, "error", err)
	}

	if len(class.Labels) == 0 {
		class.Labels = []string{cmp.Or(class.Detected, news.DefaultCategory)}
	}

	now := c.now().UTC()
	article := &news.Article{
		ID:                 uuid.NewString(),
		Title:              item.Title,
		Summary:            c.summary(ctx, item, content, lang, mode),
		Content:            content.Body,
		Images:             content.Images,
		Category:           cmp.Or(class.Category, news.DefaultCategory),
		DetectedCategories: class.Labels,
		Tags:               tags(src.Categories, class.Labels),
		Author:             item.Author,
		Language:           lang,
		Source:             news.SourceRef{ID: src.ID, Name: src.Name, URL: origin},
		Status:             news.StatusScraped,
		PublishedAt:        item.Published,
		ScrapedAt:          now,
		CanonicalURL:       dedup.CanonicalURL(item.Link),
		ContentHash:        dedup.ContentHash(item.Title, item.Summary, src.ID),
		CreatedAt:          now,
	}
	if article.PublishedAt.IsZero() {
		article.PublishedAt = now
	}
	if article.Images == nil {
		article.Images = []news.Image{}
	}
	article.Finalize()

	if err := c.insert(ctx, article); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return outcomeDuplicate, true, nil
		}
		return outcomeFailed, true, err
	}
	c.logger.Debug("article inserted", "slug", article.Slug, "category", article.Category, "detected", class.Detected)
	return outcomeInserted, true, nil
}

// content fetches and extracts the article page in full mode. Extraction
// failures degrade to the feed snippet.
func (c *Coordinator) content(ctx context.Context, item news.CandidateItem, mode Mode) *scraper.ArticleContent {
	if mode == ModeFull {
		content, err := c.deps.Extractor.Extract(ctx, item.Link, item.Images)
		if err == nil {
			if content.Body == "" {
				content.Body = c.deps.Extractor.Snippet(item).Body
			}
			return content
		}
		if ctx.Err() == nil {
			c.logger.Warn("extraction failed, using feed content", "url", item.Link, "stage", "extract", "error", err)
		}
	}
	return c.deps.Extractor.Snippet(item)
}

func (c *Coordinator) summary(ctx context.Context, item news.CandidateItem, content *scraper.ArticleContent, lang string, mode Mode) string {
	if mode == ModeFull && c.deps.Summarizer != nil && content.Body != "" {
		s, err := c.deps.Summarizer.Summarize(ctx, item.Title, content.Body, lang)
		if err == nil && s != "" {
			return news.Truncate(s, news.MaxSummaryLength)
		}
		c.logger.Debug("summary generation failed, using snippet", "url", item.Link, "error", err)
	}
	snippet := news.PlainText(item.Summary)
	if snippet == "" {
		snippet = content.Body
	}
	return news.Truncate(snippet, news.MaxSummaryLength)
}

// insert resolves a slug and stores the article. A duplicate that is neither
// a known hash nor a known URL can only be a slug taken concurrently, so the
// slug is resolved again once.
func (c *Coordinator) insert(ctx context.Context, article *news.Article) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		slug, err := c.dedup.ResolveSlug(ctx, article.Title)
		if err != nil {
			return err
		}
		article.Slug = slug

		err = c.deps.Store.InsertArticle(ctx, article)
		if err == nil || !errors.Is(err, storage.ErrDuplicate) || attempt > 0 {
			return err
		}

		hashSeen, herr := c.deps.Store.HasContentHash(ctx, article.ContentHash)
		urlSeen, uerr := c.deps.Store.HasCanonicalURL(ctx, article.CanonicalURL)
		if herr != nil || uerr != nil || hashSeen || urlSeen {
			return err
		}
		c.logger.Debug("slug taken concurrently, retrying", "slug", slug)
	}
}

func tags(sourceCategories, labels []string) []string {
	seen := make(map[string]bool, len(sourceCategories)+len(labels))
	out := make([]string, 0, len(sourceCategories)+len(labels))
	for _, list := range [][]string{sourceCategories, labels} {
		for _, t := range list {
			t = strings.ToLower(strings.TrimSpace(t))
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
