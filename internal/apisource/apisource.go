// Package apisource reads articles from JSON news APIs for sources of type api.
package apisource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/deusflow/newsflow/internal/fetch"
	"github.com/deusflow/newsflow/internal/news"
)

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Response, error)
}

type payload struct {
	Status   string       `json:"status"`
	Message  string       `json:"message"`
	Articles []apiArticle `json:"articles"`
}

type apiArticle struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Content     string `json:"content"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Author      string `json:"author"`
	Category    string `json:"category"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

type Client struct {
	fetcher Fetcher
	apiKey  string
	logger  *slog.Logger
}

func New(fetcher Fetcher, apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{fetcher: fetcher, apiKey: apiKey, logger: logger.With("component", "apisource")}
}

// Read fetches the source's API endpoint and maps the returned articles.
// The API key comes from process configuration, never from the source.
func (c *Client) Read(ctx context.Context, src news.Source) ([]news.CandidateItem, error) {
	endpoint, err := c.endpoint(src.APIURL)
	if err != nil {
		return nil, err
	}

	opts := fetch.Options{Accept: "application/json"}
	if c.apiKey != "" {
		opts.Headers = map[string]string{"X-Api-Key": c.apiKey}
	}
	resp, err := c.fetcher.Fetch(ctx, endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("api fetch: %w", err)
	}

	var p payload
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return nil, fmt.Errorf("api decode: %w", err)
	}
	if strings.EqualFold(p.Status, "error") {
		return nil, fmt.Errorf("api error: %s", p.Message)
	}

	items := make([]news.CandidateItem, 0, len(p.Articles))
	for _, a := range p.Articles {
		if a.Title == "" || a.URL == "" {
			continue
		}
		item := news.CandidateItem{
			Title:       news.PlainText(a.Title),
			Link:        a.URL,
			Summary:     news.PlainText(a.Description),
			ContentHTML: a.Content,
			Published:   parseTime(a.PublishedAt),
			Author:      a.Author,
		}
		if a.Category != "" {
			item.Categories = []string{a.Category}
		}
		if a.URLToImage != "" {
			item.Images = []news.Image{{URL: a.URLToImage, Source: news.ImageAPI}}
		}
		items = append(items, item)
	}
	c.logger.Info("api source loaded", "source", src.Name, "items", len(items))
	return items, nil
}

func (c *Client) endpoint(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", fetch.ErrMalformedURL, err)
	}
	if c.apiKey != "" {
		q := u.Query()
		if q.Get("apiKey") == "" {
			q.Set("apiKey", c.apiKey)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02 15:04:05", time.RFC1123Z} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
