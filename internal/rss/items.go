package rss

import (
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/deusflow/newsflow/internal/news"
)

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true, ".avif": true}

func normalizeItems(feed *gofeed.Feed) []news.CandidateItem {
	items := make([]news.CandidateItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		c := news.CandidateItem{
			Title:       news.PlainText(it.Title),
			Link:        itemLink(feed, it),
			Summary:     news.PlainText(it.Description),
			ContentHTML: it.Content,
			Published:   itemTime(it),
			Categories:  it.Categories,
			Author:      itemAuthor(it),
			Images:      itemImages(it),
		}
		if c.Summary == "" && c.ContentHTML != "" {
			c.Summary = news.Truncate(news.PlainText(c.ContentHTML), news.MaxSummaryLength)
		}
		if c.Title == "" || c.Link == "" {
			continue
		}
		items = append(items, c)
	}
	return items
}

func itemLink(feed *gofeed.Feed, it *gofeed.Item) string {
	link := strings.TrimSpace(it.Link)
	if link == "" && len(it.Links) > 0 {
		link = strings.TrimSpace(it.Links[0])
	}
	if link == "" && strings.HasPrefix(it.GUID, "http") {
		link = it.GUID
	}
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	if !u.IsAbs() && feed.Link != "" {
		if base, err := url.Parse(feed.Link); err == nil {
			u = base.ResolveReference(u)
		}
	}
	return u.String()
}

func itemTime(it *gofeed.Item) time.Time {
	if it.PublishedParsed != nil {
		return it.PublishedParsed.UTC()
	}
	if it.UpdatedParsed != nil {
		return it.UpdatedParsed.UTC()
	}
	return time.Now().UTC()
}

func itemAuthor(it *gofeed.Item) string {
	if it.Author != nil && it.Author.Name != "" {
		return it.Author.Name
	}
	for _, a := range it.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}

// itemImages collects images declared by the feed itself: media:content and
// media:thumbnail extensions first since they carry dimensions, then image
// enclosures and the item image.
func itemImages(it *gofeed.Item) []news.Image {
	var images []news.Image
	seen := map[string]bool{}
	add := func(img news.Image) {
		if img.URL == "" || seen[img.URL] {
			return
		}
		seen[img.URL] = true
		img.Source = news.ImageRSS
		images = append(images, img)
	}

	for _, name := range []string{"content", "thumbnail"} {
		for _, m := range mediaExtensions(it, name) {
			if medium := m.Attrs["medium"]; medium != "" && medium != "image" {
				continue
			}
			if t := m.Attrs["type"]; t != "" && !strings.HasPrefix(t, "image/") {
				continue
			}
			add(news.Image{
				URL:    m.Attrs["url"],
				Width:  atoi(m.Attrs["width"]),
				Height: atoi(m.Attrs["height"]),
			})
		}
	}
	for _, enc := range it.Enclosures {
		if enc == nil {
			continue
		}
		if strings.HasPrefix(enc.Type, "image/") || imageExtensions[strings.ToLower(path.Ext(stripQuery(enc.URL)))] {
			add(news.Image{URL: enc.URL})
		}
	}
	if it.Image != nil {
		add(news.Image{URL: it.Image.URL, Alt: it.Image.Title})
	}
	return images
}

func mediaExtensions(it *gofeed.Item, name string) []ext.Extension {
	media, ok := it.Extensions["media"]
	if !ok {
		return nil
	}
	out := append([]ext.Extension(nil), media[name]...)
	// media:group wraps content elements in some feeds
	for _, group := range media["group"] {
		out = append(out, group.Children[name]...)
	}
	return out
}

func stripQuery(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
