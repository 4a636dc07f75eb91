package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type OpenGraph struct {
	Title       string
	Description string
	Image       string
	URL         string
	SiteName    string
}

func readOpenGraph(doc *goquery.Document) OpenGraph {
	meta := func(keys ...string) string {
		for _, k := range keys {
			sel := doc.Find(`meta[property="` + k + `"], meta[name="` + k + `"]`).First()
			if v := strings.TrimSpace(sel.AttrOr("content", "")); v != "" {
				return v
			}
		}
		return ""
	}
	return OpenGraph{
		Title:       meta("og:title", "twitter:title"),
		Description: meta("og:description", "twitter:description", "description"),
		Image:       meta("og:image", "og:image:url", "og:image:secure_url", "twitter:image"),
		URL:         meta("og:url"),
		SiteName:    meta("og:site_name"),
	}
}
