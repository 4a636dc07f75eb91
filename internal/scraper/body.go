package scraper

import (
	"bytes"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/deusflow/newsflow/internal/news"
)

// minBodyChars is the least text a container must hold to be taken as the body.
const minBodyChars = 80

var boilerplateSelectors = []string{
	"script", "style", "noscript", "iframe", "nav", "header", "footer", "aside", "form", "svg",
	".ad", ".ads", ".advert", ".advertisement", ".ad-container", ".ad-slot", ".adsbygoogle",
	"[class*='advert']", "[id^='google_ads']", "[data-ad-slot]", ".sponsored", ".promo",
	".share", ".social-share", ".newsletter", ".related", ".comments",
}

// Ordered from article-specific to generic.
var contentSelectors = []string{
	"[itemprop='articleBody']",
	".article-body",
	".article-content",
	".story-body",
	".post-content",
	".entry-content",
	"article",
	"[role='main']",
	"main",
	"#content",
	".content",
}

var blockSelector = "p, h2, h3, h4, li, blockquote, pre"

func stripBoilerplate(doc *goquery.Document) {
	// ld+json blocks go with script.
	doc.Find(strings.Join(boilerplateSelectors, ", ")).Remove()
	doc.Find("*").Contents().FilterFunction(func(_ int, s *goquery.Selection) bool {
		return goquery.NodeName(s) == "#comment"
	}).Remove()
}

func (e *Extractor) extractBody(doc *goquery.Document, raw []byte, pageURL string) string {
	for _, selector := range contentSelectors {
		var found string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := containerText(s)
			if utf8.RuneCountInString(text) >= minBodyChars {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return capText(found, e.maxBody)
		}
	}

	if text := readableText(raw, pageURL); utf8.RuneCountInString(text) >= minBodyChars {
		return capText(text, e.maxBody)
	}

	return capText(containerText(doc.Find("body")), e.maxBody)
}

// containerText keeps paragraph breaks between block elements and collapses
// whitespace inside them.
func containerText(s *goquery.Selection) string {
	var paragraphs []string
	s.Find(blockSelector).Each(func(_ int, b *goquery.Selection) {
		// nested blocks (li > p) are picked up by their inner element
		if b.Find(blockSelector).Length() > 0 {
			return
		}
		if text := news.CollapseSpace(b.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		return news.CollapseSpace(s.Text())
	}
	return strings.Join(paragraphs, "\n\n")
}

func readableText(raw []byte, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		u = nil
	}
	article, err := readability.FromReader(bytes.NewReader(raw), u)
	if err != nil {
		return ""
	}
	var paragraphs []string
	for _, line := range strings.Split(article.TextContent, "\n") {
		if line = news.CollapseSpace(line); line != "" {
			paragraphs = append(paragraphs, line)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// capText limits text to max runes, preferring to cut at a paragraph and
// then at a word boundary.
func capText(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	cut := string([]rune(text)[:max])
	if i := strings.LastIndex(cut, "\n\n"); i > len(cut)/2 {
		return strings.TrimSpace(cut[:i])
	}
	if i := strings.LastIndex(cut, " "); i > len(cut)/2 {
		return strings.TrimSpace(cut[:i])
	}
	return cut
}
