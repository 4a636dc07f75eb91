package scraper

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/newsflow/internal/news"
)

const (
	maxImages    = 5
	minDimension = 200
)

var articleImageSelectors = []string{
	"[itemprop='articleBody'] img",
	".article-body img",
	".article-content img",
	".story-body img",
	".post-content img",
	".entry-content img",
	"article figure img",
	"article img",
	"main figure img",
}

var excludeImageKeywords = []string{
	"logo", "icon", "avatar", "badge", "banner", "sprite", "tracking-pixel", "pixel.gif",
	"placeholder", "spacer", "blank.gif", "gravatar", "emoji", "ad", "ads", "advert",
}

var ogPlaceholderKeywords = []string{"logo", "icon", "placeholder", "default"}

var shortKeywordRe = map[string]*regexp.Regexp{}

func init() {
	for _, k := range excludeImageKeywords {
		if len(k) <= 3 {
			shortKeywordRe[k] = regexp.MustCompile(`(^|[^a-z0-9])` + regexp.QuoteMeta(k) + `([^a-z0-9]|$)`)
		}
	}
}

// containsAny matches long keywords as substrings and short ones (ad, ads)
// only as whole tokens so "upload" or "header" do not trip them.
func containsAny(text string, keywords []string) bool {
	text = strings.ToLower(text)
	for _, k := range keywords {
		if re, ok := shortKeywordRe[k]; ok {
			if re.MatchString(text) {
				return true
			}
			continue
		}
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// acceptImage applies keyword and dimension screening.
func acceptImage(img news.Image) bool {
	if img.URL == "" || strings.HasPrefix(img.URL, "data:") {
		return false
	}
	if containsAny(img.URL, excludeImageKeywords) || containsAny(img.Alt, excludeImageKeywords) {
		return false
	}
	if img.Width > 0 && img.Height > 0 && (img.Width < minDimension || img.Height < minDimension) {
		return false
	}
	return true
}

func (e *Extractor) scrapeImages(doc *goquery.Document, pageURL string) []news.Image {
	base, _ := url.Parse(pageURL)
	var images []news.Image
	seen := map[string]bool{}

	collect := func(s *goquery.Selection) bool {
		s.EachWithBreak(func(_ int, img *goquery.Selection) bool {
			candidate := imageFromNode(img, base)
			if !acceptImage(candidate) || seen[candidate.URL] {
				return true
			}
			seen[candidate.URL] = true
			images = append(images, candidate)
			return len(images) < e.maxImages
		})
		return len(images) >= e.maxImages
	}

	for _, selector := range articleImageSelectors {
		if collect(doc.Find(selector)) {
			break
		}
	}
	if len(images) == 0 {
		collect(doc.Find("img"))
	}
	return images
}

func imageFromNode(s *goquery.Selection, base *url.URL) news.Image {
	src := ""
	for _, attr := range []string{"src", "data-src", "data-lazy-src", "data-original"} {
		if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" && !strings.HasPrefix(v, "data:") {
			src = v
			break
		}
	}
	if src == "" {
		src = firstSrcset(s.AttrOr("srcset", s.AttrOr("data-srcset", "")))
	}

	img := news.Image{
		URL:    resolve(base, src),
		Alt:    strings.TrimSpace(s.AttrOr("alt", "")),
		Width:  dimension(s.AttrOr("width", "")),
		Height: dimension(s.AttrOr("height", "")),
		Source: news.ImageScraped,
	}
	if fig := s.Closest("figure"); fig.Length() > 0 {
		img.Caption = news.CollapseSpace(fig.Find("figcaption").First().Text())
	}
	return img
}

func firstSrcset(srcset string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(srcset), ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func dimension(v string) int {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

// chooseImages returns the scraped images or, when none survived, the first
// acceptable image from the feed, then the API, then Open Graph.
func chooseImages(scraped, declared []news.Image, ogImage, pageURL string) []news.Image {
	if len(scraped) > 0 {
		return scraped
	}
	for _, provenance := range []news.ImageSource{news.ImageRSS, news.ImageAPI} {
		for _, img := range declared {
			if img.Source == provenance && acceptImage(img) {
				return []news.Image{img}
			}
		}
	}
	if ogImage != "" {
		base, _ := url.Parse(pageURL)
		og := news.Image{URL: resolve(base, ogImage), Source: news.ImageOpenGraph}
		if og.URL != "" && !containsAny(og.URL, ogPlaceholderKeywords) && acceptImage(og) {
			return []news.Image{og}
		}
	}
	return nil
}
