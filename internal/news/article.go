package news

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxSummaryLength = 300
	MaxContentLength = 20000
	wordsPerMinute   = 200
)

type ImageSource string

const (
	ImageScraped   ImageSource = "scraped"
	ImageOpenGraph ImageSource = "opengraph"
	ImageAPI       ImageSource = "api"
	ImageRSS       ImageSource = "rss"
)

type Image struct {
	URL     string      `json:"url"`
	Alt     string      `json:"alt,omitempty"`
	Caption string      `json:"caption,omitempty"`
	Width   int         `json:"width,omitempty"`
	Height  int         `json:"height,omitempty"`
	Source  ImageSource `json:"source"`
}

// CandidateItem is a feed or API entry before it becomes an Article.
// It is never persisted.
type CandidateItem struct {
	Title       string
	Link        string
	Summary     string
	ContentHTML string
	Published   time.Time
	Categories  []string
	Author      string
	// Images declared by the feed (enclosures, media) or the API payload.
	Images []Image
}

type Status string

const (
	StatusScraped   Status = "scraped"
	StatusProcessed Status = "processed"
	StatusPublished Status = "published"
)

type SourceRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type SEO struct {
	MetaTitle       string   `json:"metaTitle"`
	MetaDescription string   `json:"metaDescription"`
	Keywords        []string `json:"keywords,omitempty"`
	OGImage         string   `json:"ogImage,omitempty"`
}

type Article struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Slug               string    `json:"slug"`
	Summary            string    `json:"summary"`
	Content            string    `json:"content"`
	Images             []Image   `json:"images"`
	Category           string    `json:"category"`
	DetectedCategories []string  `json:"detectedCategories"`
	Tags               []string  `json:"tags"`
	Author             string    `json:"author,omitempty"`
	Language           string    `json:"language"`
	Source             SourceRef `json:"source"`
	Status             Status    `json:"status"`
	PublishedAt        time.Time `json:"publishedAt"`
	ScrapedAt          time.Time `json:"scrapedAt"`
	CanonicalURL       string    `json:"canonicalUrl"`
	Thumbnail          string    `json:"thumbnail,omitempty"`
	WordCount          int       `json:"wordCount"`
	ReadingTime        int       `json:"readingTime"`
	SEO                SEO       `json:"seo"`
	ContentHash        string    `json:"contentHash"`
	CreatedAt          time.Time `json:"createdAt"`
}

// DetectedCategory is the classifier's primary label, or "" if none.
func (a *Article) DetectedCategory() string {
	if len(a.DetectedCategories) == 0 {
		return ""
	}
	return a.DetectedCategories[0]
}

// Finalize fills the fields derived from content and images.
func (a *Article) Finalize() {
	a.WordCount = WordCount(a.Content)
	a.ReadingTime = ReadingTime(a.WordCount)
	if len(a.Images) > 0 {
		a.Thumbnail = a.Images[0].URL
	}
	a.SEO = SEO{
		MetaTitle:       Truncate(a.Title, 60),
		MetaDescription: Truncate(a.Summary, 160),
		Keywords:        a.Tags,
		OGImage:         a.Thumbnail,
	}
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}

// ReadingTime returns whole minutes at 200 words per minute, never less than one.
func ReadingTime(words int) int {
	minutes := int(math.Ceil(float64(words) / wordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// Truncate shortens text to at most limit runes, cutting on a word boundary
// where possible and marking the cut with an ellipsis.
func Truncate(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:limit-1])
	if i := strings.LastIndex(cut, " "); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:-") + "…"
}
