package dedup

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsflow/internal/news"
	"github.com/deusflow/newsflow/internal/storage"
)

var slugRe = regexp.MustCompile(`^[\p{Ll}\p{Lo}\p{M}\p{Nd}]+(?:-[\p{Ll}\p{Lo}\p{M}\p{Nd}]+)*$`)

func TestContentHashDeterministic(t *testing.T) {
	a := ContentHash("Title", "Summary", "source-1")
	assert.Equal(t, a, ContentHash("Title", "Summary", "source-1"))
	assert.Equal(t, a, ContentHash(" Title ", "Summary\n", "source-1"))
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, ContentHash("Title", "Summary", "source-2"))
	assert.NotEqual(t, a, ContentHash("Title", "Other", "source-1"))
	// field boundaries matter
	assert.NotEqual(t, ContentHash("ab", "c", "s"), ContentHash("a", "bc", "s"))
}

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Hello, World!", "hello-world"},
		{"  Crème brûlée à la carte  ", "creme-brulee-a-la-carte"},
		{"Don't stop -- 2024 edition", "dont-stop-2024-edition"},
		{"Ångström über Straße", "angstrom-uber-strasse"},
		{"\ufb01nal \uff06 \uff12\uff10\uff12\uff14", "final-2024"},
		{"భారత్ క్రికెట్ జట్టు", "భారత్-క్రికెట్-జట్టు"},
		{"India vs ఆస్ట్రేలియా: 3rd Test", "india-vs-ఆస్ట్రేలియా-3rd-test"},
		{"\U0001F389\U0001F389", "article"},
		{"", "article"},
	}
	for _, tt := range tests {
		got := Slugify(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Regexp(t, slugRe, got)
	}

	long := Slugify(strings.Repeat("headline words ", 20))
	assert.LessOrEqual(t, len(long), maxSlugLength)
	assert.Regexp(t, slugRe, long)

	longTelugu := Slugify(strings.Repeat("క్రికెట్ జట్టు ", 20))
	assert.LessOrEqual(t, utf8.RuneCountInString(longTelugu), maxSlugLength)
	assert.True(t, utf8.ValidString(longTelugu))
	assert.Regexp(t, slugRe, longTelugu)
}

func TestSlugifyConcurrent(t *testing.T) {
	titles := []string{
		"Café crème résumé naïve",
		"Crème brûlée à la carte",
		"Ångström über Straße",
		"భారత్ క్రికెట్ జట్టు",
	}
	want := make([]string, len(titles))
	for i, title := range titles {
		want[i] = Slugify(title)
	}

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 2000 {
				k := (g + i) % len(titles)
				if got := Slugify(titles[k]); got != want[k] {
					t.Errorf("Slugify(%q) = %q, want %q", titles[k], got, want[k])
					return
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, "cafe-creme-resume-naive", want[0])
}

func TestCanonicalURL(t *testing.T) {
	tests := map[string]string{
		"HTTPS://News.Example.com:443/World/Story/?utm_source=rss&utm_medium=feed#comments": "https://news.example.com/World/Story",
		"https://news.example.com/story?id=7&fbclid=abc&b=2":                                 "https://news.example.com/story?b=2&id=7",
		"http://news.example.com:8080/":                                                       "http://news.example.com:8080/",
		"not a url":                                                                           "not a url",
	}
	for in, want := range tests {
		assert.Equal(t, want, CanonicalURL(in), in)
	}
}

func storedArticle(slug, hash, link string) *news.Article {
	return &news.Article{
		ID:           uuid.NewString(),
		Title:        slug,
		Slug:         slug,
		ContentHash:  hash,
		CanonicalURL: CanonicalURL(link),
		Category:     news.DefaultCategory,
		Status:       news.StatusScraped,
		PublishedAt:  time.Now(),
		ScrapedAt:    time.Now(),
		CreatedAt:    time.Now(),
	}
}

func TestIsDuplicateAndSeenURL(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	d := New(store)

	item := news.CandidateItem{Title: "Title", Summary: "Summary", Link: "https://x.example.com/a?utm_source=rss"}
	dup, err := d.IsDuplicate(ctx, item, "src")
	require.NoError(t, err)
	assert.False(t, dup)

	require.NoError(t, store.InsertArticle(ctx, storedArticle("title", ContentHash("Title", "Summary", "src"), item.Link)))

	dup, err = d.IsDuplicate(ctx, item, "src")
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = d.IsDuplicate(ctx, item, "other-src")
	require.NoError(t, err)
	assert.False(t, dup)

	seen, err := d.SeenURL(ctx, "https://X.example.com/a#top")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestResolveSlugCollisions(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	d := New(store)
	d.now = func() time.Time { return time.UnixMilli(1700000000000) }

	first, err := d.ResolveSlug(ctx, "Big Match Today")
	require.NoError(t, err)
	assert.Equal(t, "big-match-today", first)
	require.NoError(t, store.InsertArticle(ctx, storedArticle(first, "h1", "https://x.example.com/1")))

	second, err := d.ResolveSlug(ctx, "Big match, today!")
	require.NoError(t, err)
	assert.Equal(t, "big-match-today-1700000000000-1", second)
	require.NoError(t, store.InsertArticle(ctx, storedArticle(second, "h2", "https://x.example.com/2")))

	third, err := d.ResolveSlug(ctx, "BIG MATCH TODAY")
	require.NoError(t, err)
	assert.Equal(t, "big-match-today-1700000000000-2", third)
	assert.NotEqual(t, second, third)
}
