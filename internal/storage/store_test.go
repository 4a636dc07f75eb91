package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsflow/internal/news"
)

func newArticle(hash, canonical, slug string) *news.Article {
	now := time.Now().UTC().Truncate(time.Second)
	return &news.Article{
		ID:                 uuid.NewString(),
		Title:              "Title " + slug,
		Slug:               slug,
		Summary:            "summary",
		Content:            "content body",
		Images:             []news.Image{{URL: "https://cdn.example.com/a.jpg", Source: news.ImageScraped}},
		Category:           news.DefaultCategory,
		DetectedCategories: []string{"technology"},
		Tags:               []string{"technology"},
		Language:           "te",
		Source:             news.SourceRef{ID: "src", Name: "Source", URL: "https://src.example.com"},
		Status:             news.StatusScraped,
		PublishedAt:        now,
		ScrapedAt:          now,
		CanonicalURL:       canonical,
		ContentHash:        hash,
		CreatedAt:          now,
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sqlStore, err := OpenSQL(context.Background(), DriverSQLite, filepath.Join(dir, "newsflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })

	fileStore, err := OpenFile(filepath.Join(dir, "store.json"))
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemory(),
		"file":   fileStore,
		"sqlite": sqlStore,
	}
}

func TestArticleUniqueness(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.InsertArticle(ctx, newArticle("h1", "https://a.example.com/1", "one")))

			ok, err := s.HasContentHash(ctx, "h1")
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = s.HasCanonicalURL(ctx, "https://a.example.com/1")
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = s.SlugExists(ctx, "one")
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = s.SlugExists(ctx, "two")
			require.NoError(t, err)
			assert.False(t, ok)

			assert.ErrorIs(t, s.InsertArticle(ctx, newArticle("h1", "https://a.example.com/2", "two")), ErrDuplicate)
			assert.ErrorIs(t, s.InsertArticle(ctx, newArticle("h2", "https://a.example.com/1", "two")), ErrDuplicate)
			assert.ErrorIs(t, s.InsertArticle(ctx, newArticle("h2", "https://a.example.com/2", "one")), ErrDuplicate)
			require.NoError(t, s.InsertArticle(ctx, newArticle("h2", "https://a.example.com/2", "two")))

			n, err := s.CountArticles(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

func TestCountByDetectedCategory(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, lang := range []string{"te", "te", "en"} {
				a := newArticle(uuid.NewString(), "https://a.example.com/"+uuid.NewString(), "slug-"+uuid.NewString())
				a.Language = lang
				if i == 1 {
					a.DetectedCategories = []string{"sports", "technology"}
				}
				require.NoError(t, s.InsertArticle(ctx, a))
			}

			n, err := s.CountByDetectedCategory(ctx, "technology", "te")
			require.NoError(t, err)
			assert.Equal(t, 1, n, "only the primary label counts")

			n, err = s.CountByDetectedCategory(ctx, "technology", "en")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestCategories(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.FindCategory(ctx, "technology", "te")
			assert.ErrorIs(t, err, ErrNotFound)

			global := &news.Category{ID: uuid.NewString(), Key: "sports", Label: "Sports", Active: true, CreatedAt: time.Now()}
			require.NoError(t, s.CreateCategory(ctx, global))
			scoped := &news.Category{ID: uuid.NewString(), Key: "technology", Label: "Technology", Language: "te", Active: true, IsDynamic: true, CreatedAt: time.Now()}
			require.NoError(t, s.CreateCategory(ctx, scoped))
			assert.ErrorIs(t, s.CreateCategory(ctx, &news.Category{ID: uuid.NewString(), Key: "technology", Language: "te", CreatedAt: time.Now()}), ErrDuplicate)

			c, err := s.FindCategory(ctx, "sports", "te")
			require.NoError(t, err)
			assert.Equal(t, "Sports", c.Label)

			c, err = s.FindCategory(ctx, "technology", "te")
			require.NoError(t, err)
			assert.True(t, c.IsDynamic)
			assert.Equal(t, "te", c.Language)

			_, err = s.FindCategory(ctx, "technology", "en")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSources(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.UpsertSource(ctx, news.Source{ID: "b", Name: "B", FeedURLs: []string{"https://b.example.com/rss"}, Language: "te", Active: true, Categories: []string{"politics"}}))
			require.NoError(t, s.UpsertSource(ctx, news.Source{ID: "a", Name: "A", Type: news.SourceAPI, APIURL: "https://api.example.com", Active: true}))
			require.NoError(t, s.UpsertSource(ctx, news.Source{ID: "c", Name: "C", Active: false}))

			at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
			require.NoError(t, s.TouchSource(ctx, "b", at))
			// re-syncing the definition keeps the scrape timestamp
			require.NoError(t, s.UpsertSource(ctx, news.Source{ID: "b", Name: "B2", FeedURLs: []string{"https://b.example.com/rss"}, Language: "te", Active: true}))

			sources, err := s.ListActiveSources(ctx)
			require.NoError(t, err)
			require.Len(t, sources, 2)
			assert.Equal(t, "a", sources[0].ID)
			assert.Equal(t, news.SourceAPI, sources[0].Type)
			assert.Equal(t, "B2", sources[1].Name)
			assert.Equal(t, news.SourceFeed, sources[1].Type)
			assert.Equal(t, []string{"https://b.example.com/rss"}, sources[1].FeedURLs)
			require.NotNil(t, sources[1].LastScraped)
			assert.True(t, at.Equal(*sources[1].LastScraped))
		})
	}
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()

	s, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, s.InsertArticle(ctx, newArticle("h1", "https://a.example.com/1", "one")))
	require.NoError(t, s.UpsertSource(ctx, news.Source{ID: "a", Active: true}))
	require.NoError(t, s.Close())

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	ok, err := reopened.HasContentHash(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, ok)
	sources, err := reopened.ListActiveSources(ctx)
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mongo", "")
	assert.Error(t, err)
}
